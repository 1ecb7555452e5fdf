package journal

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Priority is a syslog severity. Lower values are more severe.
type Priority uint8

const (
	PriEmerg Priority = iota
	PriAlert
	PriCrit
	PriErr
	PriWarning
	PriNotice
	PriInfo
	PriDebug
)

var priorityNames = [...]string{
	PriEmerg:   "emerg",
	PriAlert:   "alert",
	PriCrit:    "crit",
	PriErr:     "err",
	PriWarning: "warning",
	PriNotice:  "notice",
	PriInfo:    "info",
	PriDebug:   "debug",
}

// Valid returns true if p is within the syslog range 0-7.
func (p Priority) Valid() bool {
	return p <= PriDebug
}

// String returns the syslog name of p, or its number if it is out of range.
func (p Priority) String() string {
	if p.Valid() {
		return priorityNames[p]
	}
	return strconv.Itoa(int(p))
}

// check rejects out-of-range priorities with EINVAL, the same error
// libsystemd returns for them.
func (p Priority) check() error {
	if !p.Valid() {
		return errors.Wrapf(unix.EINVAL, "priority %d out of range", p)
	}
	return nil
}

// ParsePriority parses either a number from 0 to 7 or a syslog name such as
// "info" or "warning". Names are case-insensitive; "error" and "warn" are
// accepted as aliases.
func ParsePriority(s string) (Priority, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		p := Priority(n)
		return p, p.check()
	}

	switch name := strings.ToLower(s); name {
	case "error":
		return PriErr, nil
	case "warn":
		return PriWarning, nil
	default:
		for p, pname := range priorityNames {
			if name == pname {
				return Priority(p), nil
			}
		}
	}

	return 0, errors.Errorf("unknown priority %q", s)
}
