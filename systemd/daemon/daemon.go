// Package daemon sends service state notifications to the service manager and
// reads the state it passes down through the environment.
//
// Every notification is a single native call made at the moment it is asked
// for. Nothing pings the watchdog in the background; see WatchdogEnabled for
// the interval to ping at.
package daemon

import (
	"strconv"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/sdbind/systemd"
	"git.unix.lgbt/diamondburned/sdbind/systemd/ffi"
	"git.unix.lgbt/diamondburned/sdbind/systemd/journal"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Well-known state assignments. See sd_notify(3).
const (
	StateReady         = "READY"
	StateReloading     = "RELOADING"
	StateStopping      = "STOPPING"
	StateStatus        = "STATUS"
	StateMainPID       = "MAINPID"
	StateErrno         = "ERRNO"
	StateWatchdog      = "WATCHDOG"
	StateExtendTimeout = "EXTEND_TIMEOUT_USEC"
	StateMonotonic     = "MONOTONIC_USEC"
)

// Notifier sends notifications through a native notification entry point. It
// is safe for concurrent use if the backend is.
type Notifier struct {
	native ffi.Notifier
}

// Default is the Notifier used by the package-level functions.
var Default = NewNotifier(ffi.DefaultNotifier)

// NewNotifier creates a Notifier on top of the given backend.
func NewNotifier(native ffi.Notifier) *Notifier {
	return &Notifier{native}
}

// Notify sends the given state assignments as one notification. It returns
// false if the process is not running under a service manager that listens for
// notifications. If unsetEnv is true, the notification socket is removed from
// the environment afterwards, so child processes do not inherit it.
func (n *Notifier) Notify(unsetEnv bool, fields ...journal.Field) (bool, error) {
	var state strings.Builder

	for i, f := range fields {
		if err := f.Validate(); err != nil {
			return false, err
		}

		// A newline would start another assignment.
		if strings.IndexByte(f.Value, '\n') >= 0 {
			return false, errors.Wrapf(unix.EINVAL, "newline in %s", f.Key)
		}

		if i > 0 {
			state.WriteByte('\n')
		}
		state.WriteString(f.String())
	}

	s, err := systemd.CString(state.String())
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal state")
	}

	var unset int32
	if unsetEnv {
		unset = 1
	}

	sent, err := systemd.Try(n.native.Notify(unset, s))
	if err != nil {
		return false, errors.Wrap(err, "failed to notify service manager")
	}

	return sent > 0, nil
}

// Ready tells the service manager that startup is finished.
func (n *Notifier) Ready() (bool, error) {
	return n.Notify(false, journal.F(StateReady, "1"))
}

// Reloading tells the service manager that the service is reloading its
// configuration. Call Ready once done.
func (n *Notifier) Reloading() (bool, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return false, errors.Wrap(err, "failed to read monotonic clock")
	}

	usec := ts.Nano() / int64(time.Microsecond)

	return n.Notify(false,
		journal.F(StateReloading, "1"),
		journal.F(StateMonotonic, strconv.FormatInt(usec, 10)),
	)
}

// Stopping tells the service manager that the service is shutting down.
func (n *Notifier) Stopping() (bool, error) {
	return n.Notify(false, journal.F(StateStopping, "1"))
}

// Watchdog pings the service watchdog.
func (n *Notifier) Watchdog() (bool, error) {
	return n.Notify(false, journal.F(StateWatchdog, "1"))
}

// WatchdogTrigger makes the service manager act as if the watchdog timed out.
func (n *Notifier) WatchdogTrigger() (bool, error) {
	return n.Notify(false, journal.F(StateWatchdog, "trigger"))
}

// Status sets the free-form status text shown for the service.
func (n *Notifier) Status(text string) (bool, error) {
	return n.Notify(false, journal.F(StateStatus, text))
}

// MainPID tells the service manager which process is the main one.
func (n *Notifier) MainPID(pid int) (bool, error) {
	return n.Notify(false, journal.IntField(StateMainPID, pid))
}

// Errno reports the errno the service failed with.
func (n *Notifier) Errno(errno systemd.Errno) (bool, error) {
	return n.Notify(false, journal.IntField(StateErrno, int(errno)))
}

// ExtendTimeout asks the service manager to extend the current startup,
// runtime or shutdown timeout to d from now.
func (n *Notifier) ExtendTimeout(d time.Duration) (bool, error) {
	usec := d / time.Microsecond
	return n.Notify(false, journal.F(StateExtendTimeout, strconv.FormatInt(int64(usec), 10)))
}

// Notify calls Default.Notify.
func Notify(unsetEnv bool, fields ...journal.Field) (bool, error) {
	return Default.Notify(unsetEnv, fields...)
}

// Ready calls Default.Ready.
func Ready() (bool, error) { return Default.Ready() }

// Reloading calls Default.Reloading.
func Reloading() (bool, error) { return Default.Reloading() }

// Stopping calls Default.Stopping.
func Stopping() (bool, error) { return Default.Stopping() }

// Watchdog calls Default.Watchdog.
func Watchdog() (bool, error) { return Default.Watchdog() }

// WatchdogTrigger calls Default.WatchdogTrigger.
func WatchdogTrigger() (bool, error) { return Default.WatchdogTrigger() }

// Status calls Default.Status.
func Status(text string) (bool, error) { return Default.Status(text) }

// MainPID calls Default.MainPID.
func MainPID(pid int) (bool, error) { return Default.MainPID(pid) }

// Errno calls Default.Errno.
func Errno(errno systemd.Errno) (bool, error) { return Default.Errno(errno) }

// ExtendTimeout calls Default.ExtendTimeout.
func ExtendTimeout(d time.Duration) (bool, error) { return Default.ExtendTimeout(d) }
