package journal

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Address fields journalctl adds to every JSON entry.
const (
	fieldCursor    = "__CURSOR"
	fieldRealtime  = "__REALTIME_TIMESTAMP"
	fieldMonotonic = "__MONOTONIC_TIMESTAMP"
	fieldBootID    = "_BOOT_ID"
)

// ErrBadEntry is returned for an entry that cannot be decoded.
var ErrBadEntry = errors.New("malformed journal entry")

// parseEntry decodes one entry in journalctl's JSON output format. Values are
// strings, arrays of byte values for binary data, or arrays of either for
// fields that occur more than once, in which case the last value wins.
func parseEntry(line []byte) (*Entry, error) {
	if !gjson.ValidBytes(line) {
		return nil, errors.Wrap(ErrBadEntry, "invalid JSON")
	}

	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return nil, errors.Wrap(ErrBadEntry, "not an object")
	}

	entry := &Entry{Fields: make(map[string]string, 32)}
	var err error

	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()

		switch name {
		case fieldCursor:
			entry.Cursor = value.String()
			return true
		case fieldRealtime:
			var usec int64
			usec, err = parseUsec(name, value)
			entry.Realtime = time.UnixMicro(usec)
			return err == nil
		case fieldMonotonic:
			var usec int64
			usec, err = parseUsec(name, value)
			entry.Monotonic = time.Duration(usec) * time.Microsecond
			return err == nil
		case fieldBootID:
			entry.BootID = value.String()
		}

		// Remaining address fields are not part of the entry data.
		if strings.HasPrefix(name, "__") {
			return true
		}

		entry.Fields[name] = fieldValue(value)
		return true
	})

	if err != nil {
		return nil, err
	}

	return entry, nil
}

func parseUsec(name string, value gjson.Result) (int64, error) {
	usec, err := strconv.ParseInt(value.String(), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadEntry, "bad %s %q", name, value.String())
	}
	return usec, nil
}

func fieldValue(value gjson.Result) string {
	switch {
	case value.Type == gjson.Null:
		return ""
	case value.IsArray():
		elems := value.Array()
		if len(elems) == 0 {
			return ""
		}

		if elems[0].Type == gjson.Number {
			b := make([]byte, len(elems))
			for i, e := range elems {
				b[i] = byte(e.Uint())
			}
			return string(b)
		}

		return fieldValue(elems[len(elems)-1])
	default:
		return value.String()
	}
}
