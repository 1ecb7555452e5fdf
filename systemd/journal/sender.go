// Package journal writes entries to and reads entries from the systemd
// journal.
//
// Writing goes through a Sender, which marshals its arguments, makes exactly
// one native call and translates the result. Nothing is buffered or retried.
// The package-level functions use Default, which is backed by ffi.Default.
//
// Reading goes through Journal, a cursor into the journal obtained with Open
// and released with Close.
package journal

import (
	"fmt"
	"runtime"
	"strconv"

	"git.unix.lgbt/diamondburned/sdbind/systemd"
	"git.unix.lgbt/diamondburned/sdbind/systemd/ffi"
	"github.com/pkg/errors"
)

// Logger is the part of Sender applications usually depend on.
type Logger interface {
	Log(p Priority, msg string) error
	SendFields(fields ...Field) error
}

// Sender writes entries through a set of native journal entry points. It
// holds no state of its own and is safe for concurrent use if the backend is.
type Sender struct {
	native ffi.Journal
}

var _ Logger = (*Sender)(nil)

// Default is the Sender used by the package-level functions.
var Default = NewSender(ffi.Default)

// NewSender creates a Sender on top of the given backend.
func NewSender(native ffi.Journal) *Sender {
	return &Sender{native}
}

// Log writes msg to the journal at priority p.
func (s *Sender) Log(p Priority, msg string) error {
	if err := p.check(); err != nil {
		return err
	}

	m, err := systemd.CString(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	if _, err := systemd.Try(s.native.Print(int32(p), m)); err != nil {
		return errors.Wrap(err, "failed to print to journal")
	}

	return nil
}

// Logf formats a message and writes it with Log.
func (s *Sender) Logf(p Priority, format string, v ...interface{}) error {
	return s.Log(p, fmt.Sprintf(format, v...))
}

// SendFields writes a single entry made of fields, in order, with the
// vectored native call. Values may hold arbitrary bytes, including newlines
// and NULs.
func (s *Sender) SendFields(fields ...Field) error {
	bufs := make([][]byte, len(fields))

	for i, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		bufs[i] = f.Bytes()
	}

	_, err := systemd.Try(s.native.Sendv(systemd.Iovecs(bufs)))
	runtime.KeepAlive(bufs)

	if err != nil {
		return errors.Wrap(err, "failed to send fields to journal")
	}

	return nil
}

// Send writes a single entry made of fields with the NUL-terminated native
// call. Unlike SendFields, values may not contain NUL bytes.
func (s *Sender) Send(fields ...Field) error {
	strs := make([]string, len(fields))

	for i, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		strs[i] = f.String()
	}

	ptrs, err := systemd.CStrings(strs)
	if err != nil {
		return errors.Wrap(err, "failed to marshal fields")
	}

	if _, err := systemd.Try(s.native.Send(ptrs)); err != nil {
		return errors.Wrap(err, "failed to send to journal")
	}

	return nil
}

// LogAt writes msg with the source location loc attached. The native call
// reports no status, so neither does LogAt: failures, including messages
// that cannot be marshaled, are silently dropped. Use Sink to observe errors.
func (s *Sender) LogAt(loc Location, p Priority, msg string) {
	m, err := systemd.CString(msg)
	if err != nil {
		return
	}

	file, err := systemd.CharOrNull(loc.tagged(FieldCodeFile, loc.File))
	if err != nil {
		return
	}

	var line *byte
	if loc.Line > 0 {
		line, err = systemd.CString(FieldCodeLine + "=" + strconv.Itoa(loc.Line))
		if err != nil {
			return
		}
	}

	fn, err := systemd.CharOrNull(optional(loc.Func))
	if err != nil {
		return
	}

	s.native.PrintWithLocation(int32(p), file, line, fn, m)
}

// Sink writes msg with MESSAGE, PRIORITY and the CODE_* fields of loc. It is a
// SinkFunc and the default sink of JournalLog.
func (s *Sender) Sink(p Priority, loc Location, msg string) error {
	if err := p.check(); err != nil {
		return err
	}

	fields := make([]Field, 0, 5)
	fields = append(fields,
		Field{FieldMessage, msg},
		IntField(FieldPriority, int(p)),
	)
	fields = append(fields, loc.Fields()...)

	return s.SendFields(fields...)
}

// Log writes msg to the journal using Default.
func Log(p Priority, msg string) error {
	return Default.Log(p, msg)
}

// Logf formats and writes a message to the journal using Default.
func Logf(p Priority, format string, v ...interface{}) error {
	return Default.Logf(p, format, v...)
}

// SendFields writes an entry to the journal using Default.
func SendFields(fields ...Field) error {
	return Default.SendFields(fields...)
}

// Send writes an entry to the journal using Default.
func Send(fields ...Field) error {
	return Default.Send(fields...)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
