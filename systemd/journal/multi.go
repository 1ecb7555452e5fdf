package journal

import (
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// multiLogger combines multiple loggers.
type multiLogger []Logger

// MultiLogger creates a Logger that writes every entry to all of ls in order.
// Every logger is written to even if one fails; the first error is returned.
func MultiLogger(ls ...Logger) Logger {
	return multiLogger(ls)
}

func (m multiLogger) Log(p Priority, msg string) error {
	var firstErr error
	for _, l := range m {
		if err := l.Log(p, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m multiLogger) SendFields(fields ...Field) error {
	var firstErr error
	for _, l := range m {
		if err := l.SendFields(fields...); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// TextLogger is a Logger writing human-readable lines instead of journal
// entries, such as to mirror entries on a terminal. Writes are concurrently
// safe, and each entry is written with a single Write call.
type TextLogger struct {
	mu sync.Mutex
	w  io.Writer
}

var _ Logger = (*TextLogger)(nil)

// NewTextLogger creates a new TextLogger writing to w.
func NewTextLogger(w io.Writer) *TextLogger {
	return &TextLogger{w: w}
}

// Log writes "<priority>: msg".
func (l *TextLogger) Log(p Priority, msg string) error {
	if err := p.check(); err != nil {
		return err
	}

	return l.write([]byte(p.String() + ": " + msg + "\n"))
}

// SendFields writes MESSAGE like Log if present, followed by the other fields
// as quoted KEY=VALUE pairs.
func (l *TextLogger) SendFields(fields ...Field) error {
	var buf bytes.Buffer
	buf.Grow(256)

	p, msg := PriInfo, ""
	var rest []Field

	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}

		switch f.Key {
		case FieldMessage:
			msg = f.Value
		case FieldPriority:
			if v, err := ParsePriority(f.Value); err == nil {
				p = v
			}
		default:
			rest = append(rest, f)
		}
	}

	buf.WriteString(p.String())
	buf.WriteString(": ")
	buf.WriteString(msg)

	for _, f := range rest {
		buf.WriteByte(' ')
		buf.WriteString(f.Key)
		buf.WriteByte('=')
		buf.WriteString(strconv.Quote(f.Value))
	}

	buf.WriteByte('\n')

	return l.write(buf.Bytes())
}

func (l *TextLogger) write(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(b); err != nil {
		return errors.Wrap(err, "failed to write entry")
	}

	return nil
}
