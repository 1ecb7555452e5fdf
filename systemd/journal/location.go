package journal

import (
	"fmt"
	"runtime"
)

// Location describes where a message was logged from. It is passed to sinks
// explicitly; use Caller to fill it in from the call stack.
type Location struct {
	File string
	Line int
	Func string
}

// Caller returns the location of the caller of the function calling Caller,
// offset by skip frames. Caller(0) describes the line calling Caller.
func Caller(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}

	loc := Location{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		loc.Func = fn.Name()
	}

	return loc
}

// Fields returns the CODE_FILE, CODE_LINE and CODE_FUNC fields for the
// location, leaving out the empty ones.
func (l Location) Fields() []Field {
	fields := make([]Field, 0, 3)

	if l.File != "" {
		fields = append(fields, Field{FieldCodeFile, l.File})
	}
	if l.Line > 0 {
		fields = append(fields, IntField(FieldCodeLine, l.Line))
	}
	if l.Func != "" {
		fields = append(fields, Field{FieldCodeFunc, l.Func})
	}

	return fields
}

// tagged returns "key=value", or nil if value is empty.
func (l Location) tagged(key, value string) *string {
	if value == "" {
		return nil
	}
	s := key + "=" + value
	return &s
}

// SinkFunc receives a formatted message along with its priority and location.
type SinkFunc func(p Priority, loc Location, msg string) error

// LogWith formats a message and hands it to sink. It does not filter by
// priority; deciding what is enabled is up to the caller.
func LogWith(sink SinkFunc, p Priority, loc Location, format string, v ...interface{}) error {
	return sink(p, loc, fmt.Sprintf(format, v...))
}

// JournalLog is LogWith using Default.Sink.
func JournalLog(p Priority, loc Location, format string, v ...interface{}) error {
	return LogWith(Default.Sink, p, loc, format, v...)
}
