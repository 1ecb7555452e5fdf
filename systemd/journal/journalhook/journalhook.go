// Package journalhook sends logrus entries to the systemd journal.
package journalhook

import (
	"fmt"
	"sort"

	"git.unix.lgbt/diamondburned/sdbind/systemd/journal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ssgreg/journald"
	"golang.org/x/sys/unix"
)

// Hook is a logrus.Hook writing each entry as one journal entry. The entry
// message becomes MESSAGE, its level becomes PRIORITY and its data fields are
// added under normalized names.
type Hook struct {
	logger journal.Logger
	fields []journal.Field
	levels []logrus.Level
}

var _ logrus.Hook = (*Hook)(nil)

// New creates a hook writing to logger with the given fields added to every
// entry. A nil logger means journal.Default.
func New(logger journal.Logger, fields map[string]interface{}) *Hook {
	if logger == nil {
		logger = journal.Default
	}

	return &Hook{
		logger: logger,
		fields: appendData(nil, fields),
		levels: logrus.AllLevels,
	}
}

// Install adds a new hook to logger.
func Install(logger *logrus.Logger, sender journal.Logger, fields map[string]interface{}) {
	logger.AddHook(New(sender, fields))
}

// SetLevels restricts the hook to the given levels.
func (h *Hook) SetLevels(levels ...logrus.Level) {
	h.levels = levels
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(entry *logrus.Entry) error {
	fields := make([]journal.Field, 0, 2+len(h.fields)+len(entry.Data)+3)
	fields = append(fields,
		journal.F(journal.FieldMessage, entry.Message),
		journal.IntField(journal.FieldPriority, int(Priority(entry.Level))),
	)

	fields = append(fields, h.fields...)
	fields = appendData(fields, entry.Data)

	if entry.HasCaller() {
		loc := journal.Location{
			File: entry.Caller.File,
			Line: entry.Caller.Line,
			Func: entry.Caller.Function,
		}
		fields = append(fields, loc.Fields()...)
	}

	return h.logger.SendFields(fields...)
}

// Priority maps a logrus level to a journal priority.
func Priority(level logrus.Level) journal.Priority {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return journal.PriDebug
	case logrus.InfoLevel:
		return journal.PriInfo
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.FatalLevel:
		return journal.PriCrit
	case logrus.PanicLevel:
		return journal.PriEmerg
	default:
		return journal.PriInfo
	}
}

// DataPrefix is prepended to data keys that would otherwise overwrite a field
// the hook writes itself, so "message" becomes DATA_MESSAGE.
const DataPrefix = "DATA_"

var reserved = map[string]bool{
	journal.FieldMessage:  true,
	journal.FieldPriority: true,
	journal.FieldCodeFile: true,
	journal.FieldCodeLine: true,
	journal.FieldCodeFunc: true,
}

// appendData appends data sorted by key. Keys that normalize to nothing are
// dropped.
func appendData(fields []journal.Field, data map[string]interface{}) []journal.Field {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := journal.NormalizeFieldName(k)
		if name == "" {
			continue
		}
		if reserved[name] {
			name = DataPrefix + name
		}

		fields = append(fields, journal.F(name, valueString(data[k])))
	}

	return fields
}

func valueString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}

// JournaldWriter lets code written against github.com/ssgreg/journald write
// through a journal.Logger instead.
type JournaldWriter struct {
	Logger journal.Logger
}

// Send writes msg at priority p with the given fields, like journald.Send.
func (w JournaldWriter) Send(msg string, p journald.Priority, fields map[string]interface{}) error {
	logger := w.Logger
	if logger == nil {
		logger = journal.Default
	}

	pri := PriorityFromJournald(p)
	if !pri.Valid() {
		return errors.Wrapf(unix.EINVAL, "bad priority %d", p)
	}

	entry := make([]journal.Field, 0, 2+len(fields))
	entry = append(entry,
		journal.F(journal.FieldMessage, msg),
		journal.IntField(journal.FieldPriority, int(pri)),
	)

	return logger.SendFields(appendData(entry, fields)...)
}

// PriorityFromJournald converts a journald priority. Values outside the
// syslog range give a Priority that is not Valid.
func PriorityFromJournald(p journald.Priority) journal.Priority {
	if p < journald.PriorityEmerg || p > journald.PriorityDebug {
		return journal.Priority(0xFF)
	}
	return journal.Priority(p)
}
