// Package zapjournal provides a zap core writing to the systemd journal.
package zapjournal

import (
	"fmt"
	"sort"

	"git.unix.lgbt/diamondburned/sdbind/systemd/journal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Extra fields written for zap entry metadata.
const (
	FieldLogger     = "LOGGER"
	FieldStacktrace = "STACKTRACE"
)

// Core is a zapcore.Core writing each entry as one journal entry. Context
// fields are added under normalized names.
type Core struct {
	zapcore.LevelEnabler
	logger journal.Logger
	fields []journal.Field
}

var _ zapcore.Core = (*Core)(nil)

// NewCore creates a core writing entries enabled by enab to logger. A nil
// logger means journal.Default.
func NewCore(enab zapcore.LevelEnabler, logger journal.Logger) *Core {
	if logger == nil {
		logger = journal.Default
	}

	return &Core{
		LevelEnabler: enab,
		logger:       logger,
	}
}

// New creates a zap.Logger writing to the journal only.
func New(enab zapcore.LevelEnabler, opts ...zap.Option) *zap.Logger {
	return zap.New(NewCore(enab, nil), opts...)
}

// With implements zapcore.Core.
func (c *Core) With(fs []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = appendFields(append([]journal.Field(nil), c.fields...), fs)
	return &clone
}

// Check implements zapcore.Core.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write implements zapcore.Core.
func (c *Core) Write(ent zapcore.Entry, fs []zapcore.Field) error {
	fields := make([]journal.Field, 0, 2+len(c.fields)+len(fs)+5)
	fields = append(fields,
		journal.F(journal.FieldMessage, ent.Message),
		journal.IntField(journal.FieldPriority, int(Priority(ent.Level))),
	)

	fields = append(fields, c.fields...)
	fields = appendFields(fields, fs)

	if ent.LoggerName != "" {
		fields = append(fields, journal.F(FieldLogger, ent.LoggerName))
	}

	if ent.Caller.Defined {
		loc := journal.Location{
			File: ent.Caller.File,
			Line: ent.Caller.Line,
			Func: ent.Caller.Function,
		}
		fields = append(fields, loc.Fields()...)
	}

	if ent.Stack != "" {
		fields = append(fields, journal.F(FieldStacktrace, ent.Stack))
	}

	return c.logger.SendFields(fields...)
}

// Sync implements zapcore.Core. Entries are never buffered.
func (c *Core) Sync() error {
	return nil
}

// Priority maps a zap level to a journal priority.
func Priority(level zapcore.Level) journal.Priority {
	switch level {
	case zapcore.DebugLevel:
		return journal.PriDebug
	case zapcore.InfoLevel:
		return journal.PriInfo
	case zapcore.WarnLevel:
		return journal.PriWarning
	case zapcore.ErrorLevel:
		return journal.PriErr
	case zapcore.DPanicLevel:
		return journal.PriCrit
	case zapcore.PanicLevel:
		return journal.PriAlert
	case zapcore.FatalLevel:
		return journal.PriEmerg
	default:
		if level < zapcore.DebugLevel {
			return journal.PriDebug
		}
		return journal.PriInfo
	}
}

// DataPrefix is prepended to context keys that would otherwise overwrite a
// field the core writes itself, so zap.String("priority", ...) becomes
// DATA_PRIORITY.
const DataPrefix = "DATA_"

var reserved = map[string]bool{
	journal.FieldMessage:  true,
	journal.FieldPriority: true,
	journal.FieldCodeFile: true,
	journal.FieldCodeLine: true,
	journal.FieldCodeFunc: true,
	FieldLogger:           true,
	FieldStacktrace:       true,
}

// appendFields encodes fs and appends the result sorted by name.
func appendFields(dst []journal.Field, fs []zapcore.Field) []journal.Field {
	if len(fs) == 0 {
		return dst
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fs {
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
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

		dst = append(dst, journal.F(name, valueString(enc.Fields[k])))
	}

	return dst
}

func valueString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
