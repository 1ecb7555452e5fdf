package journalhook

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"git.unix.lgbt/diamondburned/sdbind/systemd/journal"
	"github.com/sirupsen/logrus"
	"github.com/ssgreg/journald"
	"golang.org/x/sys/unix"
)

// recorder is a journal.Logger keeping every entry sent to it.
type recorder struct {
	entries [][]journal.Field
	err     error
}

var _ journal.Logger = (*recorder)(nil)

func (r *recorder) Log(p journal.Priority, msg string) error {
	return r.SendFields(journal.F("MESSAGE", msg), journal.IntField("PRIORITY", int(p)))
}

func (r *recorder) SendFields(fields ...journal.Field) error {
	r.entries = append(r.entries, fields)
	return r.err
}

func newLogger(hook logrus.Hook) *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	l.Level = logrus.TraceLevel
	l.AddHook(hook)
	return l
}

func TestHookFire(t *testing.T) {
	rec := &recorder{}
	log := newLogger(New(rec, map[string]interface{}{
		"unit": "sdbind.service",
	}))

	log.
		WithField("attempt", 3).
		WithField("http.path", "/ready").
		WithError(errors.New("refused")).
		Warn("failed to connect")

	expect := [][]journal.Field{{
		journal.F("MESSAGE", "failed to connect"),
		journal.F("PRIORITY", "4"),
		journal.F("UNIT", "sdbind.service"),
		journal.F("ATTEMPT", "3"),
		journal.F("ERROR", "refused"),
		journal.F("HTTP_PATH", "/ready"),
	}}

	if !reflect.DeepEqual(rec.entries, expect) {
		t.Errorf("entries = %q, expected %q", rec.entries, expect)
	}
}

func TestHookReservedKeys(t *testing.T) {
	rec := &recorder{}
	log := newLogger(New(rec, map[string]interface{}{
		"code_file": "static.go",
	}))

	log.
		WithField("message", "spoofed").
		WithField("Priority", 0).
		Info("real")

	expect := [][]journal.Field{{
		journal.F("MESSAGE", "real"),
		journal.F("PRIORITY", "6"),
		journal.F("DATA_CODE_FILE", "static.go"),
		journal.F("DATA_PRIORITY", "0"),
		journal.F("DATA_MESSAGE", "spoofed"),
	}}

	if !reflect.DeepEqual(rec.entries, expect) {
		t.Errorf("entries = %q, expected %q", rec.entries, expect)
	}
}

func TestHookCaller(t *testing.T) {
	rec := &recorder{}
	log := newLogger(New(rec, nil))
	log.SetReportCaller(true)

	log.Info("hello")

	if len(rec.entries) != 1 {
		t.Fatalf("%d entries sent", len(rec.entries))
	}

	names := make(map[string]string)
	for _, f := range rec.entries[0] {
		names[f.Key] = f.Value
	}

	for _, key := range []string{"CODE_FILE", "CODE_LINE", "CODE_FUNC"} {
		if names[key] == "" {
			t.Errorf("missing %s in %q", key, rec.entries[0])
		}
	}
}

func TestHookLevels(t *testing.T) {
	rec := &recorder{}
	hook := New(rec, nil)
	hook.SetLevels(logrus.ErrorLevel)

	log := newLogger(hook)
	log.Info("ignored")
	log.Error("kept")

	if len(rec.entries) != 1 || rec.entries[0][0].Value != "kept" {
		t.Errorf("entries = %q", rec.entries)
	}
}

func TestPriority(t *testing.T) {
	var tests = map[logrus.Level]journal.Priority{
		logrus.TraceLevel: journal.PriDebug,
		logrus.DebugLevel: journal.PriDebug,
		logrus.InfoLevel:  journal.PriInfo,
		logrus.WarnLevel:  journal.PriWarning,
		logrus.ErrorLevel: journal.PriErr,
		logrus.FatalLevel: journal.PriCrit,
		logrus.PanicLevel: journal.PriEmerg,
	}

	for level, expect := range tests {
		if p := Priority(level); p != expect {
			t.Errorf("Priority(%v) = %v, expected %v", level, p, expect)
		}
	}
}

func TestJournaldWriter(t *testing.T) {
	rec := &recorder{}
	w := JournaldWriter{Logger: rec}

	err := w.Send("hello", journald.PriorityNotice, map[string]interface{}{
		"_pid":   1,
		"detail": []byte("x"),
	})
	if err != nil {
		t.Fatal("failed to send:", err)
	}

	expect := [][]journal.Field{{
		journal.F("MESSAGE", "hello"),
		journal.F("PRIORITY", "5"),
		journal.F("PID", "1"),
		journal.F("DETAIL", "x"),
	}}

	if !reflect.DeepEqual(rec.entries, expect) {
		t.Errorf("entries = %q, expected %q", rec.entries, expect)
	}

	if err := w.Send("loud", journald.Priority(8), nil); !errors.Is(err, unix.EINVAL) {
		t.Error("expected EINVAL, got", err)
	}
	if len(rec.entries) != 1 {
		t.Errorf("invalid priority reached the logger")
	}
}

func TestPriorityFromJournald(t *testing.T) {
	for p := journald.PriorityEmerg; p <= journald.PriorityDebug; p++ {
		if got := PriorityFromJournald(p); int(got) != int(p) {
			t.Errorf("PriorityFromJournald(%d) = %d", p, got)
		}
	}

	if PriorityFromJournald(-1).Valid() {
		t.Error("negative priority is valid")
	}
}
