package journal

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

type errWriter struct{ err error }

func (w errWriter) Write(b []byte) (int, error) { return 0, w.err }

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewTextLogger(&buf)

	must(t, l.Log(PriWarning, "disk almost full"))
	must(t, l.SendFields(
		F("UNIT", "a b.service"),
		F(FieldMessage, "started"),
		IntField(FieldPriority, int(PriNotice)),
	))
	must(t, l.SendFields(F("ONLY", "x")))

	expect := "" +
		"warning: disk almost full\n" +
		"notice: started UNIT=\"a b.service\"\n" +
		"info:  ONLY=\"x\"\n"

	if got := buf.String(); got != expect {
		t.Errorf("output = %q, expected %q", got, expect)
	}

	if err := l.Log(Priority(8), "x"); err == nil {
		t.Error("priority 8 accepted")
	}
	if err := l.SendFields(F("bad", "x")); !errors.Is(err, ErrInvalidField) {
		t.Error("expected ErrInvalidField, got", err)
	}
}

func TestMultiLogger(t *testing.T) {
	stub := &stubJournal{}
	failing := NewTextLogger(errWriter{errors.New("disk on fire")})

	var buf bytes.Buffer
	m := MultiLogger(NewSender(stub), failing, NewTextLogger(&buf))

	err := m.Log(PriInfo, "hello")
	if err == nil || !errors.Is(err, failing.w.(errWriter).err) {
		t.Fatal("expected the failing logger's error, got", err)
	}

	// Every logger ran regardless.
	if len(stub.calls) != 1 {
		t.Errorf("sender called %d times", len(stub.calls))
	}
	if buf.String() != "info: hello\n" {
		t.Errorf("text output = %q", buf.String())
	}

	buf.Reset()
	m = MultiLogger(NewSender(stub), NewTextLogger(&buf))

	if err := m.SendFields(F(FieldMessage, "x")); err != nil {
		t.Fatal("unexpected error:", err)
	}

	calls := []string{"print", "sendv"}
	got := make([]string, len(stub.calls))
	for i, call := range stub.calls {
		got[i] = call.Func
	}

	if !reflect.DeepEqual(got, calls) {
		t.Errorf("native calls = %q, expected %q", got, calls)
	}
}
