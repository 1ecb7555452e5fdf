package systemd

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"
)

func TestCharOrNull(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		p, err := CharOrNull(nil)
		if err != nil {
			t.Fatal("unexpected error:", err)
		}
		if p != nil {
			t.Fatal("expected nil pointer")
		}
	})

	t.Run("present", func(t *testing.T) {
		s := "abc"

		p, err := CharOrNull(&s)
		if err != nil {
			t.Fatal("unexpected error:", err)
		}

		b := unsafe.Slice(p, 4)
		if string(b[:3]) != "abc" {
			t.Errorf("content = %q", b[:3])
		}
		if b[3] != 0 {
			t.Errorf("missing NUL terminator, got %q", b[3])
		}
		if GoString(p) != "abc" {
			t.Errorf("GoString = %q", GoString(p))
		}
	})

	t.Run("embedded nul", func(t *testing.T) {
		s := "ab\x00c"

		_, err := CharOrNull(&s)
		if !errors.Is(err, ErrEmbeddedNUL) {
			t.Fatal("expected ErrEmbeddedNUL, got", err)
		}
	})
}

func TestCStrings(t *testing.T) {
	ptrs, err := CStrings([]string{"PRIORITY=3", "MESSAGE=hello"})
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	if len(ptrs) != 3 {
		t.Fatalf("expected 3 pointers, got %d", len(ptrs))
	}
	if ptrs[2] != nil {
		t.Error("list is not nil-terminated")
	}
	if s := GoString(ptrs[0]); s != "PRIORITY=3" {
		t.Errorf("ptrs[0] = %q", s)
	}
	if s := GoString(ptrs[1]); s != "MESSAGE=hello" {
		t.Errorf("ptrs[1] = %q", s)
	}

	if _, err := CStrings([]string{"A=1", "B=\x00"}); !errors.Is(err, ErrEmbeddedNUL) {
		t.Error("expected ErrEmbeddedNUL, got", err)
	}
}

func TestIovecs(t *testing.T) {
	bufs := [][]byte{
		[]byte("PRIORITY=3"),
		[]byte("MESSAGE=hello"),
		nil,
	}

	iov := Iovecs(bufs)
	if len(iov) != 3 {
		t.Fatalf("expected 3 iovecs, got %d", len(iov))
	}

	expect := []string{"PRIORITY=3", "MESSAGE=hello", ""}
	for i, e := range expect {
		if s := string(GoBytes(iov[i])); s != e {
			t.Errorf("iovec %d = %q, expected %q", i, s, e)
		}
		if int(iov[i].Len) != len(e) {
			t.Errorf("iovec %d length = %d, expected %d", i, iov[i].Len, len(e))
		}
	}

	// Views borrow the buffers instead of copying them.
	if iov[0].Base != &bufs[0][0] {
		t.Error("iovec does not point into the source buffer")
	}
}
