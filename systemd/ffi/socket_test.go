package ffi

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"git.unix.lgbt/diamondburned/sdbind/systemd"
	"golang.org/x/sys/unix"
)

// listenGram creates a datagram socket in a temporary directory that records
// what the backend sends.
func listenGram(t *testing.T) (string, *net.UnixConn) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "socket")

	l, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatal("failed to listen:", err)
	}
	t.Cleanup(func() { l.Close() })

	return path, l
}

func readGram(t *testing.T, l *net.UnixConn) string {
	t.Helper()

	l.SetReadDeadline(time.Now().Add(5 * time.Second))

	buf := make([]byte, 65536)
	n, _, err := l.ReadFromUnix(buf)
	if err != nil {
		t.Fatal("failed to read datagram:", err)
	}

	return string(buf[:n])
}

func mustCString(t *testing.T, s string) *byte {
	t.Helper()

	p, err := systemd.CString(s)
	if err != nil {
		t.Fatal("failed to convert string:", err)
	}
	return p
}

func TestSocketJournal(t *testing.T) {
	path, l := listenGram(t)

	s := &Socket{Path: path}
	t.Cleanup(func() { s.Close() })

	t.Run("print", func(t *testing.T) {
		if ret := s.Print(6, mustCString(t, "service started")); ret != 0 {
			t.Fatalf("Print returned %d", ret)
		}

		got := readGram(t, l)
		if expect := "PRIORITY=6\nMESSAGE=service started\n"; got != expect {
			t.Errorf("got %q, expected %q", got, expect)
		}
	})

	t.Run("send", func(t *testing.T) {
		fields, err := systemd.CStrings([]string{"MESSAGE=hi", "FOO=bar"})
		if err != nil {
			t.Fatal(err)
		}

		if ret := s.Send(fields); ret != 0 {
			t.Fatalf("Send returned %d", ret)
		}

		got := readGram(t, l)
		if expect := "MESSAGE=hi\nFOO=bar\n"; got != expect {
			t.Errorf("got %q, expected %q", got, expect)
		}
	})

	t.Run("sendv multiline", func(t *testing.T) {
		iov := systemd.Iovecs([][]byte{
			[]byte("PRIORITY=3"),
			[]byte("MESSAGE=line 1\nline 2"),
		})

		if ret := s.Sendv(iov); ret != 0 {
			t.Fatalf("Sendv returned %d", ret)
		}

		value := "line 1\nline 2"

		var size [8]byte
		binary.LittleEndian.PutUint64(size[:], uint64(len(value)))

		expect := "PRIORITY=3\nMESSAGE\n" + string(size[:]) + value + "\n"
		if got := readGram(t, l); got != expect {
			t.Errorf("got %q, expected %q", got, expect)
		}
	})

	t.Run("print with location", func(t *testing.T) {
		s.PrintWithLocation(4,
			mustCString(t, "CODE_FILE=main.go"),
			mustCString(t, "CODE_LINE=42"),
			mustCString(t, "main.main"),
			mustCString(t, "careful"),
		)

		got := readGram(t, l)
		expect := "PRIORITY=4\nMESSAGE=careful\nCODE_FILE=main.go\nCODE_LINE=42\nCODE_FUNC=main.main\n"
		if got != expect {
			t.Errorf("got %q, expected %q", got, expect)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		einval := -int32(unix.EINVAL)

		if ret := s.Print(8, mustCString(t, "x")); ret != einval {
			t.Errorf("Print(8) = %d, expected %d", ret, einval)
		}
		if ret := s.Print(6, nil); ret != einval {
			t.Errorf("Print(nil) = %d, expected %d", ret, einval)
		}
		if ret := s.Sendv(systemd.Iovecs([][]byte{[]byte("NOEQUALS")})); ret != einval {
			t.Errorf("Sendv(NOEQUALS) = %d, expected %d", ret, einval)
		}
		if ret := s.Sendv(nil); ret != einval {
			t.Errorf("Sendv(nil) = %d, expected %d", ret, einval)
		}
	})
}

func TestSocketNoJournal(t *testing.T) {
	s := &Socket{Path: filepath.Join(t.TempDir(), "missing")}
	t.Cleanup(func() { s.Close() })

	ret := s.Print(6, mustCString(t, "nobody listens"))
	if ret >= 0 {
		t.Fatalf("Print returned %d, expected an error", ret)
	}

	if _, err := systemd.Try(ret); !os.IsNotExist(err) && err != unix.ECONNREFUSED {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSocketNotify(t *testing.T) {
	s := &Socket{}

	t.Run("unset", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", "")

		if ret := s.Notify(0, mustCString(t, "READY=1")); ret != 0 {
			t.Errorf("Notify returned %d, expected 0", ret)
		}
	})

	t.Run("path", func(t *testing.T) {
		path, l := listenGram(t)
		t.Setenv("NOTIFY_SOCKET", path)

		if ret := s.Notify(0, mustCString(t, "READY=1\nSTATUS=up")); ret != 1 {
			t.Fatalf("Notify returned %d, expected 1", ret)
		}

		if got := readGram(t, l); got != "READY=1\nSTATUS=up" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("abstract", func(t *testing.T) {
		name := "@sdbind-test-" + strconv.Itoa(os.Getpid())

		l, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: name, Net: "unixgram"})
		if err != nil {
			t.Skip("abstract sockets unavailable:", err)
		}
		defer l.Close()

		t.Setenv("NOTIFY_SOCKET", name)

		if ret := s.Notify(0, mustCString(t, "WATCHDOG=1")); ret != 1 {
			t.Fatalf("Notify returned %d, expected 1", ret)
		}

		if got := readGram(t, l); got != "WATCHDOG=1" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("unset environment", func(t *testing.T) {
		path, l := listenGram(t)
		t.Setenv("NOTIFY_SOCKET", path)

		if ret := s.Notify(1, mustCString(t, "STOPPING=1")); ret != 1 {
			t.Fatalf("Notify returned %d, expected 1", ret)
		}
		readGram(t, l)

		if v, ok := os.LookupEnv("NOTIFY_SOCKET"); ok {
			t.Errorf("NOTIFY_SOCKET still set to %q", v)
		}
	})

	t.Run("unrelated variables malformed", func(t *testing.T) {
		path, l := listenGram(t)
		t.Setenv("NOTIFY_SOCKET", path)
		t.Setenv("WATCHDOG_PID", "not-a-pid")
		t.Setenv("LISTEN_FDS", "many")

		if ret := s.Notify(0, mustCString(t, "READY=1")); ret != 1 {
			t.Fatalf("Notify returned %d, expected 1", ret)
		}

		if got := readGram(t, l); got != "READY=1" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("bad address", func(t *testing.T) {
		t.Setenv("NOTIFY_SOCKET", "relative/socket")

		if ret := s.Notify(0, mustCString(t, "READY=1")); ret != -int32(unix.EAFNOSUPPORT) {
			t.Errorf("Notify returned %d, expected -EAFNOSUPPORT", ret)
		}
	})
}
