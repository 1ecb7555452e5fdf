package systemd

import (
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrEmbeddedNUL is returned when a string that must cross the native boundary
// as a C string contains a NUL byte. Such strings are rejected rather than
// truncated.
var ErrEmbeddedNUL = errors.New("string contains embedded NUL byte")

// CString returns a pointer to a NUL-terminated copy of s. The copy is owned
// by the Go heap and stays alive for as long as the returned pointer is
// reachable, which covers any native call it is passed to.
func CString(s string) (*byte, error) {
	if i := strings.IndexByte(s, 0); i != -1 {
		return nil, errors.Wrapf(ErrEmbeddedNUL, "at offset %d", i)
	}

	return unix.BytePtrFromString(s)
}

// CharOrNull converts an optional string. A nil s becomes a nil pointer;
// anything else is converted with CString.
func CharOrNull(s *string) (*byte, error) {
	if s == nil {
		return nil, nil
	}

	return CString(*s)
}

// CStrings converts ss into a list of NUL-terminated strings followed by a
// terminating nil pointer, which is the shape sd_journal_send expects for its
// variadic arguments.
func CStrings(ss []string) ([]*byte, error) {
	ptrs := make([]*byte, 0, len(ss)+1)

	for i, s := range ss {
		p, err := CString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "string %d", i)
		}
		ptrs = append(ptrs, p)
	}

	return append(ptrs, nil), nil
}

// Iovecs builds one iovec per buffer, in order. The iovecs borrow the buffers:
// they must not be modified until the native call using them returns. Empty
// buffers get a nil base.
func Iovecs(bufs [][]byte) []unix.Iovec {
	iov := make([]unix.Iovec, len(bufs))

	for i, buf := range bufs {
		if len(buf) > 0 {
			iov[i].Base = &buf[0]
		}
		iov[i].SetLen(len(buf))
	}

	return iov
}

// GoString copies the NUL-terminated string at p. A nil p yields an empty
// string.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}

	return unix.BytePtrToString(p)
}

// GoBytes returns the bytes described by an iovec without copying them.
func GoBytes(iov unix.Iovec) []byte {
	if iov.Base == nil || iov.Len == 0 {
		return nil
	}

	return unsafe.Slice(iov.Base, int(iov.Len))
}
