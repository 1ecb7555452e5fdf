// Package systemd holds the two primitives every native call in this module
// goes through: Try, which translates the signed return value of a native
// call, and the marshaling helpers in cstring.go, which build the
// NUL-terminated strings and iovec arrays those calls take.
//
// Calling Convention
//
// Native journal and notification calls return a signed 32-bit integer. A
// negative value is a negated errno; anything else is a call-specific success
// value, usually 0 or a count. Try turns that into a Go value and error:
//
//    n, err := systemd.Try(native.Sendv(iov))
//    if err != nil {
//        return errors.Wrap(err, "failed to send entry")
//    }
//
// The returned error is a unix.Errno, so the standard mapping applies:
// errors.Is(err, os.ErrPermission) holds for EACCES and EPERM, and so on.
//
// Package journal and package daemon are the high-level API; the raw entry
// points live in package ffi and should rarely be needed by applications.
package systemd

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Errno is the error returned for a negative native result. It is the
// platform errno and is opaque to this package.
type Errno = unix.Errno

// Try interprets the result of a single native call. A negative ret yields an
// Errno holding its absolute value; a non-negative ret is returned as is.
func Try(ret int32) (int, error) {
	if ret < 0 {
		// Widen before negating so that math.MinInt32 does not overflow.
		return 0, Errno(-int64(ret))
	}

	return int(ret), nil
}

// ErrnoOf returns the errno carried by err and whether there was one. It is
// the inverse of Try for errors produced on the Go side of a native backend;
// errors that carry no errno map to EIO.
func ErrnoOf(err error) (Errno, bool) {
	if err == nil {
		return 0, false
	}

	var errno Errno
	if errors.As(err, &errno) {
		return errno, true
	}

	return unix.EIO, false
}

// Result converts err into the signed convention returned by native calls:
// 0 for nil, otherwise the negated errno.
func Result(err error) int32 {
	if err == nil {
		return 0
	}

	errno, _ := ErrnoOf(err)
	return -int32(errno)
}
