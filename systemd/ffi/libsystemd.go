//go:build libsystemd

package ffi

/*
#cgo pkg-config: libsystemd
#define SD_JOURNAL_SUPPRESS_LOCATION
#include <stdlib.h>
#include <string.h>
#include <sys/uio.h>
#include <systemd/sd-daemon.h>
#include <systemd/sd-journal.h>

static int sdbind_journal_print(int priority, const char *message) {
	return sd_journal_print(priority, "%s", message);
}

static void sdbind_journal_print_with_location(int priority, const char *file,
	const char *line, const char *func, const char *message) {
	sd_journal_print_with_location(priority, file, line, func, "%s", message);
}
*/
import "C"

import (
	"unsafe"

	"git.unix.lgbt/diamondburned/sdbind/systemd"
	"golang.org/x/sys/unix"
)

// Libsystemd implements the native entry points with libsystemd.
type Libsystemd struct{}

var _ Native = Libsystemd{}

func newNative() Native { return Libsystemd{} }

// cstr copies a NUL-terminated Go-owned string into C memory. The caller
// frees the result.
func cstr(p *byte) *C.char {
	if p == nil {
		return nil
	}
	return C.CString(systemd.GoString(p))
}

// Print implements Journal.
func (Libsystemd) Print(priority int32, message *byte) int32 {
	if message == nil {
		return -int32(unix.EINVAL)
	}

	m := cstr(message)
	defer C.free(unsafe.Pointer(m))

	return int32(C.sdbind_journal_print(C.int(priority), m))
}

// Send implements Journal. sd_journal_send is variadic, which cgo cannot call,
// so the strings are submitted through sd_journal_sendv instead. Both produce
// the same entry.
func (l Libsystemd) Send(fields []*byte) int32 {
	bufs := make([][]byte, 0, len(fields))
	for _, p := range fields {
		if p == nil {
			break
		}
		bufs = append(bufs, []byte(systemd.GoString(p)))
	}

	return l.Sendv(systemd.Iovecs(bufs))
}

// Sendv implements Journal. The iovecs and their buffers are copied into C
// memory, since cgo forbids passing Go memory that holds Go pointers.
func (Libsystemd) Sendv(iov []unix.Iovec) int32 {
	if len(iov) == 0 {
		return -int32(unix.EINVAL)
	}

	civ := (*C.struct_iovec)(C.malloc(C.size_t(len(iov)) * C.sizeof_struct_iovec))
	defer C.free(unsafe.Pointer(civ))

	cv := unsafe.Slice(civ, len(iov))

	for i, v := range iov {
		b := systemd.GoBytes(v)

		base := C.malloc(C.size_t(len(b) + 1))
		defer C.free(base)

		if len(b) > 0 {
			C.memcpy(base, unsafe.Pointer(&b[0]), C.size_t(len(b)))
		}

		cv[i].iov_base = base
		cv[i].iov_len = C.size_t(len(b))
	}

	return int32(C.sd_journal_sendv(civ, C.int(len(iov))))
}

// PrintWithLocation implements Journal.
func (Libsystemd) PrintWithLocation(priority int32, file, line, function, message *byte) {
	if message == nil {
		return
	}

	f := cstr(file)
	defer C.free(unsafe.Pointer(f))
	l := cstr(line)
	defer C.free(unsafe.Pointer(l))
	fn := cstr(function)
	defer C.free(unsafe.Pointer(fn))
	m := cstr(message)
	defer C.free(unsafe.Pointer(m))

	C.sdbind_journal_print_with_location(C.int(priority), f, l, fn, m)
}

// Notify implements Notifier.
func (Libsystemd) Notify(unsetEnvironment int32, state *byte) int32 {
	if state == nil {
		return -int32(unix.EINVAL)
	}

	s := cstr(state)
	defer C.free(unsafe.Pointer(s))

	return int32(C.sd_notify(C.int(unsetEnvironment), s))
}
