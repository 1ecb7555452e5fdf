// Package ffi declares the native journal and service notification entry
// points. Each method mirrors one libsystemd function: arguments are
// NUL-terminated strings or iovecs, and the result is a signed integer where a
// negative value is a negated errno.
//
// Two backends implement the entry points. Socket speaks the journald native
// protocol and the notification protocol directly and needs no C toolchain;
// it is the default. Libsystemd calls into libsystemd through cgo and is
// selected with the libsystemd build tag.
//
// Applications should use packages journal and daemon instead, which marshal
// arguments with package systemd and translate results with systemd.Try.
package ffi

import (
	"golang.org/x/sys/unix"
)

// Journal is the set of sd-journal write entry points.
type Journal interface {
	// Print submits message at the given priority. It corresponds to
	// sd_journal_print(priority, "%s", message).
	Print(priority int32, message *byte) int32
	// Send submits one entry made of the given "KEY=VALUE" strings. The list
	// is terminated by a nil pointer, like the variadic arguments of
	// sd_journal_send.
	Send(fields []*byte) int32
	// Sendv submits one entry made of the given "KEY=VALUE" buffers. It
	// corresponds to sd_journal_sendv.
	Sendv(iov []unix.Iovec) int32
	// PrintWithLocation submits message with source location fields. file and
	// line are already tagged ("CODE_FILE=...", "CODE_LINE=..."), function is
	// the bare function name. Its status is discarded.
	PrintWithLocation(priority int32, file, line, function, message *byte)
}

// Notifier is the sd-daemon notification entry point.
type Notifier interface {
	// Notify sends state, newline-separated "KEY=VALUE" assignments, to the
	// service manager. It returns 0 if no notification socket is configured and
	// a positive value if the notification was sent. If unsetEnvironment is
	// non-zero, NOTIFY_SOCKET is removed from the environment afterwards.
	Notify(unsetEnvironment int32, state *byte) int32
}

// Native is a backend implementing every entry point.
type Native interface {
	Journal
	Notifier
}

var native = newNative()

// Default is the Journal backend used by package journal.
var Default Journal = native

// DefaultNotifier is the Notifier backend used by package daemon.
var DefaultNotifier Notifier = native

const maxPriority = 7

func validPriority(priority int32) bool {
	return priority >= 0 && priority <= maxPriority
}
