package ffi

import (
	"net"
	"os"
	"runtime"
	"strconv"
	"sync"

	"git.unix.lgbt/diamondburned/sdbind/systemd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// JournalSocket is the path of journald's native protocol socket.
const JournalSocket = "/run/systemd/journal/socket"

// Socket implements the native entry points by talking to journald and the
// service manager over their datagram sockets. A zero-value Socket is ready to
// use and is safe for concurrent use.
type Socket struct {
	// Path overrides JournalSocket if not empty. It must be set before the
	// first call.
	Path string

	once    sync.Once
	conn    *net.UnixConn
	connErr error
}

var _ Native = (*Socket)(nil)

// Print implements Journal.
func (s *Socket) Print(priority int32, message *byte) int32 {
	if !validPriority(priority) || message == nil {
		return -int32(unix.EINVAL)
	}

	return s.submit([][]byte{
		priorityField(priority),
		append([]byte("MESSAGE="), systemd.GoString(message)...),
	})
}

// Send implements Journal.
func (s *Socket) Send(fields []*byte) int32 {
	bufs := make([][]byte, 0, len(fields))

	for _, p := range fields {
		if p == nil {
			break
		}
		bufs = append(bufs, []byte(systemd.GoString(p)))
	}

	return s.submit(bufs)
}

// Sendv implements Journal.
func (s *Socket) Sendv(iov []unix.Iovec) int32 {
	bufs := make([][]byte, len(iov))
	for i, v := range iov {
		bufs[i] = systemd.GoBytes(v)
	}

	ret := s.submit(bufs)
	runtime.KeepAlive(iov)

	return ret
}

// PrintWithLocation implements Journal.
func (s *Socket) PrintWithLocation(priority int32, file, line, function, message *byte) {
	if !validPriority(priority) || message == nil {
		return
	}

	bufs := [][]byte{
		priorityField(priority),
		append([]byte("MESSAGE="), systemd.GoString(message)...),
	}

	if file != nil {
		bufs = append(bufs, []byte(systemd.GoString(file)))
	}
	if line != nil {
		bufs = append(bufs, []byte(systemd.GoString(line)))
	}
	if function != nil {
		bufs = append(bufs, append([]byte("CODE_FUNC="), systemd.GoString(function)...))
	}

	s.submit(bufs)
}

func priorityField(priority int32) []byte {
	return strconv.AppendInt([]byte("PRIORITY="), int64(priority), 10)
}

// submit encodes and writes one entry, returning the signed result.
func (s *Socket) submit(fields [][]byte) int32 {
	data, err := encodeEntry(fields)
	if err != nil {
		return systemd.Result(err)
	}

	return systemd.Result(s.write(data))
}

func (s *Socket) path() string {
	if s.Path != "" {
		return s.Path
	}
	return JournalSocket
}

func (s *Socket) write(data []byte) error {
	c, err := s.journalConn()
	if err != nil {
		return err
	}

	addr := &net.UnixAddr{Name: s.path(), Net: "unixgram"}

	_, _, err = c.WriteMsgUnix(data, nil, addr)
	if err == nil {
		return nil
	}

	if !errors.Is(err, unix.EMSGSIZE) && !errors.Is(err, unix.ENOBUFS) {
		return err
	}

	// The entry does not fit into a datagram, so pass it as a sealed memfd
	// instead. journald only accepts sealed memfds or files in /dev/shm.
	return writeMemfd(c, addr, data)
}

func writeMemfd(c *net.UnixConn, addr *net.UnixAddr, data []byte) error {
	fd, err := unix.MemfdCreate("journal-entry", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return errors.Wrap(err, "failed to create memfd")
	}

	f := os.NewFile(uintptr(fd), "journal-entry")
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "failed to write memfd")
	}

	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		return errors.Wrap(err, "failed to seal memfd")
	}

	// The payload must be empty: journald treats a datagram carrying both data
	// and a descriptor as malformed.
	_, _, err = c.WriteMsgUnix(nil, unix.UnixRights(fd), addr)
	return err
}

func (s *Socket) journalConn() (*net.UnixConn, error) {
	s.once.Do(func() {
		// An unbound datagram socket; every write names the journal socket
		// explicitly.
		c, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Net: "unixgram"})
		if err != nil {
			s.connErr = errors.Wrap(err, "failed to create journal socket")
			return
		}

		c.SetWriteBuffer(8 * 1024 * 1024)
		s.conn = c
	})

	return s.conn, s.connErr
}

// Close closes the journal connection, if one was opened.
func (s *Socket) Close() error {
	if s.conn == nil {
		return s.connErr
	}
	return s.conn.Close()
}

// Notify implements Notifier.
func (s *Socket) Notify(unsetEnvironment int32, state *byte) int32 {
	if unsetEnvironment != 0 {
		defer os.Unsetenv("NOTIFY_SOCKET")
	}

	if state == nil {
		return -int32(unix.EINVAL)
	}

	var env notifyEnv
	if err := ProcessEnv(&env); err != nil {
		return systemd.Result(err)
	}

	if env.NotifySocket == "" {
		return 0
	}

	if err := notify(env.NotifySocket, []byte(systemd.GoString(state))); err != nil {
		return systemd.Result(err)
	}

	return 1
}

// maxSocketPath is sizeof(sockaddr_un.sun_path) minus the NUL terminator.
const maxSocketPath = 107

func notify(socket string, state []byte) error {
	// Only filesystem and abstract (leading '@') sockets are supported. Go
	// translates the leading '@' into the abstract namespace by itself.
	if socket[0] != '/' && socket[0] != '@' {
		return errors.Wrapf(unix.EAFNOSUPPORT, "unsupported NOTIFY_SOCKET %q", socket)
	}

	if len(socket) > maxSocketPath {
		return errors.Wrap(unix.EINVAL, "NOTIFY_SOCKET path too long")
	}

	c, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socket, Net: "unixgram"})
	if err != nil {
		return errors.Wrap(err, "failed to dial notify socket")
	}
	defer c.Close()

	if _, err := c.Write(state); err != nil {
		return errors.Wrap(err, "failed to write notification")
	}

	return nil
}
