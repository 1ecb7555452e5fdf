package daemon

import (
	"os"
	"strconv"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/sdbind/systemd/ffi"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Env holds the variables the service manager passes to a service.
type Env = ffi.Env

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	return ffi.LoadEnv()
}

// ListenFDsStart is the first file descriptor passed by socket activation.
const ListenFDsStart = 3

// listenFDsStart is ListenFDsStart, moved elsewhere by tests.
var listenFDsStart = ListenFDsStart

// watchdogEnv holds the variables sd_watchdog_enabled reads.
type watchdogEnv struct {
	USec uint64 `envconfig:"WATCHDOG_USEC"`
	PID  int    `envconfig:"WATCHDOG_PID"`
}

// listenEnv holds the variables sd_listen_fds reads.
type listenEnv struct {
	PID     int    `envconfig:"LISTEN_PID"`
	FDs     int    `envconfig:"LISTEN_FDS"`
	FDNames string `envconfig:"LISTEN_FDNAMES"`
}

// bootedDir exists if the system was booted with systemd.
var bootedDir = "/run/systemd/system"

// Booted reports whether the system was booted with systemd.
func Booted() bool {
	s, err := os.Lstat(bootedDir)
	return err == nil && s.IsDir()
}

// WatchdogEnabled returns the interval at which the service manager expects
// watchdog pings, or zero if the watchdog is off for this process. Pinging at
// half the interval is recommended. If unsetEnv is true, the watchdog
// variables are removed from the environment.
func WatchdogEnabled(unsetEnv bool) (time.Duration, error) {
	if unsetEnv {
		defer unsetenv("WATCHDOG_USEC", "WATCHDOG_PID")
	}

	if _, ok := os.LookupEnv("WATCHDOG_USEC"); !ok {
		return 0, nil
	}

	var env watchdogEnv
	if err := ffi.ProcessEnv(&env); err != nil {
		return 0, err
	}

	if env.USec == 0 || env.USec > uint64(1<<63-1)/uint64(time.Microsecond) {
		return 0, errors.Wrap(unix.EINVAL, "bad WATCHDOG_USEC")
	}

	// The watchdog may be meant for another process, like the one that
	// exec'd us.
	if env.PID != 0 && env.PID != os.Getpid() {
		return 0, nil
	}

	return time.Duration(env.USec) * time.Microsecond, nil
}

// ListenFDs returns the sockets passed by socket activation, starting at
// ListenFDsStart, with close-on-exec set. Files are named after
// LISTEN_FDNAMES when it matches. It returns nil if nothing was passed to
// this process. If unsetEnv is true, the variables are removed from the
// environment so child processes do not take the sockets for their own.
func ListenFDs(unsetEnv bool) ([]*os.File, error) {
	if unsetEnv {
		defer unsetenv("LISTEN_PID", "LISTEN_FDS", "LISTEN_FDNAMES")
	}

	if _, ok := os.LookupEnv("LISTEN_PID"); !ok {
		return nil, nil
	}

	var env listenEnv
	if err := ffi.ProcessEnv(&env); err != nil {
		return nil, err
	}

	if env.PID != os.Getpid() {
		return nil, nil
	}

	if _, ok := os.LookupEnv("LISTEN_FDS"); !ok {
		return nil, nil
	}

	if env.FDs <= 0 || env.FDs > int(^uint32(0)>>1)-listenFDsStart {
		return nil, errors.Wrap(unix.EINVAL, "bad LISTEN_FDS")
	}

	names := fdNames(env.FDs, env.FDNames)
	files := make([]*os.File, env.FDs)

	for i := range files {
		fd := listenFDsStart + i

		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
			return nil, errors.Wrapf(err, "failed to set close-on-exec on fd %d", fd)
		}

		files[i] = os.NewFile(uintptr(fd), names[i])
	}

	return files, nil
}

// fdNames returns the name of each of the n passed descriptors. Names that do
// not line up with the descriptors are ignored.
func fdNames(n int, list string) []string {
	names := strings.Split(list, ":")

	if list == "" || len(names) != n {
		names = make([]string, n)
		for i := range names {
			names[i] = "LISTEN_FD_" + strconv.Itoa(listenFDsStart+i)
		}
	}

	return names
}

func unsetenv(keys ...string) {
	for _, key := range keys {
		os.Unsetenv(key)
	}
}
