package ffi

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Env holds the environment variables the service manager passes to a
// service.
type Env struct {
	NotifySocket  string `envconfig:"NOTIFY_SOCKET"`
	WatchdogUSec  uint64 `envconfig:"WATCHDOG_USEC"`
	WatchdogPID   int    `envconfig:"WATCHDOG_PID"`
	ListenPID     int    `envconfig:"LISTEN_PID"`
	ListenFDs     int    `envconfig:"LISTEN_FDS"`
	ListenFDNames string `envconfig:"LISTEN_FDNAMES"`
}

// LoadEnv reads Env from the process environment. Malformed numeric variables
// are reported as EINVAL.
func LoadEnv() (Env, error) {
	var env Env

	if err := ProcessEnv(&env); err != nil {
		return Env{}, err
	}

	return env, nil
}

// ProcessEnv fills spec, a pointer to a struct with envconfig tags, from the
// process environment. Only the tagged variables are read, so callers that
// need a few of them are not affected by the others. Malformed variables are
// reported as EINVAL.
func ProcessEnv(spec interface{}) error {
	if err := envconfig.Process("", spec); err != nil {
		return errors.Wrap(unix.EINVAL, err.Error())
	}
	return nil
}

// notifyEnv is the only variable sd_notify reads.
type notifyEnv struct {
	NotifySocket string `envconfig:"NOTIFY_SOCKET"`
}
