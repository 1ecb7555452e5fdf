package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"git.unix.lgbt/diamondburned/sdbind/systemd/daemon"
	"git.unix.lgbt/diamondburned/sdbind/systemd/ffi"
	"git.unix.lgbt/diamondburned/sdbind/systemd/journal"
	"git.unix.lgbt/diamondburned/sdbind/systemd/journal/journalhook"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// config holds the defaults for the flags, read from SDBIND_* variables.
type config struct {
	Socket     string `envconfig:"SOCKET"`
	Directory  string `envconfig:"DIRECTORY"`
	CursorFile string `envconfig:"CURSOR_FILE"`
	Priority   string `envconfig:"PRIORITY" default:"info"`
	Identifier string `envconfig:"IDENTIFIER" default:"sdbind"`
}

var (
	cfg       config
	follow    bool
	toJournal bool
	echo      bool
	unsetEnv  bool
)

var log = logrus.New()

func init() {
	if err := envconfig.Process("sdbind", &cfg); err != nil {
		log.Fatalln("failed to read environment:", err)
	}

	flag.StringVar(&cfg.Socket, "s", cfg.Socket, "journal socket path")
	flag.StringVar(&cfg.Directory, "D", cfg.Directory, "journal directory to read")
	flag.StringVar(&cfg.CursorFile, "c", cfg.CursorFile, "cursor file to resume reading from")
	flag.StringVar(&cfg.Priority, "p", cfg.Priority, "priority of logged messages")
	flag.StringVar(&cfg.Identifier, "t", cfg.Identifier, "syslog identifier of logged messages")
	flag.BoolVar(&follow, "f", false, "keep reading new entries")
	flag.BoolVar(&toJournal, "J", false, "also send diagnostics to the journal")
	flag.BoolVar(&echo, "e", false, "echo logged entries to stderr")
	flag.BoolVar(&unsetEnv, "u", false, "unset NOTIFY_SOCKET after notifying")
	flag.Usage = func() {
		f := func(f string, v ...interface{}) {
			fmt.Fprintf(flag.CommandLine.Output(), f, v...)
		}

		name := filepath.Base(os.Args[0])

		f("Usage:\n")
		f("  %s [flags] log <message...>\n", name)
		f("  %s [flags] send <KEY=VALUE...>\n", name)
		f("  %s [flags] notify <KEY=VALUE...>\n", name)
		f("  %s [flags] read [FIELD=VALUE|+...]\n", name)
		f("  %s booted\n", name)
		f("\n")
		f("Flags:\n")
		flag.PrintDefaults()
	}

	log.Out = os.Stderr
}

func main() {
	flag.Parse()
	os.Exit(run(flag.Args()))
}

// run runs the subcommand in args and returns the exit status. Deferred
// cleanup, such as stopping journalctl, has run by the time it returns.
func run(args []string) int {
	if len(args) == 0 {
		flag.Usage()
		return 2
	}

	sender := journal.Default
	if cfg.Socket != "" {
		sock := &ffi.Socket{Path: cfg.Socket}
		defer sock.Close()

		sender = journal.NewSender(sock)
	}

	if toJournal {
		journalhook.Install(log, sender, map[string]interface{}{
			"syslog_identifier": cfg.Identifier,
		})
	}

	var logger journal.Logger = sender
	if echo {
		logger = journal.MultiLogger(sender, journal.NewTextLogger(os.Stderr))
	}

	var err error

	switch args[0] {
	case "log":
		err = logMessage(logger, args[1:])
	case "send":
		err = send(logger, args[1:])
	case "notify":
		err = notify(args[1:])
	case "read":
		err = read(args[1:])
	case "booted":
		if !daemon.Booted() {
			return 1
		}
	default:
		log.Errorf("unknown subcommand %q\n", args[0])
		return 2
	}

	if err != nil {
		log.Errorln(err)
		return 1
	}

	return 0
}

func logMessage(logger journal.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("missing message")
	}

	p, err := journal.ParsePriority(cfg.Priority)
	if err != nil {
		return errors.Wrap(err, "invalid -p")
	}

	return logger.SendFields(
		journal.F(journal.FieldMessage, strings.Join(args, " ")),
		journal.IntField(journal.FieldPriority, int(p)),
		journal.F(journal.FieldSyslogID, cfg.Identifier),
	)
}

func parseFields(args []string) ([]journal.Field, error) {
	fields := make([]journal.Field, len(args))

	for i, arg := range args {
		f, err := journal.ParseField([]byte(arg))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid field %q", arg)
		}
		fields[i] = f
	}

	return fields, nil
}

func send(logger journal.Logger, args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	if len(fields) == 0 {
		return errors.New("missing fields")
	}

	return logger.SendFields(fields...)
}

func notify(args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	if len(fields) == 0 {
		fields = []journal.Field{journal.F(daemon.StateReady, "1")}
	}

	sent, err := daemon.Notify(unsetEnv, fields...)
	if err != nil {
		return err
	}

	if !sent {
		log.Warnln("NOTIFY_SOCKET is not set, nothing was sent")
	}

	return nil
}

func read(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	j, err := journal.Open(journal.Options{Directory: cfg.Directory})
	if err != nil {
		return errors.Wrap(err, "failed to open journal")
	}
	defer j.Close()

	for _, arg := range args {
		if arg == "+" {
			err = j.AddDisjunction()
		} else {
			var f journal.Field
			f, err = journal.ParseField([]byte(arg))
			if err == nil {
				err = j.AddMatch(journal.Match{Field: f.Key, Value: f.Value})
			}
		}

		if err != nil {
			return errors.Wrapf(err, "invalid match %q", arg)
		}
	}

	var cursors *journal.CursorFile

	switch {
	case cfg.CursorFile != "":
		cursors, err = journal.NewCursorFile(cfg.CursorFile)
		if err != nil {
			if errors.Is(err, journal.ErrLockedElsewhere) {
				log.Infoln("another reader owns", cfg.CursorFile)
				return nil
			}
			return errors.Wrap(err, "failed to open cursor file")
		}
		defer cursors.Close()

		if err := cursors.Resume(j); err != nil {
			return errors.Wrap(err, "failed to resume")
		}

	case follow:
		if err := j.SeekTail(); err != nil {
			return errors.Wrap(err, "failed to seek to tail")
		}
	}

	for {
		e, err := j.Next()
		if err == io.EOF {
			if !follow {
				return nil
			}

			if _, err := j.Wait(ctx, 0); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "failed to wait for journal")
			}

			continue
		}

		if err != nil {
			return errors.Wrap(err, "failed to read entry")
		}

		printEntry(os.Stdout, e)

		if cursors != nil {
			if err := cursors.Write(e.Cursor); err != nil {
				return err
			}
		}
	}
}

// printEntry prints e similarly to journalctl's short-iso output.
func printEntry(w io.Writer, e *journal.Entry) {
	ident := e.Fields[journal.FieldSyslogID]
	if ident == "" {
		ident = e.Fields["_COMM"]
	}

	if pid := e.Fields["_PID"]; pid != "" {
		ident += "[" + pid + "]"
	}

	fmt.Fprintf(w, "%s %s %s: %s\n",
		e.Realtime.Format(time.RFC3339), e.Fields["_HOSTNAME"], ident, e.Message())
}
