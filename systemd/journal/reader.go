package journal

import (
	"bufio"
	"bytes"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Files selects which journal files a Journal reads.
type Files uint8

const (
	AllFiles Files = iota
	SystemFiles
	CurrentUserFiles
)

// RuntimeDirectory holds the volatile journal files.
const RuntimeDirectory = "/run/log/journal"

// PersistentDirectory holds the persistent journal files.
const PersistentDirectory = "/var/log/journal"

// Options controls which entries a Journal opens.
type Options struct {
	Files Files
	// RuntimeOnly restricts reading to RuntimeDirectory.
	RuntimeOnly bool
	// LocalOnly leaves out journals from other machines.
	LocalOnly bool
	// Directory reads the journal files in the given directory instead of the
	// system ones.
	Directory string
}

// Match filters entries by an exact field value.
type Match struct {
	Field string
	Value string
}

// String returns the FIELD=VALUE form of m.
func (m Match) String() string {
	return m.Field + "=" + m.Value
}

// Entry is a single journal entry.
type Entry struct {
	Fields    map[string]string
	Cursor    string
	Realtime  time.Time
	Monotonic time.Duration
	BootID    string
}

// Message returns the MESSAGE field.
func (e *Entry) Message() string {
	return e.Fields[FieldMessage]
}

// Priority returns the PRIORITY field, or PriInfo if it is missing or bad.
func (e *Entry) Priority() Priority {
	p, err := strconv.ParseUint(e.Fields[FieldPriority], 10, 8)
	if err != nil || !Priority(p).Valid() {
		return PriInfo
	}
	return Priority(p)
}

// ErrClosed is returned when a closed Journal is used.
var ErrClosed = errors.New("journal is closed")

type seekKind uint8

const (
	seekHead seekKind = iota
	seekCursor
	seekAfterCursor
	seekRealtime
)

type position struct {
	kind   seekKind
	cursor string
	since  time.Time
}

// Journal is a read cursor into the journal. Entries are read lazily with
// Next; once Next returns io.EOF, the cursor stays after the last entry read,
// so calling Next again returns entries added in the meantime. The Seek
// methods move the cursor.
//
// A Journal must not be used from multiple goroutines at once.
type Journal struct {
	opts    Options
	matches []string
	pos     position

	command func(args []string) (io.ReadCloser, error)

	out     io.ReadCloser
	buf     *bufio.Reader
	watcher *fsnotify.Watcher
	closed  bool
}

// Open opens the journal for reading, starting at its head. Entries are read
// through journalctl, which must be in $PATH.
func Open(opts Options) (*Journal, error) {
	bin, err := exec.LookPath("journalctl")
	if err != nil {
		return nil, errors.Wrap(err, "failed to find journalctl")
	}

	return newJournal(opts, journalctl(bin)), nil
}

func newJournal(opts Options, command func([]string) (io.ReadCloser, error)) *Journal {
	return &Journal{
		opts:    opts,
		command: command,
	}
}

// AddMatch only lets entries with the given field value through. Matches on
// different fields must all hold; matches on the same field are alternatives.
func (j *Journal) AddMatch(m Match) error {
	if !validMatchName(m.Field) {
		return errors.Wrapf(ErrInvalidField, "bad match field %q", m.Field)
	}

	j.matches = append(j.matches, m.String())
	j.stop()
	return nil
}

// AddDisjunction makes the matches added so far an alternative to those added
// afterwards.
func (j *Journal) AddDisjunction() error {
	if len(j.matches) == 0 || j.matches[len(j.matches)-1] == "+" {
		return errors.New("disjunction needs a preceding match")
	}

	j.matches = append(j.matches, "+")
	j.stop()
	return nil
}

// FlushMatches removes all matches.
func (j *Journal) FlushMatches() {
	j.matches = nil
	j.stop()
}

// SeekHead moves the cursor before the oldest entry.
func (j *Journal) SeekHead() error {
	return j.seek(position{kind: seekHead})
}

// SeekCursor moves the cursor so that the next entry is the one at cursor.
func (j *Journal) SeekCursor(cursor string) error {
	if cursor == "" {
		return errors.New("empty cursor")
	}
	return j.seek(position{kind: seekCursor, cursor: cursor})
}

// SeekAfterCursor moves the cursor so that the next entry is the one after
// cursor.
func (j *Journal) SeekAfterCursor(cursor string) error {
	if cursor == "" {
		return errors.New("empty cursor")
	}
	return j.seek(position{kind: seekAfterCursor, cursor: cursor})
}

// SeekRealtime moves the cursor before the first entry at or after t.
func (j *Journal) SeekRealtime(t time.Time) error {
	return j.seek(position{kind: seekRealtime, since: t})
}

// SeekTail moves the cursor after the newest entry, so that Next only returns
// entries added from now on.
func (j *Journal) SeekTail() error {
	if j.closed {
		return ErrClosed
	}

	j.stop()

	args := append(j.baseArgs(), "--lines=1")
	args = append(args, j.matches...)

	out, err := j.command(args)
	if err != nil {
		return errors.Wrap(err, "failed to start journalctl")
	}

	line, err := readLine(bufio.NewReader(out))
	cerr := out.Close()

	switch {
	case err == io.EOF && cerr != nil:
		return cerr
	case err == io.EOF:
		// Empty journal; everything written later comes after the head.
		j.pos = position{kind: seekHead}
		return nil
	case err != nil:
		return errors.Wrap(err, "failed to read last entry")
	}

	entry, err := parseEntry(line)
	if err != nil {
		return err
	}

	j.pos = position{kind: seekAfterCursor, cursor: entry.Cursor}
	return nil
}

func (j *Journal) seek(pos position) error {
	if j.closed {
		return ErrClosed
	}

	j.stop()
	j.pos = pos
	return nil
}

// Next returns the next entry. It returns io.EOF once there are no more
// entries right now. An entry that cannot be decoded yields an error wrapping
// ErrBadEntry; it is skipped, so calling Next again continues after it.
func (j *Journal) Next() (*Entry, error) {
	if j.closed {
		return nil, ErrClosed
	}

	if j.out == nil {
		// Changes from here on are reported by Wait. Wait reports
		// ErrNothingToWatch itself, so the error is not needed yet.
		j.watch()
		j.drain()

		out, err := j.command(j.args())
		if err != nil {
			return nil, errors.Wrap(err, "failed to start journalctl")
		}

		j.out = out
		j.buf = bufio.NewReaderSize(out, 64*1024)
	}

	line, err := readLine(j.buf)
	if err != nil {
		// The pass is over either way; surface journalctl's own failure if
		// there was one.
		cerr := j.stop()
		if err == io.EOF && cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	entry, err := parseEntry(line)
	if err != nil {
		// Move past the entry in case the pass is restarted.
		if c := gjson.GetBytes(line, fieldCursor); c.Type == gjson.String && c.Str != "" {
			j.pos = position{kind: seekAfterCursor, cursor: c.Str}
		}
		return nil, err
	}

	if entry.Cursor != "" {
		j.pos = position{kind: seekAfterCursor, cursor: entry.Cursor}
	}

	return entry, nil
}

// Close releases the journal. Further calls return ErrClosed.
func (j *Journal) Close() error {
	if j.closed {
		return nil
	}

	j.closed = true
	j.stop()
	j.unwatch()
	return nil
}

// stop ends the current pass, if any.
func (j *Journal) stop() error {
	if j.out == nil {
		return nil
	}

	err := j.out.Close()
	j.out = nil
	j.buf = nil

	return err
}

func (j *Journal) baseArgs() []string {
	args := []string{"--output=json", "--all", "--no-pager", "--quiet"}

	switch j.opts.Files {
	case SystemFiles:
		args = append(args, "--system")
	case CurrentUserFiles:
		args = append(args, "--user")
	}

	switch {
	case j.opts.Directory != "":
		args = append(args, "--directory="+j.opts.Directory)
	case j.opts.RuntimeOnly:
		args = append(args, "--directory="+RuntimeDirectory)
	}

	if !j.opts.LocalOnly {
		args = append(args, "--merge")
	}

	return args
}

func (j *Journal) args() []string {
	args := j.baseArgs()

	switch j.pos.kind {
	case seekCursor:
		args = append(args, "--cursor="+j.pos.cursor)
	case seekAfterCursor:
		args = append(args, "--after-cursor="+j.pos.cursor)
	case seekRealtime:
		usec := j.pos.since.UnixMicro()
		args = append(args, "--since=@"+formatUsec(usec))
	}

	return append(args, j.matches...)
}

// formatUsec formats microseconds as seconds with a fractional part.
func formatUsec(usec int64) string {
	sec := strconv.FormatInt(usec/1e6, 10)
	if frac := usec % 1e6; frac != 0 {
		return sec + "." + leftPad(strconv.FormatInt(frac, 10), 6)
	}
	return sec
}

func leftPad(s string, n int) string {
	for len(s) < n {
		s = "0" + s
	}
	return s
}

// readLine reads one JSON line, skipping blank lines.
func readLine(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// process is a running journalctl whose output is being read.
type process struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr bytes.Buffer
	eof    bool
}

func journalctl(bin string) func([]string) (io.ReadCloser, error) {
	return func(args []string) (io.ReadCloser, error) {
		p := &process{cmd: exec.Command(bin, args...)}
		p.cmd.Stderr = &p.stderr

		out, err := p.cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		p.out = out

		if err := p.cmd.Start(); err != nil {
			return nil, err
		}

		return p, nil
	}
}

func (p *process) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if err == io.EOF {
		p.eof = true
	}
	return n, err
}

// Close stops journalctl. If its output was read to the end, a failing exit
// status is returned along with what it printed to stderr.
func (p *process) Close() error {
	if !p.eof {
		p.cmd.Process.Kill()
		p.cmd.Wait()
		return nil
	}

	if err := p.cmd.Wait(); err != nil {
		msg := string(bytes.TrimSpace(p.stderr.Bytes()))
		return errors.Wrapf(err, "journalctl failed: %s", msg)
	}

	return nil
}
