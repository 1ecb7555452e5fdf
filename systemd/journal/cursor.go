package journal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/sdbind/systemd/journal/backwardio"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// maxCursorLog is the size after which a cursor file is truncated down to
// its newest cursor.
const maxCursorLog = 1 << 20

// ErrLockedElsewhere is returned if a CursorFile is locked by another process.
var ErrLockedElsewhere = errors.New("cursor file already locked elsewhere")

// CursorFile remembers how far a reader got, so that it can resume after a
// restart. Cursors are appended one per line and the file is locked with flock
// for as long as it is open, so only one reader can own it. The caller must
// close it, or let the operating system do so when the process exits.
type CursorFile struct {
	f *os.File
	l *flock.Flock
}

// NewCursorFile opens or creates the cursor file at path. It returns
// ErrLockedElsewhere if the lock cannot be acquired.
func NewCursorFile(path string) (*CursorFile, error) {
	return newCursorFile(nil, path)
}

// NewCursorFileWait is like NewCursorFile, but waits until the lock can be
// acquired or until the context times out.
func NewCursorFileWait(ctx context.Context, path string) (*CursorFile, error) {
	return newCursorFile(ctx, path)
}

func newCursorFile(ctx context.Context, path string) (*CursorFile, error) {
	// Ensure the directory exists.
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create cursor directory")
	}

	l := flock.New(path + ".lock")

	var locked bool
	var err error

	if ctx != nil {
		locked, err = l.TryLockContext(ctx, 25*time.Millisecond)
	} else {
		locked, err = l.TryLock()
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	if !locked {
		return nil, ErrLockedElsewhere
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		l.Unlock()
		return nil, errors.Wrap(err, "failed to open file")
	}

	return &CursorFile{f: f, l: l}, nil
}

// Write records cursor as the newest position. Each write is a single append,
// so a crash never leaves a partial cursor behind the last complete one.
func (c *CursorFile) Write(cursor string) error {
	if cursor == "" || strings.ContainsAny(cursor, "\n\x00") {
		return errors.Errorf("invalid cursor %q", cursor)
	}

	if stat, err := c.f.Stat(); err == nil && stat.Size() > maxCursorLog {
		if err := c.f.Truncate(0); err != nil {
			return errors.Wrap(err, "failed to truncate cursor file")
		}
	}

	if _, err := c.f.WriteString(cursor + "\n"); err != nil {
		return errors.Wrap(err, "failed to write cursor")
	}

	return nil
}

// Last returns the newest cursor, or an empty string if none was written yet.
func (c *CursorFile) Last() (string, error) {
	line, err := backwardio.LastLine(c.f)
	if err != nil {
		if err == io.EOF {
			return "", nil
		}
		return "", errors.Wrap(err, "failed to read cursor")
	}

	return string(line), nil
}

// Resume moves j to just after the newest cursor, or to the head of the
// journal if there is none.
func (c *CursorFile) Resume(j *Journal) error {
	cursor, err := c.Last()
	if err != nil {
		return err
	}

	if cursor == "" {
		return j.SeekHead()
	}

	return j.SeekAfterCursor(cursor)
}

// Close closes the file and releases the lock.
func (c *CursorFile) Close() error {
	c.f.Close()
	return c.l.Unlock()
}
