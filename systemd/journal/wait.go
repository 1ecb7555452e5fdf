package journal

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ErrNothingToWatch is returned by Wait if none of the journal directories
// exist.
var ErrNothingToWatch = errors.New("no journal directory to watch")

// Wait blocks until the journal files change, the timeout passes or ctx is
// done, and reports whether the journal changed. A timeout of zero or less
// waits without limit. After Wait returns true, Next returns the new entries.
//
// Changes are tracked from the moment Next starts reading, so nothing written
// between Next returning io.EOF and the call to Wait is missed.
func (j *Journal) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	if j.closed {
		return false, ErrClosed
	}

	if err := j.watch(); err != nil {
		return false, err
	}

	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	w := j.watcher

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()

		case <-expire:
			return false, nil

		case err, ok := <-w.Errors:
			if !ok {
				return false, errors.New("watcher closed")
			}
			return false, errors.Wrap(err, "inotify error")

		case ev, ok := <-w.Events:
			if !ok {
				return false, errors.New("watcher closed")
			}

			if changed(w, ev) {
				return true, nil
			}
		}
	}
}

// watch starts watching the journal directories unless it already does.
func (j *Journal) watch() error {
	if j.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	var watching int
	for _, dir := range j.watchDirs() {
		if err := w.Add(dir); err == nil {
			watching++
		}
	}

	if watching == 0 {
		w.Close()
		return ErrNothingToWatch
	}

	j.watcher = w
	return nil
}

// drain discards the changes seen so far. It is called right before a pass
// starts, since that pass reads everything written until then.
func (j *Journal) drain() {
	if j.watcher == nil {
		return
	}

	for {
		select {
		case ev, ok := <-j.watcher.Events:
			if !ok {
				return
			}
			changed(j.watcher, ev)
		case <-j.watcher.Errors:
		default:
			return
		}
	}
}

// unwatch stops watching.
func (j *Journal) unwatch() {
	if j.watcher != nil {
		j.watcher.Close()
		j.watcher = nil
	}
}

// changed reports whether ev can mean new entries. New directories, such as
// one for a machine ID seen for the first time, are watched as well.
func changed(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	// Attribute changes don't add entries.
	if ev.Op == fsnotify.Chmod {
		return false
	}

	if ev.Op.Has(fsnotify.Create) {
		if s, err := os.Stat(ev.Name); err == nil && s.IsDir() {
			w.Add(ev.Name)
		}
	}

	return true
}

// watchDirs returns the journal directories along with their per-machine
// subdirectories, which hold the actual files.
func (j *Journal) watchDirs() []string {
	var roots []string

	switch {
	case j.opts.Directory != "":
		roots = []string{j.opts.Directory}
	case j.opts.RuntimeOnly:
		roots = []string{RuntimeDirectory}
	default:
		roots = []string{RuntimeDirectory, PersistentDirectory}
	}

	dirs := append([]string(nil), roots...)

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(root, entry.Name()))
			}
		}
	}

	return dirs
}
