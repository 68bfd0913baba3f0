// Package watch follows the circuit target directory and keeps its
// fingerprint current.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrRootNotExist is returned when the root directory does not exist.
	ErrRootNotExist = errors.New("watch: root directory does not exist")

	// ErrRootNotDirectory is returned when the root path is not a directory.
	ErrRootNotDirectory = errors.New("watch: root is not a directory")
)

// contentOps are the operations that can change a fingerprint. Chmod alone
// cannot.
const contentOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// DefaultExcludes are base names whose events are ignored.
var DefaultExcludes = []string{".git", ".tmp"}

// FileEvent is a content change under the watched root.
type FileEvent struct {
	Path string
	Op   fsnotify.Op
}

// Options configures a Watcher.
type Options struct {
	// Excludes lists base names to ignore. Excluded directories are not
	// watched. Nil means DefaultExcludes.
	Excludes []string

	// OnError receives fsnotify errors and failures to watch a new
	// directory.
	OnError func(error)
}

// Watcher reports content changes anywhere below a directory.
type Watcher struct {
	fsw      *fsnotify.Watcher
	events   chan<- FileEvent
	excludes map[string]bool
	onError  func(error)
}

// NewWatcher watches root and every directory below it.
func NewWatcher(root string, events chan<- FileEvent, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootNotExist, root)
	}
	if err != nil {
		return nil, fmt.Errorf("watch: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	if opts.Excludes == nil {
		opts.Excludes = DefaultExcludes
	}
	w := &Watcher{
		events:   events,
		excludes: make(map[string]bool, len(opts.Excludes)),
		onError:  opts.OnError,
	}
	for _, name := range opts.Excludes {
		w.excludes[name] = true
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, err
	}
	if err := w.addTree(root); err != nil {
		w.fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) excluded(path string) bool {
	return w.excludes[filepath.Base(path)]
}

// addTree registers dir and its subdirectories with fsnotify.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run forwards events until ctx is cancelled or the watcher is closed.
// When events is full the change is dropped: the pending event already
// triggers a refresh that will see it.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&contentOps == 0 || w.excluded(ev.Name) {
		return
	}
	// Directories created after start are watched too, along with anything
	// written into them before the watch was added.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.report(err)
			}
		}
	}

	select {
	case w.events <- FileEvent{Path: ev.Name, Op: ev.Op}:
	default:
	}
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// Close stops watching. A running Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
