// Package watch delivers file change notifications on the affinity goroutine.
//
// fsnotify reports changes on its own goroutine. Watcher debounces them per
// file and hands each callback to affinity.Executor.PostAsync, so handlers may
// touch affinity-confined state such as a script.Host directly.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/affinity/internal/affinity"
)

// DefaultDebounce is how long a file must be quiet before its callback runs.
const DefaultDebounce = 50 * time.Millisecond

// Errors for watcher operations.
var (
	// ErrWatcherClosed is returned when operating on a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrPathNotExist is returned when watching a path that does not exist.
	ErrPathNotExist = errors.New("path does not exist")
)

// ChangeFunc handles a change to path. It runs on the affinity goroutine.
type ChangeFunc func(path string) error

// Watcher watches individual files.
type Watcher struct {
	exec     *affinity.Executor
	logger   *slog.Logger
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	deliver  sync.Mutex // one callback hand-off at a time
	inflight sync.WaitGroup
	files    map[string]bool
	dirs     map[string]bool
	timers   map[string]*time.Timer
	closed   bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for watch errors and failed callbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the quiet period before a change is delivered.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher that posts callbacks through exec.
func New(exec *affinity.Executor, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		exec:     exec,
		logger:   slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
		fsw:      fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts watching the file at path. The parent directory is watched so
// that editors which replace files on save are still noticed.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return ErrPathNotExist
		}
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	dir := filepath.Dir(absPath)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[absPath] = true
	return nil
}

// IsWatching reports whether path is being watched.
func (w *Watcher) IsWatching(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[absPath]
}

// Run delivers changes to onChange until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange ChangeFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if w.IsWatching(path) {
				w.schedule(path, onChange)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string, onChange ChangeFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.inflight.Add(1)
		w.mu.Unlock()
		defer w.inflight.Done()

		w.deliver.Lock()
		defer w.deliver.Unlock()
		w.exec.PostAsync(func() error {
			if err := onChange(path); err != nil {
				w.logger.Warn("change handler failed", slog.String("path", path), slog.Any("error", err))
			}
			return nil
		})
	})
	w.timers[path] = timer
}

// Close stops the watcher and cancels pending callbacks. It waits for any
// callback already handed to the executor.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.inflight.Wait()
	return err
}
