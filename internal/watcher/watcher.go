// Package watcher stops a running scan when one of its state files is removed.
//
// Deleting the progress ledger or the results store underneath a running scan
// would let it keep committing into a file nobody will read again. The
// watcher notices the removal and cancels the scan instead.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ErrStateFileRemoved is the cancellation cause set by WatchContext.
var ErrStateFileRemoved = errors.New("scan state file removed")

// DefaultDebounce is how long a removed file may take to reappear, as with an
// atomic replace, before the removal is reported.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reports removal of any of a set of files. fsnotify cannot watch a
// path that may disappear, so the parent directories are watched instead.
type Watcher struct {
	targets  map[string]struct{}
	dirs     []string
	onRemove func(path string)
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Watcher for paths. onRemove runs once per confirmed removal.
func New(onRemove func(path string), paths ...string) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watcher: no paths")
	}

	targets := make(map[string]struct{}, len(paths))
	seen := make(map[string]struct{})
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		targets[abs] = struct{}{}
		dir := filepath.Dir(abs)
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		targets:  targets,
		dirs:     dirs,
		onRemove: onRemove,
		debounce: DefaultDebounce,
		fsw:      fsw,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the parent directories. Every directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	for _, dir := range w.dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.running = true

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends the watch. Pending removals are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if t, ok := w.pending[path]; ok {
			t.Stop()
		}
		log.Debug().Str("path", path).Msg("State file removed, waiting for debounce")
		w.pending[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })

	case event.Has(fsnotify.Create):
		if t, ok := w.pending[path]; ok {
			t.Stop()
			delete(w.pending, path)
			log.Debug().Str("path", path).Msg("State file replaced")
		}
	}
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	log.Warn().Str("path", path).Msg("State file removed")
	if w.onRemove != nil {
		w.onRemove(path)
	}
}

// WatchContext returns a context that is canceled with cause
// ErrStateFileRemoved when any of paths is removed. stop must be called to
// release the watcher.
func WatchContext(parent context.Context, paths ...string) (ctx context.Context, stop func() error, err error) {
	ctx, cancel := context.WithCancelCause(parent)
	if len(paths) == 0 {
		return ctx, func() error { cancel(context.Canceled); return nil }, nil
	}
	w, err := New(func(path string) {
		cancel(fmt.Errorf("%w: %s", ErrStateFileRemoved, path))
	}, paths...)
	if err != nil {
		cancel(err)
		return nil, nil, err
	}
	if err := w.Start(); err != nil {
		_ = w.fsw.Close()
		cancel(err)
		return nil, nil, err
	}
	return ctx, func() error {
		err := w.Stop()
		cancel(context.Canceled)
		return err
	}, nil
}
