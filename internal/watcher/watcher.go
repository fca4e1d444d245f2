// Package watcher implements the live filesystem producer: an fsnotify
// subscription on the photo tree that indexes changed files as they land,
// debounced per path so a burst of writes to the same file (a slow copy, an
// editor's save-then-rename) triggers one index pass instead of several.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Indexer is the subset of discovery.Scanner the watcher drives. It is
// declared narrowly here, rather than accepting *discovery.Scanner
// directly, so this package stays decoupled from discovery's full surface;
// cmd/photocurator wires the concrete Scanner in through
// discovery.ScannerAdapter, which drops the Stats value Scanner.IndexFile
// also returns.
type Indexer interface {
	IndexFile(ctx context.Context, path string) error
	RemovePath(ctx context.Context, path string) error
}

// Watcher subscribes to filesystem events under a root directory and
// indexes changed files through an Indexer, debounced per path.
type Watcher struct {
	root     string
	indexer  Indexer
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New builds a Watcher rooted at root. debounce bounds how long the watcher
// waits after the last observed event for a path before indexing it; if
// zero, a default of 2 seconds is used.
func New(root string, indexer Indexer, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		indexer:  indexer,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// AddRecursive registers the root and every subdirectory under it with the
// underlying fsnotify watcher. fsnotify does not watch subtrees on its own.
func (w *Watcher) AddRecursive() error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: skip unreadable directories
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.Warn("failed to watch directory", slog.String("path", path), slog.String("error", addErr.Error()))
			}
		}
		return nil
	})
}

// Run processes filesystem events until ctx is cancelled or the underlying
// watcher is closed. It blocks; call it from its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent routes one fsnotify event, scheduling (or rescheduling) a
// debounced index/remove for the affected path.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.scheduleDebounced(event.Name, func() {
			if err := w.indexer.IndexFile(ctx, event.Name); err != nil {
				w.logger.Warn("error indexing watched file", slog.String("path", event.Name), slog.String("error", err.Error()))
			}
		})

	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		w.scheduleDebounced(event.Name, func() {
			if err := w.indexer.RemovePath(ctx, event.Name); err != nil {
				w.logger.Warn("error removing watched path", slog.String("path", event.Name), slog.String("error", err.Error()))
			}
		})
	}
}

// scheduleDebounced resets any pending timer for path, or starts a new one.
// Only the most recent event within the debounce window fires.
func (w *Watcher) scheduleDebounced(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		fn()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
	})
}

// Close stops the underlying fsnotify watcher. Run's deferred Close also
// handles this, but Close is safe to call before Run or after it returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
