package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher follows the project tree and reconciles the cache after files
// disappear. Writes need no handling: a modified file's entry is already
// stale by its mtime.
type watcher struct {
	ws       *Workspace
	fw       *fsnotify.Watcher
	debounce time.Duration

	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// Watch starts following the project tree until ctx is done or the
// workspace is closed. Calling Watch while already watching is a no-op.
func (w *Workspace) Watch(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	wt := &watcher{
		ws:       w,
		fw:       fw,
		debounce: w.cfg.WatchDebounce,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	if err := wt.addTree(w.root); err != nil {
		_ = fw.Close()
		return err
	}

	w.watcher = wt
	go wt.run(ctx)

	w.logger.Info("watching project", slog.Duration("debounce", wt.debounce))
	return nil
}

// Watching reports whether the workspace is following the project tree
func (w *Workspace) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watcher != nil
}

// addTree watches dir and every directory below it that source listing
// would descend into.
func (wt *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != wt.ws.root && ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := wt.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func ignoredDir(name string) bool {
	return skipDirs[name] || strings.HasPrefix(name, ".")
}

// ignoredPath reports whether path lies in a directory that is not watched.
func (wt *watcher) ignoredPath(path string) bool {
	rel, err := filepath.Rel(wt.ws.root, path)
	if err != nil {
		return true
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, part := range parts[:len(parts)-1] {
		if ignoredDir(part) {
			return true
		}
	}
	return false
}

func (wt *watcher) run(ctx context.Context) {
	defer close(wt.finished)
	defer func() { _ = wt.fw.Close() }()

	for {
		select {
		case <-ctx.Done():
			wt.cancelTimer()
			wt.ws.detach(wt)
			return
		case <-wt.done:
			wt.cancelTimer()
			return
		case event, ok := <-wt.fw.Events:
			if !ok {
				return
			}
			wt.handle(event)
		case err, ok := <-wt.fw.Errors:
			if !ok {
				return
			}
			wt.ws.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (wt *watcher) handle(event fsnotify.Event) {
	path := event.Name
	if wt.ignoredPath(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() && !ignoredDir(info.Name()) {
			if err := wt.addTree(path); err != nil {
				wt.ws.logger.Warn("failed to watch new directory",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A removed directory shows up as one event for the directory
		// itself; the debounced reconcile catches its files
		wt.ws.cache.Remove(path)
		wt.scheduleReconcile()
	}
}

func (wt *watcher) scheduleReconcile() {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	if wt.timer != nil {
		wt.timer.Reset(wt.debounce)
		return
	}
	wt.timer = time.AfterFunc(wt.debounce, func() {
		select {
		case <-wt.done:
			return
		default:
		}
		removed, evicted, err := wt.ws.Reconcile()
		if err != nil {
			wt.ws.logger.Warn("reconcile failed", slog.String("error", err.Error()))
			return
		}
		wt.ws.logger.Debug("reconciled after removal",
			slog.Int("removed", removed),
			slog.Int("evicted", evicted),
		)
	})
}

func (wt *watcher) cancelTimer() {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if wt.timer != nil {
		wt.timer.Stop()
	}
}

// stop ends watching and waits for the event loop to exit.
func (wt *watcher) stop() {
	wt.stopOnce.Do(func() { close(wt.done) })
	<-wt.finished
}

// detach forgets wt if it is still the active watcher.
func (w *Workspace) detach(wt *watcher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == wt {
		w.watcher = nil
	}
}
