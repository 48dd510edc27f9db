package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/gosight-mcp/internal/cache"
	"github.com/dshills/gosight-mcp/pkg/types"
)

var (
	// ErrInvalidRoot is returned when the project root is not an absolute
	// path to an existing directory
	ErrInvalidRoot = errors.New("project root must be an absolute path to an existing directory")
	// ErrWarmInProgress is returned when a warm-up is already running
	ErrWarmInProgress = errors.New("warm-up already in progress")
	// ErrClosed is returned by operations on a closed workspace
	ErrClosed = errors.New("workspace closed")
)

// Directories never descended into when listing source files
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	"testdata":     true,
}

// Config controls a workspace
type Config struct {
	// DataDir is the base directory for per-project caches
	DataDir string
	// MaxEntries bounds the file cache (default: cache.DefaultMaxEntries)
	MaxEntries int
	// Extensions selects source files (default: .go)
	Extensions []string
	// Workers bounds warm-up concurrency (default: runtime.NumCPU())
	Workers int
	// WatchDebounce delays reconciliation after removals (default: 500ms)
	WatchDebounce time.Duration
}

// DefaultConfig returns a Config with default values under dataDir
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:       dataDir,
		MaxEntries:    cache.DefaultMaxEntries,
		Extensions:    []string{".go"},
		Workers:       runtime.NumCPU(),
		WatchDebounce: 500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.DataDir)
	if c.MaxEntries <= 0 {
		c.MaxEntries = def.MaxEntries
	}
	if len(c.Extensions) == 0 {
		c.Extensions = def.Extensions
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = def.WatchDebounce
	}
	return c
}

// Workspace is an analysis session for one project: it lists the project's
// source files and serves analysis results through the project's file cache.
type Workspace struct {
	root     string
	cfg      Config
	analyzer types.Analyzer
	cache    *cache.FileCache
	logger   *slog.Logger

	flight singleflight.Group
	warm   warmGate

	mu      sync.Mutex
	watcher *watcher
	closed  bool
}

// Open starts a workspace for root, loading its persisted cache. A cache
// that cannot be loaded is logged and replaced by an empty one.
func Open(root string, cfg Config, analyzer types.Analyzer) (*Workspace, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}
	root = filepath.Clean(root)
	cfg = cfg.withDefaults()

	dir, err := cache.DirForProject(cfg.DataDir, root)
	if err != nil {
		return nil, err
	}
	// Load errors are logged by Open; the cache starts empty
	fc, _ := cache.Open(dir, cache.WithMaxEntries(cfg.MaxEntries))

	logger := slog.Default().With(
		slog.String("component", "workspace"),
		slog.String("root", root),
	)
	logger.Info("workspace opened",
		slog.String("cache_dir", dir),
		slog.Int("cached_files", fc.Len()),
	)

	return &Workspace{
		root:     root,
		cfg:      cfg,
		analyzer: analyzer,
		cache:    fc,
		logger:   logger,
	}, nil
}

// Root returns the project root
func (w *Workspace) Root() string {
	return w.root
}

// Cache returns the project's file cache
func (w *Workspace) Cache() *cache.FileCache {
	return w.cache
}

// Resolve makes path absolute, interpreting relative paths against the
// project root
func (w *Workspace) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(w.root, path)
}

// SourceFiles lists the project's source files, sorted. Hidden, vendor,
// node_modules and testdata directories are skipped.
func (w *Workspace) SourceFiles() ([]string, error) {
	var files []string

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return err
			}
			// Skip unreadable entries below the root
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == w.root {
				return nil
			}
			name := d.Name()
			if skipDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if w.isSource(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list source files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

func (w *Workspace) isSource(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range w.cfg.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

// Reconcile drops cache entries for files that no longer exist in the
// project and evicts least recently used entries beyond the cache bound
func (w *Workspace) Reconcile() (removed, evicted int, err error) {
	files, err := w.SourceFiles()
	if err != nil {
		return 0, 0, err
	}

	valid := make(map[string]struct{}, len(files))
	for _, f := range files {
		valid[f] = struct{}{}
	}
	removed, evicted = w.cache.CheckAndRun(valid)
	return removed, evicted, nil
}

// Close stops watching and persists the cache. It is safe to call more
// than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	wt := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if wt != nil {
		wt.stop()
	}

	if err := w.cache.Save(); err != nil {
		w.logger.Error("failed to save cache", slog.String("error", err.Error()))
		return err
	}
	return nil
}
