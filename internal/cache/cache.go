package cache

import (
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dshills/gosight-mcp/pkg/types"
)

const (
	// DefaultMaxEntries is the entry count above which CheckAndRun evicts.
	DefaultMaxEntries = 1000

	// FileName is the name of the persisted cache document within the cache dir.
	FileName = "cache.json"
)

// ErrCacheIO wraps every persistence failure.
var ErrCacheIO = errors.New("cache: i/o failed")

// StatFunc returns the modification time of a file.
type StatFunc func(path string) (time.Time, error)

// Option customizes a FileCache.
type Option func(*FileCache)

// WithMaxEntries sets the eviction threshold used by CheckAndRun.
func WithMaxEntries(n int) Option {
	return func(c *FileCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithClock replaces time.Now for access stamps.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) {
		c.now = now
	}
}

// WithStat replaces os.Stat as the source of modification times.
func WithStat(stat StatFunc) Option {
	return func(c *FileCache) {
		c.stat = stat
	}
}

// FileCache caches analysis results per file and invalidates them when the
// file's modification time moves past the stored one.
//
// Reads never mutate a stale entry; it is simply reported as a miss and left
// for garbage collection or the next store to replace. Payloads returned by
// the getters are shared with the cache and must not be modified.
//
// FileCache is safe for concurrent use.
type FileCache struct {
	dir        string
	maxEntries int
	now        func() time.Time
	stat       StatFunc
	logger     *slog.Logger

	mu           sync.Mutex
	entries      map[string]*Entry
	lastCleanup  time.Time
	requestCount int64
}

// New creates an empty cache persisted under dir.
func New(dir string, opts ...Option) *FileCache {
	c := &FileCache{
		dir:        dir,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		stat:       modTime,
		logger:     slog.Default().With(slog.String("component", "cache")),
		entries:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open creates a cache and loads the persisted document from dir. The
// returned cache is always usable: when loading fails it starts empty and
// the error, wrapping ErrCacheIO, is returned alongside it.
func Open(dir string, opts ...Option) (*FileCache, error) {
	c := New(dir, opts...)
	if err := c.Load(); err != nil {
		c.logger.Warn("starting with empty cache",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return c, err
	}
	return c, nil
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Dir returns the directory the cache persists to.
func (c *FileCache) Dir() string {
	return c.dir
}

// MaxEntries returns the eviction threshold.
func (c *FileCache) MaxEntries() int {
	return c.maxEntries
}

// Symbols returns the cached symbols for path.
func (c *FileCache) Symbols(path string) ([]types.SymbolData, bool) {
	return get(c, path, KindSymbols, func(e *Entry) []types.SymbolData { return e.Symbols })
}

// Imports returns the cached imports for path.
func (c *FileCache) Imports(path string) ([]types.ImportData, bool) {
	return get(c, path, KindImports, func(e *Entry) []types.ImportData { return e.Imports })
}

// TypeConformances returns the cached type composition records for path.
func (c *FileCache) TypeConformances(path string) ([]types.TypeConformanceData, bool) {
	return get(c, path, KindTypeConformances, func(e *Entry) []types.TypeConformanceData { return e.TypeConformances })
}

// Extensions returns the cached method sets for path.
func (c *FileCache) Extensions(path string) ([]types.ExtensionData, bool) {
	return get(c, path, KindExtensions, func(e *Entry) []types.ExtensionData { return e.Extensions })
}

// PropertyWrappers returns the cached struct tag records for path.
func (c *FileCache) PropertyWrappers(path string) ([]types.PropertyWrapperData, bool) {
	return get(c, path, KindPropertyWrappers, func(e *Entry) []types.PropertyWrapperData { return e.PropertyWrappers })
}

// SetSymbols stores symbols for path. It returns false, storing nothing,
// when the file cannot be stat'ed.
func (c *FileCache) SetSymbols(path string, v []types.SymbolData) bool {
	return set(c, path, KindSymbols, v, func(e *Entry, v []types.SymbolData) { e.Symbols = v })
}

// SetImports stores imports for path.
func (c *FileCache) SetImports(path string, v []types.ImportData) bool {
	return set(c, path, KindImports, v, func(e *Entry, v []types.ImportData) { e.Imports = v })
}

// SetTypeConformances stores type composition records for path.
func (c *FileCache) SetTypeConformances(path string, v []types.TypeConformanceData) bool {
	return set(c, path, KindTypeConformances, v, func(e *Entry, v []types.TypeConformanceData) { e.TypeConformances = v })
}

// SetExtensions stores method sets for path.
func (c *FileCache) SetExtensions(path string, v []types.ExtensionData) bool {
	return set(c, path, KindExtensions, v, func(e *Entry, v []types.ExtensionData) { e.Extensions = v })
}

// SetPropertyWrappers stores struct tag records for path.
func (c *FileCache) SetPropertyWrappers(path string, v []types.PropertyWrapperData) bool {
	return set(c, path, KindPropertyWrappers, v, func(e *Entry, v []types.PropertyWrapperData) { e.PropertyWrappers = v })
}

// SetAll stores every payload of an analysis result under one mtime.
func (c *FileCache) SetAll(path string, r *types.AnalysisResult) bool {
	mtime, err := c.stat(path)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryForStore(path, mtime)
	e.Symbols = nonNil(r.Symbols)
	e.Imports = nonNil(r.Imports)
	e.TypeConformances = nonNil(r.TypeConformances)
	e.Extensions = nonNil(r.Extensions)
	e.PropertyWrappers = nonNil(r.PropertyWrappers)
	for _, kind := range AllKinds {
		cacheStoresTotal.WithLabelValues(string(kind)).Inc()
	}
	return true
}

func get[T any](c *FileCache, path string, kind Kind, pick func(*Entry) []T) ([]T, bool) {
	mtime, statErr := c.stat(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount++
	e, ok := c.entries[path]
	if !ok {
		cacheLookupsTotal.WithLabelValues(string(kind), resultMiss).Inc()
		return nil, false
	}
	if statErr != nil || !e.validAt(mtime) {
		cacheLookupsTotal.WithLabelValues(string(kind), resultStale).Inc()
		return nil, false
	}
	v := pick(e)
	if v == nil {
		cacheLookupsTotal.WithLabelValues(string(kind), resultMiss).Inc()
		return nil, false
	}
	e.LastAccessed = c.now()
	cacheLookupsTotal.WithLabelValues(string(kind), resultHit).Inc()
	return v, true
}

func set[T any](c *FileCache, path string, kind Kind, v []T, assign func(*Entry, []T)) bool {
	mtime, err := c.stat(path)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryForStore(path, mtime)
	assign(e, nonNil(v))
	cacheStoresTotal.WithLabelValues(string(kind)).Inc()
	return true
}

// entryForStore returns the entry for path stamped with mtime, creating it
// if needed. Payloads computed against an older version of the file are
// dropped so they cannot become valid again under the new stamp.
// Callers hold c.mu.
func (c *FileCache) entryForStore(path string, mtime time.Time) *Entry {
	now := c.now()
	e, ok := c.entries[path]
	if !ok {
		e = &Entry{FilePath: path}
		c.entries[path] = e
	} else if !e.validAt(mtime) {
		e.clearPayloads()
	}
	e.LastModified = mtime
	e.LastAccessed = now
	return e
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// IsStale reports whether path has no entry or its entry is out of date.
func (c *FileCache) IsStale(path string) bool {
	mtime, err := c.stat(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	return !ok || err != nil || !e.validAt(mtime)
}

// Entry returns a copy of the entry for path regardless of staleness.
func (c *FileCache) Entry(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops the entry for path.
func (c *FileCache) Remove(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Clear drops every entry and resets the counters.
func (c *FileCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.requestCount = 0
	c.lastCleanup = time.Time{}
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Paths returns every cached path, sorted.
func (c *FileCache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedPathsLocked()
}

func (c *FileCache) sortedPathsLocked() []string {
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GarbageCollect removes every entry whose path is not in valid and returns
// how many were removed.
func (c *FileCache) GarbageCollect(valid map[string]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collectLocked(valid)
}

func (c *FileCache) collectLocked(valid map[string]struct{}) int {
	removed := 0
	for path := range c.entries {
		if _, ok := valid[path]; !ok {
			delete(c.entries, path)
			removed++
		}
	}
	cacheCollectedTotal.Add(float64(removed))
	return removed
}

// EvictLRU removes the least recently accessed entries until at most limit
// remain and returns how many were removed.
func (c *FileCache) EvictLRU(limit int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(limit)
}

func (c *FileCache) evictLocked(limit int) int {
	if limit < 0 {
		limit = 0
	}
	excess := len(c.entries) - limit
	if excess <= 0 {
		return 0
	}

	victims := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if !victims[i].LastAccessed.Equal(victims[j].LastAccessed) {
			return victims[i].LastAccessed.Before(victims[j].LastAccessed)
		}
		return victims[i].FilePath < victims[j].FilePath
	})

	for _, e := range victims[:excess] {
		delete(c.entries, e.FilePath)
	}
	cacheEvictionsTotal.Add(float64(excess))
	return excess
}

// CheckAndRun garbage-collects against valid and, when the cache is still
// above its threshold, evicts down to it.
func (c *FileCache) CheckAndRun(valid map[string]struct{}) (removed, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed = c.collectLocked(valid)
	if len(c.entries) > c.maxEntries {
		evicted = c.evictLocked(c.maxEntries)
	}
	c.lastCleanup = c.now()

	if removed > 0 || evicted > 0 {
		c.logger.Info("cache cleanup",
			slog.String("dir", c.dir),
			slog.Int("removed", removed),
			slog.Int("evicted", evicted),
			slog.Int("entries", len(c.entries)),
		)
	}
	return removed, evicted
}

// Stats summarizes the cache contents.
type Stats struct {
	TotalFiles          int       `json:"total_files"`
	FilesWithSymbols    int       `json:"files_with_symbols"`
	FilesWithImports    int       `json:"files_with_imports"`
	FilesWithTypes      int       `json:"files_with_types"`
	FilesWithExtensions int       `json:"files_with_extensions"`
	FilesWithWrappers   int       `json:"files_with_wrappers"`
	RequestCount        int64     `json:"request_count"`
	LastCleanup         time.Time `json:"last_cleanup"`
}

// Stats returns counts of entries and payloads.
func (c *FileCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		TotalFiles:   len(c.entries),
		RequestCount: c.requestCount,
		LastCleanup:  c.lastCleanup,
	}
	for _, e := range c.entries {
		if e.Has(KindSymbols) {
			s.FilesWithSymbols++
		}
		if e.Has(KindImports) {
			s.FilesWithImports++
		}
		if e.Has(KindTypeConformances) {
			s.FilesWithTypes++
		}
		if e.Has(KindExtensions) {
			s.FilesWithExtensions++
		}
		if e.Has(KindPropertyWrappers) {
			s.FilesWithWrappers++
		}
	}
	return s
}
