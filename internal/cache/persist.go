package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// documentVersion is bumped when the persisted layout changes incompatibly.
const documentVersion = 1

type document struct {
	Version      int               `json:"version"`
	FileCache    map[string]*Entry `json:"fileCache"`
	LastCleanup  time.Time         `json:"lastCleanup"`
	RequestCount int64             `json:"requestCount"`
}

// Save writes the cache to dir/cache.json. The document is written to a
// temporary file first and renamed into place.
func (c *FileCache) Save() error {
	start := time.Now()
	defer func() {
		cacheSaveDuration.Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	doc := document{
		Version:      documentVersion,
		FileCache:    c.entries,
		LastCleanup:  c.lastCleanup,
		RequestCount: c.requestCount,
	}
	data, err := json.Marshal(doc)
	n := len(c.entries)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrCacheIO, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrCacheIO, c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrCacheIO, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: write: %v", ErrCacheIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrCacheIO, err)
	}
	if err := os.Rename(tmpName, c.path()); err != nil {
		return fmt.Errorf("%w: rename: %v", ErrCacheIO, err)
	}

	c.logger.Debug("cache saved",
		slog.String("path", c.path()),
		slog.Int("entries", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Load replaces the in-memory entries with the persisted document. A
// missing document leaves the cache empty and is not an error.
func (c *FileCache) Load() error {
	data, err := os.ReadFile(c.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrCacheIO, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCacheIO, c.path(), err)
	}
	if doc.Version != documentVersion {
		return fmt.Errorf("%w: unsupported document version %d", ErrCacheIO, doc.Version)
	}

	entries := make(map[string]*Entry, len(doc.FileCache))
	for path, e := range doc.FileCache {
		if e == nil {
			continue
		}
		e.FilePath = path
		entries[path] = e
	}

	c.mu.Lock()
	c.entries = entries
	c.lastCleanup = doc.LastCleanup
	c.requestCount = doc.RequestCount
	c.mu.Unlock()

	c.logger.Debug("cache loaded",
		slog.String("path", c.path()),
		slog.Int("entries", len(entries)),
	)
	return nil
}

func (c *FileCache) path() string {
	return filepath.Join(c.dir, FileName)
}

// DirForProject returns the cache directory for a project root under
// baseDir. Equal roots map to the same directory.
func DirForProject(baseDir, projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolve project root %s: %w", projectRoot, err)
	}
	sum := xxh3.HashString(filepath.Clean(abs))
	return filepath.Join(baseDir, "projects", strconv.FormatUint(sum, 16)), nil
}
