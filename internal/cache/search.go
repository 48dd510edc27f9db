package cache

import (
	"slices"

	"github.com/dshills/gosight-mcp/pkg/types"
)

// FindFilesWithSymbol returns the paths whose cached, still valid symbols
// include one named name, sorted.
func (c *FileCache) FindFilesWithSymbol(name string) []string {
	return c.matchValid(func(e *Entry) bool {
		return slices.ContainsFunc(e.Symbols, func(s types.SymbolData) bool {
			return s.Name == name
		})
	})
}

// FindFilesContainingType returns the paths that declare, embed or add
// methods to the type name, sorted.
func (c *FileCache) FindFilesContainingType(name string) []string {
	return c.matchValid(func(e *Entry) bool {
		for _, tc := range e.TypeConformances {
			if tc.TypeName == name || tc.Superclass == name || slices.Contains(tc.Protocols, name) {
				return true
			}
		}
		return slices.ContainsFunc(e.Extensions, func(x types.ExtensionData) bool {
			return x.ExtendedType == name
		})
	})
}

// AllTypeConformances returns every cached, still valid type record keyed
// by file path.
func (c *FileCache) AllTypeConformances() map[string][]types.TypeConformanceData {
	out := make(map[string][]types.TypeConformanceData)
	for _, path := range c.matchValid(func(e *Entry) bool { return len(e.TypeConformances) > 0 }) {
		if tcs, ok := c.TypeConformances(path); ok {
			out[path] = tcs
		}
	}
	return out
}

// matchValid returns the sorted paths of entries that satisfy match and are
// not stale. Files are stat'ed outside the lock.
func (c *FileCache) matchValid(match func(*Entry) bool) []string {
	type candidate struct {
		path     string
		modified int64
	}

	c.mu.Lock()
	var candidates []candidate
	for _, path := range c.sortedPathsLocked() {
		e := c.entries[path]
		if match(e) {
			candidates = append(candidates, candidate{path: path, modified: e.LastModified.UnixNano()})
		}
	}
	c.mu.Unlock()

	paths := []string{}
	for _, cand := range candidates {
		mtime, err := c.stat(cand.path)
		if err != nil || mtime.UnixNano() > cand.modified {
			continue
		}
		paths = append(paths, cand.path)
	}
	return paths
}
