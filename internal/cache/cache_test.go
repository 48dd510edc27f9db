package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gosight-mcp/pkg/types"
)

// fakeFS serves modification times from memory.
type fakeFS struct {
	mu     sync.Mutex
	mtimes map[string]time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{mtimes: make(map[string]time.Time)}
}

func (f *fakeFS) touch(path string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtimes[path] = t
}

func (f *fakeFS) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.mtimes, path)
}

func (f *fakeFS) stat(path string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.mtimes[path]
	if !ok {
		return time.Time{}, os.ErrNotExist
	}
	return t, nil
}

// fakeClock advances one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, opts ...Option) (*FileCache, *fakeFS) {
	t.Helper()
	fs := newFakeFS()
	clock := &fakeClock{now: base}
	all := append([]Option{WithStat(fs.stat), WithClock(clock.Now)}, opts...)
	return New(t.TempDir(), all...), fs
}

func sym(name string) types.SymbolData {
	return types.SymbolData{Name: name, Kind: types.KindFunction, Line: 1}
}

func TestGetSet(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)

	_, ok := c.Symbols("/p/a.go")
	assert.False(t, ok, "empty cache misses")

	require.True(t, c.SetSymbols("/p/a.go", []types.SymbolData{sym("Foo")}))

	got, ok := c.Symbols("/p/a.go")
	require.True(t, ok)
	assert.Equal(t, []types.SymbolData{sym("Foo")}, got)

	_, ok = c.Imports("/p/a.go")
	assert.False(t, ok, "uncomputed kind misses")

	t.Run("empty result is a hit", func(t *testing.T) {
		require.True(t, c.SetImports("/p/a.go", nil))
		got, ok := c.Imports("/p/a.go")
		require.True(t, ok)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("unstatable file is not stored", func(t *testing.T) {
		assert.False(t, c.SetSymbols("/p/missing.go", []types.SymbolData{sym("X")}))
		assert.Equal(t, 1, c.Len())
	})
}

func TestStaleness(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)
	require.True(t, c.SetSymbols("/p/a.go", []types.SymbolData{sym("Old")}))
	require.True(t, c.SetImports("/p/a.go", []types.ImportData{{Module: "fmt", Line: 3}}))
	assert.False(t, c.IsStale("/p/a.go"))

	t.Run("older mtime stays valid", func(t *testing.T) {
		fs.touch("/p/a.go", base.Add(-time.Hour))
		_, ok := c.Symbols("/p/a.go")
		assert.True(t, ok)
	})

	fs.touch("/p/a.go", base.Add(time.Minute))
	assert.True(t, c.IsStale("/p/a.go"))

	before, ok := c.Entry("/p/a.go")
	require.True(t, ok)
	_, ok = c.Symbols("/p/a.go")
	assert.False(t, ok, "modified file misses")
	after, _ := c.Entry("/p/a.go")
	assert.Equal(t, before, after, "stale read must not mutate")

	t.Run("storing after modification drops old payloads", func(t *testing.T) {
		require.True(t, c.SetSymbols("/p/a.go", []types.SymbolData{sym("New")}))
		got, ok := c.Symbols("/p/a.go")
		require.True(t, ok)
		assert.Equal(t, "New", got[0].Name)

		_, ok = c.Imports("/p/a.go")
		assert.False(t, ok, "imports were computed against the old file")
	})

	t.Run("deleted file misses", func(t *testing.T) {
		fs.remove("/p/a.go")
		_, ok := c.Symbols("/p/a.go")
		assert.False(t, ok)
		assert.True(t, c.IsStale("/p/a.go"))
	})

	assert.True(t, c.IsStale("/p/never.go"))
}

func TestSetAll(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)

	require.True(t, c.SetAll("/p/a.go", &types.AnalysisResult{
		FilePath: "/p/a.go",
		Symbols:  []types.SymbolData{sym("Foo")},
		Imports:  []types.ImportData{{Module: "os", Line: 2}},
	}))

	e, ok := c.Entry("/p/a.go")
	require.True(t, ok)
	for _, kind := range AllKinds {
		assert.True(t, e.Has(kind), "kind %s", kind)
	}
	tcs, ok := c.TypeConformances("/p/a.go")
	assert.True(t, ok)
	assert.Empty(t, tcs)
}

func TestAccessStamps(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)
	require.True(t, c.SetSymbols("/p/a.go", []types.SymbolData{sym("A")}))

	e1, _ := c.Entry("/p/a.go")
	_, ok := c.Symbols("/p/a.go")
	require.True(t, ok)
	e2, _ := c.Entry("/p/a.go")
	assert.True(t, e2.LastAccessed.After(e1.LastAccessed))
	assert.True(t, e2.LastModified.Equal(base))

	assert.Equal(t, int64(1), c.Stats().RequestCount)
	_, _ = c.Imports("/p/a.go")
	_, _ = c.Symbols("/p/none.go")
	assert.Equal(t, int64(3), c.Stats().RequestCount)
}

func TestGarbageCollect(t *testing.T) {
	c, fs := newTestCache(t)
	for _, p := range []string{"/p/a.go", "/p/b.go", "/p/c.go"} {
		fs.touch(p, base)
		require.True(t, c.SetSymbols(p, []types.SymbolData{sym("X")}))
	}

	removed := c.GarbageCollect(map[string]struct{}{"/p/a.go": {}, "/p/c.go": {}})
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"/p/a.go", "/p/c.go"}, c.Paths())

	assert.Equal(t, 2, c.GarbageCollect(nil))
	assert.Zero(t, c.Len())
}

func TestEvictLRU(t *testing.T) {
	c, fs := newTestCache(t)
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("/p/%d.go", i)
		fs.touch(p, base)
		require.True(t, c.SetSymbols(p, []types.SymbolData{sym("X")}))
	}
	// Touch 0 and 1 so they become the most recent
	_, _ = c.Symbols("/p/0.go")
	_, _ = c.Symbols("/p/1.go")

	assert.Equal(t, 2, c.EvictLRU(3))
	assert.Equal(t, []string{"/p/0.go", "/p/1.go", "/p/4.go"}, c.Paths())

	assert.Zero(t, c.EvictLRU(10))
	assert.Equal(t, 3, c.EvictLRU(0))
	assert.Zero(t, c.Len())
}

func TestEvictLRUKeepsNewest(t *testing.T) {
	c, fs := newTestCache(t, WithMaxEntries(5))

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = fmt.Sprintf("/p/%02d.go", i)
		fs.touch(paths[i], base)
		require.True(t, c.SetSymbols(paths[i], []types.SymbolData{sym(fmt.Sprintf("F%d", i))}))
	}
	for i := 1; i < len(paths); i++ {
		prev, _ := c.Entry(paths[i-1])
		cur, _ := c.Entry(paths[i])
		require.True(t, cur.LastAccessed.After(prev.LastAccessed), "access times must strictly increase")
	}

	assert.Equal(t, 5, c.EvictLRU(c.MaxEntries()))
	assert.Equal(t, paths[5:], c.Paths())

	for i, p := range paths {
		syms, ok := c.Symbols(p)
		if i < 5 {
			assert.False(t, ok, "%s should have been evicted", p)
			continue
		}
		require.True(t, ok, "%s should remain", p)
		assert.Equal(t, fmt.Sprintf("F%d", i), syms[0].Name)
	}
}

func TestCheckAndRun(t *testing.T) {
	c, fs := newTestCache(t, WithMaxEntries(2))
	assert.Equal(t, 2, c.MaxEntries())

	valid := make(map[string]struct{})
	for i := 0; i < 4; i++ {
		p := fmt.Sprintf("/p/%d.go", i)
		fs.touch(p, base)
		require.True(t, c.SetSymbols(p, []types.SymbolData{sym("X")}))
		if i > 0 {
			valid[p] = struct{}{}
		}
	}

	removed, evicted := c.CheckAndRun(valid)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"/p/2.go", "/p/3.go"}, c.Paths())
	assert.False(t, c.Stats().LastCleanup.IsZero())

	removed, evicted = c.CheckAndRun(valid)
	assert.Zero(t, removed)
	assert.Zero(t, evicted)
}

func TestStats(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)
	fs.touch("/p/b.go", base)
	require.True(t, c.SetAll("/p/a.go", &types.AnalysisResult{}))
	require.True(t, c.SetSymbols("/p/b.go", []types.SymbolData{sym("B")}))

	s := c.Stats()
	assert.Equal(t, 2, s.TotalFiles)
	assert.Equal(t, 2, s.FilesWithSymbols)
	assert.Equal(t, 1, s.FilesWithImports)
	assert.Equal(t, 1, s.FilesWithTypes)
	assert.Equal(t, 1, s.FilesWithExtensions)
	assert.Equal(t, 1, s.FilesWithWrappers)

	c.Clear()
	assert.Equal(t, Stats{}, c.Stats())
}

func TestSearch(t *testing.T) {
	c, fs := newTestCache(t)
	fs.touch("/p/a.go", base)
	fs.touch("/p/b.go", base)
	fs.touch("/p/c.go", base)

	require.True(t, c.SetAll("/p/a.go", &types.AnalysisResult{
		Symbols: []types.SymbolData{sym("Run"), sym("Server")},
		TypeConformances: []types.TypeConformanceData{
			{TypeName: "Server", TypeKind: types.KindStruct, Line: 5, Protocols: []string{"sync.Mutex"}},
		},
	}))
	require.True(t, c.SetAll("/p/b.go", &types.AnalysisResult{
		Symbols: []types.SymbolData{sym("Run")},
		Extensions: []types.ExtensionData{
			{ExtendedType: "Server", Line: 10, MemberCount: 1, Methods: []string{"Start"}},
		},
	}))
	require.True(t, c.SetAll("/p/c.go", &types.AnalysisResult{
		TypeConformances: []types.TypeConformanceData{
			{TypeName: "ID", TypeKind: types.KindType, Line: 3, Superclass: "Server"},
		},
	}))

	assert.Equal(t, []string{"/p/a.go", "/p/b.go"}, c.FindFilesWithSymbol("Run"))
	assert.Equal(t, []string{"/p/a.go", "/p/b.go", "/p/c.go"}, c.FindFilesContainingType("Server"))
	assert.Equal(t, []string{"/p/a.go"}, c.FindFilesContainingType("sync.Mutex"))
	assert.Empty(t, c.FindFilesWithSymbol("Nope"))

	all := c.AllTypeConformances()
	assert.Len(t, all, 2)
	assert.Equal(t, "Server", all["/p/a.go"][0].TypeName)

	t.Run("stale entries are skipped", func(t *testing.T) {
		fs.touch("/p/b.go", base.Add(time.Hour))
		assert.Equal(t, []string{"/p/a.go"}, c.FindFilesWithSymbol("Run"))
	})
}

func TestConcurrentAccess(t *testing.T) {
	c, fs := newTestCache(t)
	for i := 0; i < 20; i++ {
		fs.touch(fmt.Sprintf("/p/%d.go", i), base)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p := fmt.Sprintf("/p/%d.go", i)
				c.SetSymbols(p, []types.SymbolData{sym("X")})
				_, _ = c.Symbols(p)
				if g == 0 && i%5 == 0 {
					c.EvictLRU(10)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 20)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(src, []byte("package a\n"), 0o644))

	c := New(filepath.Join(dir, "cache"))
	require.True(t, c.SetSymbols(src, []types.SymbolData{sym("A")}))
	require.True(t, c.SetImports(src, []types.ImportData{}))
	c.CheckAndRun(map[string]struct{}{src: {}})
	require.NoError(t, c.Save())

	_, err := os.Stat(filepath.Join(dir, "cache", FileName))
	require.NoError(t, err)

	loaded, err := Open(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	syms, ok := loaded.Symbols(src)
	require.True(t, ok)
	assert.Equal(t, "A", syms[0].Name)

	imports, ok := loaded.Imports(src)
	require.True(t, ok, "empty payload survives persistence")
	assert.Empty(t, imports)

	_, ok = loaded.TypeConformances(src)
	assert.False(t, ok, "uncomputed payload stays uncomputed")

	orig, _ := c.Entry(src)
	got, _ := loaded.Entry(src)
	assert.True(t, orig.LastModified.Equal(got.LastModified))
	assert.False(t, loaded.Stats().LastCleanup.IsZero())
}

func TestSaveLoadPreservesEntries(t *testing.T) {
	c, fs := newTestCache(t)
	paths := []string{"/p/a.go", "/p/b.go", "/p/c.go"}
	for i, p := range paths {
		fs.touch(p, base.Add(time.Duration(i)*time.Minute))
		require.True(t, c.SetSymbols(p, []types.SymbolData{sym("S" + p)}))
	}
	require.True(t, c.SetImports("/p/b.go", []types.ImportData{{Module: "fmt", Line: 3}}))
	_, _ = c.Symbols("/p/a.go")
	require.NoError(t, c.Save())

	loaded, err := Open(c.Dir(), WithStat(fs.stat))
	require.NoError(t, err)
	assert.Equal(t, c.Paths(), loaded.Paths())

	for _, p := range paths {
		want, ok := c.Entry(p)
		require.True(t, ok)
		got, ok := loaded.Entry(p)
		require.True(t, ok, p)
		assert.True(t, want.LastModified.Equal(got.LastModified), "%s last modified", p)
		assert.True(t, want.LastAccessed.Equal(got.LastAccessed), "%s last accessed", p)
		assert.Equal(t, want.Symbols, got.Symbols)
		assert.Equal(t, want.Imports, got.Imports)
	}

	imports, ok := loaded.Imports("/p/b.go")
	require.True(t, ok)
	assert.Equal(t, "fmt", imports[0].Module)
}

func TestLoadFailures(t *testing.T) {
	t.Run("missing document", func(t *testing.T) {
		c, err := Open(filepath.Join(t.TempDir(), "none"))
		require.NoError(t, err)
		assert.Zero(t, c.Len())
	})

	t.Run("corrupt document", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))
		c, err := Open(dir)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCacheIO)
		require.NotNil(t, c)
		assert.Zero(t, c.Len())
	})

	t.Run("unknown version", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"version":99,"fileCache":{}}`), 0o644))
		_, err := Open(dir)
		assert.ErrorIs(t, err, ErrCacheIO)
	})

	t.Run("unwritable directory", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		c := New(filepath.Join(blocker, "cache"))
		assert.ErrorIs(t, c.Save(), ErrCacheIO)
	})
}

func TestDirForProject(t *testing.T) {
	baseDir := t.TempDir()

	a, err := DirForProject(baseDir, "/work/project")
	require.NoError(t, err)
	b, err := DirForProject(baseDir, "/work/project/")
	require.NoError(t, err)
	c, err := DirForProject(baseDir, "/work/other")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, filepath.Join(baseDir, "projects"), filepath.Dir(a))
}
