package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gosight-mcp/internal/analyzer"
	"github.com/dshills/gosight-mcp/pkg/types"
)

// countingAnalyzer wraps the Go analyzer and counts calls per path.
type countingAnalyzer struct {
	inner *analyzer.GoAnalyzer
	delay time.Duration
	fail  map[string]error

	mu    sync.Mutex
	calls map[string]int
	total atomic.Int32
}

func newCountingAnalyzer() *countingAnalyzer {
	return &countingAnalyzer{
		inner: analyzer.New(),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (a *countingAnalyzer) Analyze(path string) (*types.AnalysisResult, error) {
	a.total.Add(1)
	a.mu.Lock()
	a.calls[path]++
	err := a.fail[path]
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if err != nil {
		return nil, err
	}
	return a.inner.Analyze(path)
}

func (a *countingAnalyzer) callsFor(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[path]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newProject lays out a small module and opens a workspace on it.
func newProject(t *testing.T, an types.Analyzer) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/demo\n\ngo 1.22\n\nrequire golang.org/x/sync v0.7.0\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(Greeting) }\n")
	writeFile(t, filepath.Join(root, "greet.go"), "package main\n\nconst Greeting = \"hi\"\n\ntype Greeter struct {\n\tName string `json:\"name\"`\n}\n\nfunc (g *Greeter) Greet() string { return Greeting }\n")
	writeFile(t, filepath.Join(root, "internal", "util", "util.go"), "package util\n\nfunc Helper() {}\n")
	writeFile(t, filepath.Join(root, "vendor", "dep", "dep.go"), "package dep\n")
	writeFile(t, filepath.Join(root, ".hidden", "h.go"), "package h\n")
	writeFile(t, filepath.Join(root, "testdata", "fixture.go"), "package fixture\n")
	writeFile(t, filepath.Join(root, "README.md"), "# demo\n")

	cfg := DefaultConfig(t.TempDir())
	cfg.Workers = 2
	cfg.WatchDebounce = 20 * time.Millisecond

	ws, err := Open(root, cfg, an)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, root
}

func TestOpen(t *testing.T) {
	dataDir := t.TempDir()

	t.Run("relative root", func(t *testing.T) {
		_, err := Open("relative/path", DefaultConfig(dataDir), analyzer.New())
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "missing"), DefaultConfig(dataDir), analyzer.New())
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})

	t.Run("file root", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "f.go")
		writeFile(t, file, "package f\n")
		_, err := Open(file, DefaultConfig(dataDir), analyzer.New())
		assert.ErrorIs(t, err, ErrInvalidRoot)
	})

	t.Run("defaults", func(t *testing.T) {
		ws, err := Open(t.TempDir(), Config{DataDir: dataDir}, analyzer.New())
		require.NoError(t, err)
		defer ws.Close()
		assert.Equal(t, []string{".go"}, ws.cfg.Extensions)
		assert.Positive(t, ws.cfg.Workers)
	})
}

func TestSourceFiles(t *testing.T) {
	ws, root := newProject(t, analyzer.New())

	files, err := ws.SourceFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "greet.go"),
		filepath.Join(root, "internal", "util", "util.go"),
		filepath.Join(root, "main.go"),
	}, files)
}

func TestCacheThroughLookups(t *testing.T) {
	an := newCountingAnalyzer()
	ws, root := newProject(t, an)
	ctx := context.Background()
	greet := filepath.Join(root, "greet.go")

	syms, err := ws.Symbols(ctx, greet)
	require.NoError(t, err)
	names := make([]string, 0, len(syms))
	for _, s := range syms {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Greeting", "Greeter", "Name", "Greet"}, names)
	assert.Equal(t, 1, an.callsFor(greet))

	// Every other kind was stored by the first miss
	imports, err := ws.Imports(ctx, "greet.go")
	require.NoError(t, err)
	assert.Empty(t, imports)
	exts, err := ws.Extensions(ctx, greet)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, "Greeter", exts[0].ExtendedType)
	tags, err := ws.PropertyWrappers(ctx, greet)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "json", tags[0].WrapperType)
	tcs, err := ws.TypeConformances(ctx, greet)
	require.NoError(t, err)
	require.Len(t, tcs, 1)
	assert.Equal(t, 1, an.callsFor(greet))

	t.Run("modified file is analyzed again", func(t *testing.T) {
		writeFile(t, greet, "package main\n\nfunc Replaced() {}\n")
		future := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(greet, future, future))

		syms, err := ws.Symbols(ctx, greet)
		require.NoError(t, err)
		require.Len(t, syms, 1)
		assert.Equal(t, "Replaced", syms[0].Name)
		assert.Equal(t, 2, an.callsFor(greet))
	})

	t.Run("analyzer errors propagate", func(t *testing.T) {
		_, err := ws.Symbols(ctx, filepath.Join(root, "missing.go"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConcurrentMissesShareAnalysis(t *testing.T) {
	an := newCountingAnalyzer()
	an.delay = 50 * time.Millisecond
	ws, root := newProject(t, an)
	main := filepath.Join(root, "main.go")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ws.Imports(context.Background(), main)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, an.callsFor(main))
}

func TestLookupCanceled(t *testing.T) {
	an := newCountingAnalyzer()
	an.delay = 200 * time.Millisecond
	ws, root := newProject(t, an)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := ws.Symbols(ctx, filepath.Join(root, "main.go"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWarm(t *testing.T) {
	an := newCountingAnalyzer()
	ws, root := newProject(t, an)
	ctx := context.Background()

	broken := filepath.Join(root, "internal", "util", "util.go")
	an.fail[broken] = errors.New("boom")

	stats, err := ws.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Analyzed)
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Skipped)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "boom")
	assert.Equal(t, 2, ws.Cache().Len())

	_, err = os.Stat(filepath.Join(ws.Cache().Dir(), "cache.json"))
	assert.NoError(t, err, "warm-up persists the cache")

	t.Run("second warm skips valid entries", func(t *testing.T) {
		delete(an.fail, broken)
		stats, err := ws.Warm(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Skipped)
		assert.Equal(t, 1, stats.Analyzed)
	})

	t.Run("concurrent warm is rejected", func(t *testing.T) {
		require.True(t, ws.warm.TryAcquire())
		defer ws.warm.Release()
		_, err := ws.Warm(ctx)
		assert.ErrorIs(t, err, ErrWarmInProgress)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ws.Warm(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ws.warm.Held())
	})
}

func TestReconcile(t *testing.T) {
	ws, root := newProject(t, analyzer.New())
	ctx := context.Background()

	_, err := ws.Warm(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, ws.Cache().Len())

	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))
	removed, evicted, err := ws.Reconcile()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, evicted)
	assert.Equal(t, 2, ws.Cache().Len())
}

func TestCloseAndReopen(t *testing.T) {
	dataDir := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a\n\nfunc A() {}\n")

	an := newCountingAnalyzer()
	ws, err := Open(root, DefaultConfig(dataDir), an)
	require.NoError(t, err)
	_, err = ws.Symbols(context.Background(), "a.go")
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close(), "close is idempotent")
	assert.ErrorIs(t, ws.Watch(context.Background()), ErrClosed)

	again, err := Open(root, DefaultConfig(dataDir), an)
	require.NoError(t, err)
	defer again.Close()

	syms, err := again.Symbols(context.Background(), filepath.Join(root, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "A", syms[0].Name)
	assert.Equal(t, int32(1), an.total.Load(), "reopened workspace serves from the persisted cache")
}

func TestModule(t *testing.T) {
	ws, _ := newProject(t, analyzer.New())

	info, err := ws.Module()
	require.NoError(t, err)
	assert.Equal(t, "example.com/demo", info.Path)
	assert.Equal(t, "1.22", info.GoVersion)
	assert.Equal(t, 1, info.Requires)

	bare, err := Open(t.TempDir(), DefaultConfig(t.TempDir()), analyzer.New())
	require.NoError(t, err)
	defer bare.Close()
	_, err = bare.Module()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWarmGate(t *testing.T) {
	var l warmGate
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	assert.True(t, l.Held())
	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
}
