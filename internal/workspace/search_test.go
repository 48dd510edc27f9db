package workspace

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gosight-mcp/internal/analyzer"
)

const greetTest = `package main

import "testing"

func TestGreet(t *testing.T) {}

func TestMain(m *testing.M) {}

func BenchmarkGreet(b *testing.B) {}

func ExampleGreeter_Greet() {}

func newGreeter(t *testing.T) *Greeter { return &Greeter{} }
`

func TestTestCases(t *testing.T) {
	an := newCountingAnalyzer()
	ws, root := newProject(t, an)
	testFile := filepath.Join(root, "greet_test.go")
	writeFile(t, testFile, greetTest)
	ctx := context.Background()

	found, err := ws.TestCases(ctx, "")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, testFile, found[0].File)
	assert.Equal(t, []analyzer.TestCase{
		{Name: "TestGreet", Kind: analyzer.TestKindTest, Line: 5},
		{Name: "BenchmarkGreet", Kind: analyzer.TestKindBenchmark, Line: 9},
		{Name: "ExampleGreeter_Greet", Kind: analyzer.TestKindExample, Line: 11},
	}, found[0].Cases)
	assert.Equal(t, 0, an.callsFor(filepath.Join(root, "greet.go")), "only test files are analyzed")

	_, ok := ws.Cache().Symbols(testFile)
	assert.True(t, ok, "test file symbols are cached")

	_, err = ws.TestCases(ctx, "greet_test.go")
	require.NoError(t, err)
	assert.Equal(t, 1, an.callsFor(testFile), "a second listing is served from the cache")

	found, err = ws.TestCases(ctx, "greet.go")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = ws.TestCases(ctx, "missing_test.go")
	assert.Error(t, err)
}

func TestTypeUsagesAcrossProject(t *testing.T) {
	ws, root := newProject(t, analyzer.New())
	writeFile(t, filepath.Join(root, "greet_test.go"), greetTest)

	found, err := ws.TypeUsages(context.Background(), "Greeter")
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, filepath.Join(root, "greet.go"), found[0].File)
	require.Len(t, found[0].Usages, 1)
	assert.Equal(t, "receiver", found[0].Usages[0].Kind)
	assert.Equal(t, 9, found[0].Usages[0].Line)

	assert.Equal(t, filepath.Join(root, "greet_test.go"), found[1].File)
	kinds := []string{}
	for _, u := range found[1].Usages {
		kinds = append(kinds, u.Kind)
	}
	assert.Equal(t, []string{"result", "literal"}, kinds)

	found, err = ws.TypeUsages(context.Background(), "Nothing")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSearchCode(t *testing.T) {
	ws, root := newProject(t, analyzer.New())
	ctx := context.Background()

	matches, truncated, err := ws.SearchCode(ctx, regexp.MustCompile(`Greeting`), "", 10)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, matches, 3)
	assert.Equal(t, CodeMatch{File: filepath.Join(root, "greet.go"), Line: 3, Text: `const Greeting = "hi"`}, matches[0])
	assert.Equal(t, filepath.Join(root, "main.go"), matches[2].File)

	matches, truncated, err = ws.SearchCode(ctx, regexp.MustCompile(`Greeting`), "", 2)
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, matches, 2)

	matches, _, err = ws.SearchCode(ctx, regexp.MustCompile(`^func`), "util*.go", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "func Helper() {}", matches[0].Text)

	matches, _, err = ws.SearchCode(ctx, regexp.MustCompile(`package`), "", 50)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotContains(t, m.File, "vendor", "skipped directories are not searched")
	}

	_, _, err = ws.SearchCode(ctx, regexp.MustCompile(`x`), "[", 10)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = ws.SearchCode(cancelled, regexp.MustCompile(`x`), "", 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindFiles(t *testing.T) {
	ws, _ := newProject(t, analyzer.New())

	tests := []struct {
		pattern string
		want    []string
	}{
		{"*.go", []string{"greet.go", filepath.Join("internal", "util", "util.go"), "main.go"}},
		{"g*.go", []string{"greet.go"}},
		{"internal/*/*.go", []string{filepath.Join("internal", "util", "util.go")}},
		{"UTIL", []string{filepath.Join("internal", "util", "util.go")}},
		{"dep", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			files, err := ws.FindFiles(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}

	_, err := ws.FindFiles("[")
	assert.ErrorIs(t, err, filepath.ErrBadPattern)
}
