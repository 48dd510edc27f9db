package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeTestSource = `package main

import "testing"

func TestNewStore(t *testing.T) {
	if NewStore().Name != "shop" {
		t.Fatal("unexpected name")
	}
}

func TestMain(m *testing.M) {}

func BenchmarkLabel(b *testing.B) {}

func FuzzLabel(f *testing.F) {}
`

func TestSourceToolsRequireProject(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	_, err := s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{"pattern": "x"}))
	requireMCPError(t, err, ErrorCodeProjectNotInitialized)

	_, err = s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{"pattern": "*.go"}))
	requireMCPError(t, err, ErrorCodeProjectNotInitialized)

	_, err = s.handleFindTestCases(ctx, callRequest("find_test_cases", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeProjectNotInitialized)

	_, err = s.handleFindTypeUsages(ctx, callRequest("find_type_usages", map[string]interface{}{"type_name": "Store"}))
	requireMCPError(t, err, ErrorCodeProjectNotInitialized)
}

func TestFindTestCases(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	root := newProjectDir(t)
	writeFile(t, filepath.Join(root, "store_test.go"), storeTestSource)
	initProject(t, s, root)

	res, err := s.handleFindTestCases(ctx, callRequest("find_test_cases", map[string]interface{}{}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(3), out["count"], "TestMain is not a test")
	assert.Equal(t, map[string]interface{}{"test": float64(1), "benchmark": float64(1), "fuzz": float64(1)}, out["counts"])

	files := out["files"].([]interface{})
	require.Len(t, files, 1)
	file := files[0].(map[string]interface{})
	assert.Equal(t, "store_test.go", file["file"])
	first := file["cases"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "TestNewStore", first["name"])
	assert.Equal(t, float64(5), first["line"])

	res, err = s.handleFindTestCases(ctx, callRequest("find_test_cases", map[string]interface{}{"file_path": "store.go"}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, float64(0), out["count"])
	assert.Contains(t, out["message"], "No test functions")

	_, err = s.handleFindTestCases(ctx, callRequest("find_test_cases", map[string]interface{}{"file_path": "missing_test.go"}))
	requireMCPError(t, err, ErrorCodeFileNotFound)
}

func TestFindTypeUsages(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	initProject(t, s, newProjectDir(t))

	res, err := s.handleFindTypeUsages(ctx, callRequest("find_type_usages", map[string]interface{}{"type_name": "Store"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(4), out["count"])

	files := out["files"].([]interface{})
	require.Len(t, files, 1, "main.go only calls NewStore")
	file := files[0].(map[string]interface{})
	assert.Equal(t, "store.go", file["file"])
	var kinds []string
	for _, u := range file["usages"].([]interface{}) {
		kinds = append(kinds, u.(map[string]interface{})["kind"].(string))
	}
	assert.Equal(t, []string{"underlying", "result", "literal", "receiver"}, kinds)

	res, err = s.handleFindTypeUsages(ctx, callRequest("find_type_usages", map[string]interface{}{"type_name": "Missing"}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, float64(0), out["count"])
	assert.Contains(t, out["message"], "No usages found")

	_, err = s.handleFindTypeUsages(ctx, callRequest("find_type_usages", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestReadSymbol(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	root := newProjectDir(t)
	initProject(t, s, root)

	read := func(args map[string]interface{}) map[string]interface{} {
		t.Helper()
		res, err := s.handleReadSymbol(ctx, callRequest("read_symbol", args))
		require.NoError(t, err)
		return resultJSON(t, res)
	}

	out := read(map[string]interface{}{"file_path": "store.go", "symbol_path": "Store.Label"})
	assert.Equal(t, filepath.Join(root, "store.go"), out["file"])
	assert.Equal(t, "method", out["kind"])
	assert.Equal(t, "Store", out["receiver"])
	assert.Equal(t, float64(23), out["start_line"])
	assert.Equal(t, "func (s *Store) Label() string { return fmt.Sprint(s.Name) }", out["source"])

	out = read(map[string]interface{}{"file_path": "store.go", "symbol_path": "Base"})
	assert.Equal(t, "struct", out["kind"])
	assert.Equal(t, float64(5), out["start_line"], "the doc comment is included")
	assert.Equal(t, float64(8), out["end_line"])

	res, err := s.handleReadFunctionBody(ctx, callRequest("read_function_body", map[string]interface{}{
		"file_path": "store.go", "function_name": "NewStore",
	}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, `{ return &Store{Name: "shop"} }`, out["source"])
	assert.Equal(t, true, out["body_only"])

	t.Run("errors", func(t *testing.T) {
		_, err := s.handleReadSymbol(ctx, callRequest("read_symbol", map[string]interface{}{"file_path": "store.go", "symbol_path": "Missing"}))
		mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
		assert.Contains(t, mcpErr.Message, "symbol not found")

		_, err = s.handleReadFunctionBody(ctx, callRequest("read_function_body", map[string]interface{}{"file_path": "store.go", "function_name": "Base"}))
		requireMCPError(t, err, ErrorCodeInvalidParams)

		_, err = s.handleReadSymbol(ctx, callRequest("read_symbol", map[string]interface{}{"file_path": "store.go"}))
		requireMCPError(t, err, ErrorCodeInvalidParams)

		_, err = s.handleReadSymbol(ctx, callRequest("read_symbol", map[string]interface{}{"file_path": "gone.go", "symbol_path": "X"}))
		requireMCPError(t, err, ErrorCodeFileNotFound)
	})
}

func TestSearchCodeTool(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	initProject(t, s, newProjectDir(t))

	res, err := s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{"pattern": `fmt\.`}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, false, out["truncated"])
	first := out["matches"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "main.go", first["file"])
	assert.Equal(t, float64(9), first["line"])
	assert.Equal(t, "fmt.Println(strings.ToUpper(NewStore().Name))", first["text"])

	res, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{"pattern": `fmt\.`, "limit": float64(1)}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, true, out["truncated"])

	res, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{"pattern": `fmt\.`, "file_pattern": "store*.go"}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, "store*.go", out["file_pattern"])

	for name, args := range map[string]map[string]interface{}{
		"missing pattern": {},
		"bad regexp":      {"pattern": "("},
		"limit too small": {"pattern": "x", "limit": float64(0)},
		"limit too large": {"pattern": "x", "limit": float64(maxSearchLimit + 1)},
		"bad file glob":   {"pattern": "x", "file_pattern": "["},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.handleSearchCode(ctx, callRequest("search_code", args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestFindFilesTool(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	root := newProjectDir(t)
	writeFile(t, filepath.Join(root, "store_test.go"), storeTestSource)
	initProject(t, s, root)

	res, err := s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{"pattern": "*_test.go"}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(1), out["count"])
	assert.Equal(t, []interface{}{"store_test.go"}, out["files"])

	res, err = s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{"pattern": "STORE"}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), resultJSON(t, res)["count"])

	res, err = s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{"pattern": "nothing"}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, resultJSON(t, res)["files"])

	_, err = s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{"pattern": "["}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleFindFiles(ctx, callRequest("find_files", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}
