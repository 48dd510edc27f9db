package lsp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindReferences(t *testing.T) {
	sess := startFake(t)
	path := sess.writeFile(t, "main.go", "package main\n\nfunc helper() {}\n\nfunc main() { helper() }\n")
	other := filepath.Join(sess.root, "other.go")

	sess.server.setResult("textDocument/references", []map[string]any{
		{
			"uri":   string(documentURI(path)),
			"range": map[string]any{"start": map[string]int{"line": 4, "character": 14}, "end": map[string]int{"line": 4, "character": 20}},
		},
		{
			"uri":   string(documentURI(other)),
			"range": map[string]any{"start": map[string]int{"line": 0, "character": 0}, "end": map[string]int{"line": 0, "character": 6}},
		},
	})

	refs, err := sess.conn.FindReferences(context.Background(), path, 2, 5)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{FilePath: path, Line: 5, Column: 15}, refs[0])
	assert.Equal(t, Reference{FilePath: other, Line: 1, Column: 1}, refs[1])

	t.Run("document is opened before the query", func(t *testing.T) {
		methods := sess.server.seenMethods()
		openAt, refsAt := -1, -1
		for i, m := range methods {
			switch m {
			case "textDocument/didOpen":
				if openAt < 0 {
					openAt = i
				}
			case "textDocument/references":
				refsAt = i
			}
		}
		require.GreaterOrEqual(t, openAt, 0)
		assert.Less(t, openAt, refsAt)
	})

	t.Run("declaration is excluded", func(t *testing.T) {
		sess.server.holdMethod("textDocument/references")
		go func() {
			_, _ = sess.conn.FindReferences(context.Background(), path, 2, 5)
		}()
		held := sess.server.awaitHeld(t, 1)
		var params struct {
			Context struct {
				IncludeDeclaration bool `json:"includeDeclaration"`
			} `json:"context"`
			Position struct {
				Line      int `json:"line"`
				Character int `json:"character"`
			} `json:"position"`
		}
		require.NoError(t, json.Unmarshal(*held[0].Params, &params))
		assert.False(t, params.Context.IncludeDeclaration)
		assert.Equal(t, 2, params.Position.Line)
		assert.Equal(t, 5, params.Position.Character)
		require.NoError(t, sess.rpc.Reply(context.Background(), held[0].ID, nil))
	})
}

func TestFindReferencesEmpty(t *testing.T) {
	for _, result := range []any{nil, []any{}} {
		sess := startFake(t)
		path := sess.writeFile(t, "a.go", "package a\n")
		sess.server.setResult("textDocument/references", result)

		refs, err := sess.conn.FindReferences(context.Background(), path, 0, 0)
		require.NoError(t, err)
		assert.NotNil(t, refs)
		assert.Empty(t, refs)
	}
}

func TestFindReferencesInvalidPosition(t *testing.T) {
	sess := startFake(t)
	_, err := sess.conn.FindReferences(context.Background(), sess.root+"/a.go", -1, 0)
	assert.Error(t, err)
}

func TestDecodeLocations(t *testing.T) {
	t.Run("location links", func(t *testing.T) {
		raw := json.RawMessage(`[{"targetUri":"file:///repo/x.go","targetRange":{"start":{"line":9,"character":0},"end":{"line":12,"character":1}},"targetSelectionRange":{"start":{"line":9,"character":5},"end":{"line":9,"character":8}}}]`)
		refs, err := decodeLocations(raw)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, filepath.FromSlash("/repo/x.go"), refs[0].FilePath)
		assert.Equal(t, 10, refs[0].Line)
	})

	t.Run("single location", func(t *testing.T) {
		raw := json.RawMessage(`{"uri":"file:///repo/y.go","range":{"start":{"line":0,"character":2},"end":{"line":0,"character":3}}}`)
		refs, err := decodeLocations(raw)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, 1, refs[0].Line)
		assert.Equal(t, 3, refs[0].Column)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := decodeLocations(json.RawMessage(`"nope"`))
		assert.Error(t, err)
	})
}

func TestListSymbols(t *testing.T) {
	sess := startFake(t)
	path := sess.writeFile(t, "server.go", "package server\n")

	sess.server.setResult("textDocument/documentSymbol", []map[string]any{
		{
			"name":           "Server",
			"detail":         "struct{...}",
			"kind":           23,
			"range":          map[string]any{"start": map[string]int{"line": 2, "character": 0}, "end": map[string]int{"line": 10, "character": 1}},
			"selectionRange": map[string]any{"start": map[string]int{"line": 2, "character": 5}, "end": map[string]int{"line": 2, "character": 11}},
			"children": []map[string]any{
				{
					"name":           "addr",
					"detail":         "string",
					"kind":           8,
					"range":          map[string]any{"start": map[string]int{"line": 3, "character": 1}, "end": map[string]int{"line": 3, "character": 12}},
					"selectionRange": map[string]any{"start": map[string]int{"line": 3, "character": 1}, "end": map[string]int{"line": 3, "character": 5}},
				},
			},
		},
		{
			"name":           "New",
			"detail":         "func() *Server",
			"kind":           12,
			"range":          map[string]any{"start": map[string]int{"line": 12, "character": 0}, "end": map[string]int{"line": 14, "character": 1}},
			"selectionRange": map[string]any{"start": map[string]int{"line": 12, "character": 5}, "end": map[string]int{"line": 12, "character": 8}},
		},
	})

	syms, err := sess.conn.ListSymbols(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, syms, 3)

	assert.Equal(t, Symbol{Name: "Server", Kind: "Struct", Detail: "struct{...}", Line: 3}, syms[0])
	assert.Equal(t, Symbol{Name: "addr", Kind: "Field", Detail: "string", Line: 4, Container: "Server"}, syms[1])
	assert.Equal(t, Symbol{Name: "New", Kind: "Function", Detail: "func() *Server", Line: 13}, syms[2])
}

func TestDecodeSymbolInformation(t *testing.T) {
	raw := json.RawMessage(`[
		{"name":"Run","kind":6,"containerName":"Worker","location":{"uri":"file:///repo/w.go","range":{"start":{"line":20,"character":0},"end":{"line":25,"character":1}}}},
		{"name":"weird","kind":99,"location":{"uri":"file:///repo/w.go","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}}}
	]`)
	syms, err := decodeSymbols(raw)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, Symbol{Name: "Run", Kind: "Method", Line: 21, Container: "Worker"}, syms[0])
	assert.Equal(t, "Unknown(99)", syms[1].Kind)

	empty, err := decodeSymbols(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSymbolKindName(t *testing.T) {
	tests := map[int]string{
		1:  "File",
		5:  "Class",
		6:  "Method",
		12: "Function",
		13: "Variable",
		14: "Constant",
		23: "Struct",
		26: "TypeParameter",
		0:  "Unknown(0)",
		27: "Unknown(27)",
		-1: "Unknown(-1)",
	}
	for code, want := range tests {
		assert.Equal(t, want, SymbolKindName(code), "kind %d", code)
	}
}

func TestURIConversion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "ü.go")
	u := string(documentURI(path))
	assert.Contains(t, u, "file://")
	assert.Equal(t, path, uriToPath(u))

	assert.Equal(t, "untitled:Untitled-1", uriToPath("untitled:Untitled-1"))
}
