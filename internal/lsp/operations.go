package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Reference is one location where a symbol is used.
type Reference struct {
	FilePath string `json:"file_path"`
	// Line is 1-based
	Line int `json:"line"`
	// Column is 1-based
	Column int `json:"column"`
}

// Symbol is one document symbol as reported by the server.
type Symbol struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
	// Line is 1-based
	Line int `json:"line"`
	// Container is the enclosing symbol name, if any
	Container string `json:"container,omitempty"`
}

// FindReferences returns the usages of the symbol at the given zero-based
// position in path, excluding the declaration itself. The document is
// opened first if needed. A null or empty result yields an empty slice.
func (c *Conn) FindReferences(ctx context.Context, path string, line, column int) (refs []Reference, err error) {
	path = c.absPath(path)
	ctx, span := startOperationSpan(ctx, "FindReferences", c.root, path)
	defer func() {
		endOperationSpan(span, len(refs), err)
		if err == nil {
			recordResultCount(ctx, "FindReferences", len(refs))
		}
	}()

	if line < 0 || column < 0 {
		return nil, fmt.Errorf("invalid position %d:%d", line, column)
	}
	if err := c.EnsureOpened(ctx, path); err != nil {
		return nil, err
	}

	params := &protocol.ReferenceParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: documentURI(path)},
			Position:     protocol.Position{Line: uint32(line), Character: uint32(column)},
		},
		Context: protocol.ReferenceContext{IncludeDeclaration: false},
	}

	raw, err := c.SendRequest(ctx, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// wireLocation accepts both Location and LocationLink shapes.
type wireLocation struct {
	URI         string          `json:"uri"`
	Range       *protocol.Range `json:"range"`
	TargetURI   string          `json:"targetUri"`
	TargetRange *protocol.Range `json:"targetSelectionRange"`
}

func decodeLocations(raw json.RawMessage) ([]Reference, error) {
	refs := []Reference{}
	if isNull(raw) {
		return refs, nil
	}

	var locs []wireLocation
	if err := json.Unmarshal(raw, &locs); err != nil {
		// Some servers answer with a single location instead of an array
		var single wireLocation
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("failed to decode references: %w", err)
		}
		locs = []wireLocation{single}
	}

	for _, loc := range locs {
		u, rng := loc.URI, loc.Range
		if u == "" {
			u, rng = loc.TargetURI, loc.TargetRange
		}
		if u == "" || rng == nil {
			continue
		}
		refs = append(refs, Reference{
			FilePath: uriToPath(u),
			Line:     int(rng.Start.Line) + 1,
			Column:   int(rng.Start.Character) + 1,
		})
	}
	return refs, nil
}

// ListSymbols returns every symbol in path in document order. Hierarchical
// results are flattened depth-first, parents before children.
func (c *Conn) ListSymbols(ctx context.Context, path string) (syms []Symbol, err error) {
	path = c.absPath(path)
	ctx, span := startOperationSpan(ctx, "ListSymbols", c.root, path)
	defer func() {
		endOperationSpan(span, len(syms), err)
		if err == nil {
			recordResultCount(ctx, "ListSymbols", len(syms))
		}
	}()

	if err := c.EnsureOpened(ctx, path); err != nil {
		return nil, err
	}

	params := &protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: documentURI(path)},
	}
	raw, err := c.SendRequest(ctx, "textDocument/documentSymbol", params)
	if err != nil {
		return nil, err
	}
	return decodeSymbols(raw)
}

// wireSymbol covers both DocumentSymbol (range, children) and
// SymbolInformation (location, containerName).
type wireSymbol struct {
	Name          string          `json:"name"`
	Detail        string          `json:"detail"`
	Kind          int             `json:"kind"`
	Range         *protocol.Range `json:"range"`
	Location      *wireLocation   `json:"location"`
	ContainerName string          `json:"containerName"`
	Children      []wireSymbol    `json:"children"`
}

func decodeSymbols(raw json.RawMessage) ([]Symbol, error) {
	syms := []Symbol{}
	if isNull(raw) {
		return syms, nil
	}

	var wire []wireSymbol
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode document symbols: %w", err)
	}
	flattenSymbols(&syms, wire, "")
	return syms, nil
}

func flattenSymbols(dst *[]Symbol, wire []wireSymbol, container string) {
	for _, ws := range wire {
		sym := Symbol{
			Name:      ws.Name,
			Kind:      SymbolKindName(ws.Kind),
			Detail:    ws.Detail,
			Container: container,
		}
		switch {
		case ws.Range != nil:
			sym.Line = int(ws.Range.Start.Line) + 1
		case ws.Location != nil && ws.Location.Range != nil:
			sym.Line = int(ws.Location.Range.Start.Line) + 1
		}
		if ws.ContainerName != "" {
			sym.Container = ws.ContainerName
		}
		*dst = append(*dst, sym)
		if len(ws.Children) > 0 {
			flattenSymbols(dst, ws.Children, ws.Name)
		}
	}
}

var symbolKindNames = [...]string{
	1:  "File",
	2:  "Module",
	3:  "Namespace",
	4:  "Package",
	5:  "Class",
	6:  "Method",
	7:  "Property",
	8:  "Field",
	9:  "Constructor",
	10: "Enum",
	11: "Interface",
	12: "Function",
	13: "Variable",
	14: "Constant",
	15: "String",
	16: "Number",
	17: "Boolean",
	18: "Array",
	19: "Object",
	20: "Key",
	21: "Null",
	22: "EnumMember",
	23: "Struct",
	24: "Event",
	25: "Operator",
	26: "TypeParameter",
}

// SymbolKindName maps an LSP SymbolKind code to its label.
// Unknown codes map to "Unknown(n)".
func SymbolKindName(kind int) string {
	if kind > 0 && kind < len(symbolKindNames) {
		return symbolKindNames[kind]
	}
	return fmt.Sprintf("Unknown(%d)", kind)
}

// documentURI converts an absolute file path to a file:// URI.
func documentURI(path string) protocol.DocumentURI {
	return protocol.DocumentURI(uri.File(path))
}

// uriToPath converts a file:// URI back to a local path. Other schemes are
// returned unchanged.
func uriToPath(u string) string {
	if !strings.HasPrefix(u, "file://") {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return strings.TrimPrefix(u, "file://")
	}
	p := parsed.Path
	// file:///C:/x on Windows
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}
