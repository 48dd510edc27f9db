package analyzer

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/gosight-mcp/pkg/types"
)

var (
	// ErrSymbolNotFound is returned when a file has no top-level
	// declaration matching the requested symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrNoBody is returned when a function body is requested for a
	// declaration that has none
	ErrNoBody = errors.New("declaration has no body")
)

// SymbolSource is the source text of one top-level declaration
type SymbolSource struct {
	Name      string           `json:"name"`
	Kind      types.SymbolKind `json:"kind"`
	Receiver  string           `json:"receiver,omitempty"`
	StartLine int              `json:"start_line"`
	EndLine   int              `json:"end_line"`
	Source    string           `json:"source"`
}

// ReadSymbol slices the declaration named by symbolPath out of content.
// symbolPath is a plain name or Receiver.Method (Receiver/Method is also
// accepted). A plain name prefers functions, types, constants and
// variables over methods. The declaration's doc comment is included; with
// bodyOnly only the braces of a function body are returned.
func ReadSymbol(path string, content []byte, symbolPath string, bodyOnly bool) (*SymbolSource, error) {
	receiver, name := splitSymbolPath(symbolPath)
	if name == "" {
		return nil, types.ErrEmptySymbolName
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.SkipObjectResolution)
	if file == nil || (err != nil && len(file.Decls) == 0) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	d, ok := findDecl(file, receiver, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbolPath, path)
	}

	start, end := d.start, d.node.End()
	if bodyOnly {
		fn, isFunc := d.node.(*ast.FuncDecl)
		if !isFunc || fn.Body == nil {
			return nil, fmt.Errorf("%w: %s is a %s", ErrNoBody, symbolPath, d.kind)
		}
		start, end = fn.Body.Lbrace, fn.Body.End()
	}

	from, to := fset.Position(start), fset.Position(end)
	if from.Offset < 0 || to.Offset > len(content) || from.Offset > to.Offset {
		return nil, fmt.Errorf("declaration of %s is out of range", symbolPath)
	}
	return &SymbolSource{
		Name:      name,
		Kind:      d.kind,
		Receiver:  d.receiver,
		StartLine: from.Line,
		EndLine:   to.Line,
		Source:    string(content[from.Offset:to.Offset]),
	}, nil
}

func splitSymbolPath(symbolPath string) (receiver, name string) {
	symbolPath = strings.TrimSpace(symbolPath)
	if i := strings.LastIndexAny(symbolPath, "./"); i >= 0 {
		receiver = strings.TrimPrefix(strings.TrimSpace(symbolPath[:i]), "*")
		return receiver, strings.TrimSpace(symbolPath[i+1:])
	}
	return "", symbolPath
}

// decl is one top-level declaration candidate for ReadSymbol
type decl struct {
	node     ast.Node
	start    token.Pos
	kind     types.SymbolKind
	receiver string
}

func findDecl(file *ast.File, receiver, name string) (decl, bool) {
	var method *decl
	for _, d := range file.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			if d.Name.Name != name {
				continue
			}
			start := d.Pos()
			if d.Doc != nil {
				start = d.Doc.Pos()
			}
			if d.Recv == nil || len(d.Recv.List) == 0 {
				if receiver == "" {
					return decl{node: d, start: start, kind: types.KindFunction}, true
				}
				continue
			}
			recv := receiverType(d.Recv.List[0].Type)
			if receiver != "" && recv != receiver {
				continue
			}
			if receiver != "" {
				return decl{node: d, start: start, kind: types.KindMethod, receiver: recv}, true
			}
			if method == nil {
				method = &decl{node: d, start: start, kind: types.KindMethod, receiver: recv}
			}
		case *ast.GenDecl:
			if receiver != "" {
				continue
			}
			if found, ok := findSpec(d, name); ok {
				return found, true
			}
		}
	}
	if method != nil {
		return *method, true
	}
	return decl{}, false
}

// findSpec matches name against the specs of a type, const or var
// declaration. Grouped declarations yield just the matching spec.
func findSpec(gd *ast.GenDecl, name string) (decl, bool) {
	grouped := gd.Lparen.IsValid()
	for _, spec := range gd.Specs {
		var (
			kind types.SymbolKind
			doc  *ast.CommentGroup
			hit  bool
		)
		switch s := spec.(type) {
		case *ast.TypeSpec:
			hit, doc = s.Name.Name == name, s.Doc
			switch s.Type.(type) {
			case *ast.StructType:
				kind = types.KindStruct
			case *ast.InterfaceType:
				kind = types.KindInterface
			default:
				kind = types.KindType
			}
		case *ast.ValueSpec:
			for _, ident := range s.Names {
				hit = hit || ident.Name == name
			}
			doc, kind = s.Doc, types.KindVar
			if gd.Tok == token.CONST {
				kind = types.KindConst
			}
		}
		if !hit {
			continue
		}
		if !grouped {
			start := gd.Pos()
			if gd.Doc != nil {
				start = gd.Doc.Pos()
			}
			return decl{node: gd, start: start, kind: kind}, true
		}
		start := spec.Pos()
		if doc != nil {
			start = doc.Pos()
		}
		return decl{node: spec, start: start, kind: kind}, true
	}
	return decl{}, false
}

// TypeUsage is one place a type name appears in a type position
type TypeUsage struct {
	// Kind is receiver, parameter, result, field, embedded, variable,
	// underlying, literal, conversion, allocation or assertion
	Kind    string `json:"kind"`
	Line    int    `json:"line"`
	Context string `json:"context"`
}

// TypeUsages lists where typeName is used as a type in content: in
// signatures, fields, variable declarations, literals, conversions and
// type assertions. Qualified names (pkg.Type) match on the type part. The
// type's own declaration is not a usage.
func TypeUsages(path string, content []byte, typeName string) ([]TypeUsage, error) {
	if typeName == "" {
		return nil, types.ErrEmptySymbolName
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if file == nil || (err != nil && len(file.Decls) == 0) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	lines := strings.Split(string(content), "\n")
	seen := make(map[TypeUsage]struct{})
	var out []TypeUsage
	add := func(kind string, at ast.Node, expr ast.Expr) {
		if expr == nil || !mentions(expr, typeName) {
			return
		}
		line := fset.Position(at.Pos()).Line
		u := TypeUsage{Kind: kind, Line: line}
		if line >= 1 && line <= len(lines) {
			u.Context = strings.TrimSpace(lines[line-1])
		}
		if _, dup := seen[u]; dup {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	fields := func(kind string, list *ast.FieldList) {
		if list == nil {
			return
		}
		for _, f := range list.List {
			add(kind, f, f.Type)
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			fields("receiver", n.Recv)
		case *ast.FuncType:
			fields("parameter", n.Params)
			fields("result", n.Results)
		case *ast.StructType:
			for _, f := range n.Fields.List {
				if len(f.Names) == 0 {
					add("embedded", f, f.Type)
				} else {
					add("field", f, f.Type)
				}
			}
		case *ast.InterfaceType:
			for _, f := range n.Methods.List {
				if len(f.Names) == 0 {
					add("embedded", f, f.Type)
				}
			}
		case *ast.TypeSpec:
			add("underlying", n, n.Type)
		case *ast.ValueSpec:
			add("variable", n, n.Type)
		case *ast.CompositeLit:
			add("literal", n, n.Type)
		case *ast.TypeAssertExpr:
			add("assertion", n, n.Type)
		case *ast.TypeSwitchStmt:
			for _, stmt := range n.Body.List {
				if cc, ok := stmt.(*ast.CaseClause); ok {
					for _, e := range cc.List {
						add("assertion", e, e)
					}
				}
			}
		case *ast.CallExpr:
			if id, ok := n.Fun.(*ast.Ident); ok && (id.Name == "new" || id.Name == "make") && len(n.Args) > 0 {
				add("allocation", n, n.Args[0])
			} else if isTypeName(n.Fun, typeName) {
				add("conversion", n, n.Fun)
			}
		}
		return true
	})

	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out, nil
}

// mentions reports whether expr refers to name. Function, struct and
// interface types are not entered; TypeUsages visits them on their own.
func mentions(expr ast.Expr, name string) bool {
	found := false
	ast.Inspect(expr, func(n ast.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *ast.FuncType, *ast.StructType, *ast.InterfaceType:
			return false
		case *ast.SelectorExpr:
			found = n.Sel.Name == name
			return false
		case *ast.Ident:
			found = n.Name == name
		}
		return true
	})
	return found
}

// isTypeName matches T, pkg.T, (T) and (*T) used as a call target
func isTypeName(expr ast.Expr, name string) bool {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name == name
	case *ast.SelectorExpr:
		return e.Sel.Name == name
	case *ast.ParenExpr:
		return isTypeName(e.X, name)
	case *ast.StarExpr:
		return isTypeName(e.X, name)
	}
	return false
}

// Test function kinds reported by ClassifyTest
const (
	TestKindTest      = "test"
	TestKindBenchmark = "benchmark"
	TestKindFuzz      = "fuzz"
	TestKindExample   = "example"
)

// TestCase is a function go test would run
type TestCase struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// ClassifyTest reports whether sym, a symbol from a _test.go file, is a
// test, benchmark, fuzz target or example. It follows go test's rules: the
// prefix must be followed by the end of the name or a non-lowercase rune,
// and the signature must take the matching *testing type (examples take
// nothing).
func ClassifyTest(sym types.SymbolData) (TestCase, bool) {
	if sym.Kind != types.KindFunction {
		return TestCase{}, false
	}
	for _, p := range []struct {
		prefix, kind, param string
	}{
		{"Test", TestKindTest, "*testing.T)"},
		{"Benchmark", TestKindBenchmark, "*testing.B)"},
		{"Fuzz", TestKindFuzz, "*testing.F)"},
		{"Example", TestKindExample, ""},
	} {
		if !hasTestPrefix(sym.Name, p.prefix) {
			continue
		}
		ok := strings.HasSuffix(sym.Detail, p.param)
		if p.param == "" {
			ok = sym.Detail == "func "+sym.Name+"()"
		}
		if !ok {
			return TestCase{}, false
		}
		return TestCase{Name: sym.Name, Kind: p.kind, Line: sym.Line}, true
	}
	return TestCase{}, false
}

func hasTestPrefix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	if len(name) == len(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len(prefix):])
	return !unicode.IsLower(r)
}
