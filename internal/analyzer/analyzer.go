package analyzer

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/gosight-mcp/pkg/types"
)

// GoAnalyzer extracts symbols, imports and type structure from Go source
// files. It is safe for concurrent use.
type GoAnalyzer struct{}

var _ types.Analyzer = (*GoAnalyzer)(nil)

// New creates a new GoAnalyzer
func New() *GoAnalyzer {
	return &GoAnalyzer{}
}

// Analyze parses a Go source file. Syntax errors are recorded on the result
// and whatever could be parsed is still returned; only unreadable or
// unsupported files produce an error.
func (a *GoAnalyzer) Analyze(path string) (*types.AnalysisResult, error) {
	if path == "" {
		return nil, types.ErrEmptyPath
	}
	if filepath.Ext(path) != ".go" {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFile, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return a.AnalyzeSource(path, content), nil
}

// AnalyzeSource parses already loaded source.
func (a *GoAnalyzer) AnalyzeSource(path string, content []byte) *types.AnalysisResult {
	result := &types.AnalysisResult{FilePath: path}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		line, col := 0, 0
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			line, col = list[0].Pos.Line, list[0].Pos.Column
		}
		result.AddError(path, line, col, fmt.Sprintf("syntax error: %v", err))
	}
	if file == nil {
		return result
	}

	if file.Name != nil {
		result.PackageName = file.Name.Name
	}

	e := &extractor{fset: fset}
	result.Imports = e.imports(file)
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.funcDecl(d)
		case *ast.GenDecl:
			e.genDecl(d)
		}
	}

	result.Symbols = e.symbols
	result.TypeConformances = e.conformances
	result.Extensions = e.extensions()
	result.PropertyWrappers = e.wrappers
	return result
}

// extractor accumulates records while walking the top-level declarations.
type extractor struct {
	fset *token.FileSet

	symbols      []types.SymbolData
	conformances []types.TypeConformanceData
	wrappers     []types.PropertyWrapperData

	methodSets map[string]*types.ExtensionData
}

func (e *extractor) line(pos token.Pos) int {
	return e.fset.Position(pos).Line
}

func (e *extractor) imports(file *ast.File) []types.ImportData {
	imports := make([]types.ImportData, 0, len(file.Imports))
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = strings.Trim(imp.Path.Value, "`\"")
		}
		data := types.ImportData{
			Module: path,
			Line:   e.line(imp.Pos()),
		}
		if imp.Name != nil {
			data.Alias = imp.Name.Name
			switch imp.Name.Name {
			case ".":
				data.Kind = "dot"
			case "_":
				data.Kind = "blank"
			default:
				data.Kind = "alias"
			}
		}
		imports = append(imports, data)
	}
	return imports
}

func (e *extractor) funcDecl(fn *ast.FuncDecl) {
	sym := types.SymbolData{
		Name:   fn.Name.Name,
		Kind:   types.KindFunction,
		Line:   e.line(fn.Name.Pos()),
		Detail: signature(fn),
	}

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sym.Kind = types.KindMethod
		sym.Receiver = receiverType(fn.Recv.List[0].Type)
		e.addMethod(sym.Receiver, fn.Name.Name, sym.Line)
	}

	e.symbols = append(e.symbols, sym)
}

func (e *extractor) addMethod(receiver, name string, line int) {
	if receiver == "" {
		return
	}
	if e.methodSets == nil {
		e.methodSets = make(map[string]*types.ExtensionData)
	}
	set, ok := e.methodSets[receiver]
	if !ok {
		set = &types.ExtensionData{ExtendedType: receiver, Protocols: []string{}, Line: line}
		e.methodSets[receiver] = set
	}
	set.MemberCount++
	set.Methods = append(set.Methods, name)
}

// extensions returns the method sets ordered by first declaration.
func (e *extractor) extensions() []types.ExtensionData {
	out := make([]types.ExtensionData, 0, len(e.methodSets))
	for _, set := range e.methodSets {
		out = append(out, *set)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].ExtendedType < out[j].ExtendedType
	})
	return out
}

func (e *extractor) genDecl(decl *ast.GenDecl) {
	for _, spec := range decl.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			e.typeSpec(s)
		case *ast.ValueSpec:
			e.valueSpec(s, decl.Tok)
		}
	}
}

func (e *extractor) typeSpec(spec *ast.TypeSpec) {
	name := spec.Name.Name
	line := e.line(spec.Name.Pos())

	sym := types.SymbolData{Name: name, Line: line}
	conf := types.TypeConformanceData{TypeName: name, Line: line, Protocols: []string{}}

	switch t := spec.Type.(type) {
	case *ast.StructType:
		sym.Kind = types.KindStruct
		sym.Detail = fmt.Sprintf("struct { ... } // %d fields", t.Fields.NumFields())
		conf.Protocols = embedded(t.Fields)
	case *ast.InterfaceType:
		sym.Kind = types.KindInterface
		sym.Detail = fmt.Sprintf("interface { ... } // %d methods", t.Methods.NumFields())
		conf.Protocols = embedded(t.Methods)
	default:
		sym.Kind = types.KindType
		sym.Detail = exprToString(spec.Type)
		if spec.Assign.IsValid() {
			sym.Detail = "= " + sym.Detail
		}
		conf.Superclass = exprToString(spec.Type)
	}
	conf.TypeKind = sym.Kind

	e.symbols = append(e.symbols, sym)
	e.conformances = append(e.conformances, conf)

	if st, ok := spec.Type.(*ast.StructType); ok {
		e.structFields(name, st)
	}
}

func (e *extractor) structFields(structName string, st *ast.StructType) {
	if st.Fields == nil {
		return
	}

	for _, field := range st.Fields.List {
		typeName := exprToString(field.Type)
		line := e.line(field.Pos())

		names := make([]string, 0, len(field.Names))
		for _, ident := range field.Names {
			names = append(names, ident.Name)
		}
		if len(names) == 0 {
			// Embedded field is named after its type
			names = append(names, embeddedName(field.Type))
		}

		for _, name := range names {
			e.symbols = append(e.symbols, types.SymbolData{
				Name:     name,
				Kind:     types.KindField,
				Line:     line,
				Detail:   typeName,
				Receiver: structName,
			})

			if field.Tag == nil {
				continue
			}
			raw, err := strconv.Unquote(field.Tag.Value)
			if err != nil {
				continue
			}
			for _, tag := range parseTag(raw) {
				e.wrappers = append(e.wrappers, types.PropertyWrapperData{
					PropertyName: name,
					WrapperType:  tag.key,
					TypeName:     typeName,
					Value:        tag.value,
					Line:         line,
				})
			}
		}
	}
}

func (e *extractor) valueSpec(spec *ast.ValueSpec, tok token.Token) {
	kind := types.KindVar
	if tok == token.CONST {
		kind = types.KindConst
	}

	for _, name := range spec.Names {
		if name.Name == "_" {
			continue
		}
		sym := types.SymbolData{
			Name: name.Name,
			Kind: kind,
			Line: e.line(name.Pos()),
		}
		if spec.Type != nil {
			sym.Detail = exprToString(spec.Type)
		}
		e.symbols = append(e.symbols, sym)
	}
}

// embedded lists the embedded (unnamed) entries of a struct or interface.
func embedded(fields *ast.FieldList) []string {
	out := []string{}
	if fields == nil {
		return out
	}
	for _, field := range fields.List {
		if len(field.Names) > 0 {
			continue
		}
		// Interface methods always have names; what remains are embeds
		// and type-set terms
		out = append(out, exprToString(field.Type))
	}
	return out
}

// embeddedName returns the implicit field name of an embedded type.
func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return exprToString(expr)
}

// receiverType returns the base type name of a method receiver, dropping
// pointers and type parameters.
func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.ParenExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func signature(fn *ast.FuncDecl) string {
	var sig strings.Builder

	sig.WriteString("func ")
	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		sig.WriteString("(")
		sig.WriteString(exprToString(fn.Recv.List[0].Type))
		sig.WriteString(") ")
	}
	sig.WriteString(fn.Name.Name)

	sig.WriteString("(")
	sig.WriteString(fieldListToString(fn.Type.Params))
	sig.WriteString(")")

	if results := fn.Type.Results; results != nil && len(results.List) > 0 {
		if results.NumFields() > 1 || len(results.List[0].Names) > 0 {
			sig.WriteString(" (")
			sig.WriteString(fieldListToString(results))
			sig.WriteString(")")
		} else {
			sig.WriteString(" ")
			sig.WriteString(fieldListToString(results))
		}
	}
	return sig.String()
}

func fieldListToString(fields *ast.FieldList) string {
	if fields == nil || len(fields.List) == 0 {
		return ""
	}

	var parts []string
	for _, field := range fields.List {
		typeStr := exprToString(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, typeStr)
			continue
		}
		for _, name := range field.Names {
			parts = append(parts, name.Name+" "+typeStr)
		}
	}
	return strings.Join(parts, ", ")
}

func exprToString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}

	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + exprToString(t.X)
	case *ast.ArrayType:
		if t.Len != nil {
			return "[" + exprToString(t.Len) + "]" + exprToString(t.Elt)
		}
		return "[]" + exprToString(t.Elt)
	case *ast.MapType:
		return fmt.Sprintf("map[%s]%s", exprToString(t.Key), exprToString(t.Value))
	case *ast.ChanType:
		switch t.Dir {
		case ast.SEND:
			return "chan<- " + exprToString(t.Value)
		case ast.RECV:
			return "<-chan " + exprToString(t.Value)
		}
		return "chan " + exprToString(t.Value)
	case *ast.FuncType:
		s := "func(" + fieldListToString(t.Params) + ")"
		if t.Results != nil && len(t.Results.List) > 0 {
			if t.Results.NumFields() > 1 || len(t.Results.List[0].Names) > 0 {
				s += " (" + fieldListToString(t.Results) + ")"
			} else {
				s += " " + fieldListToString(t.Results)
			}
		}
		return s
	case *ast.InterfaceType:
		if t.Methods == nil || len(t.Methods.List) == 0 {
			return "interface{}"
		}
		return "interface{ ... }"
	case *ast.StructType:
		return "struct{ ... }"
	case *ast.SelectorExpr:
		return exprToString(t.X) + "." + t.Sel.Name
	case *ast.Ellipsis:
		return "..." + exprToString(t.Elt)
	case *ast.IndexExpr:
		return exprToString(t.X) + "[" + exprToString(t.Index) + "]"
	case *ast.IndexListExpr:
		args := make([]string, 0, len(t.Indices))
		for _, idx := range t.Indices {
			args = append(args, exprToString(idx))
		}
		return exprToString(t.X) + "[" + strings.Join(args, ", ") + "]"
	case *ast.ParenExpr:
		return "(" + exprToString(t.X) + ")"
	case *ast.UnaryExpr:
		return t.Op.String() + exprToString(t.X)
	case *ast.BinaryExpr:
		return exprToString(t.X) + " " + t.Op.String() + " " + exprToString(t.Y)
	case *ast.BasicLit:
		return t.Value
	default:
		return "..."
	}
}
