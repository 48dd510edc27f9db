// Package types provides shared type definitions for the gosight MCP server.
//
// The records in this package are the payloads kept by the per-file analysis
// cache and returned by the MCP tools. They are produced by an Analyzer and
// serialized as part of the cache document, so their JSON field names are
// part of the on-disk format.
//
// # Records
//
// SymbolData is a declared symbol with a 1-based line:
//
//	sym := types.SymbolData{
//	    Name:   "ParseFile",
//	    Kind:   types.KindFunction,
//	    Line:   27,
//	    Detail: "func ParseFile(path string) (*AnalysisResult, error)",
//	}
//
// ImportData, TypeConformanceData, ExtensionData and PropertyWrapperData
// describe imports, type composition, method sets per receiver and struct
// field tags respectively.
//
// # Empty vs. missing
//
// A nil slice means "not computed"; an empty, non-nil slice means "computed,
// nothing found". The cache relies on this distinction, so producers should
// always return non-nil slices.
//
// # Analyzer
//
// Analyzer is the pluggable local analysis capability used when a cached
// result is missing or stale:
//
//	res, err := analyzer.Analyze("/repo/internal/server.go")
//	if err != nil {
//	    return err
//	}
//	for _, imp := range res.Imports {
//	    fmt.Println(imp.Module)
//	}
package types
