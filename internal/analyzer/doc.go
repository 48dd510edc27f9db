// Package analyzer extracts structural information from Go source files.
//
// It is the local fallback behind the file cache: when a file has no valid
// cache entry, the workspace runs the analyzer and stores every payload it
// produces. Parsing uses go/parser and needs no build information, so it
// works on any file in the project, including files with syntax errors.
//
// # Extracted data
//
//   - Symbols: functions, methods (with receiver), structs, interfaces,
//     other defined types and aliases, constants, variables and struct
//     fields
//   - Imports with their alias kind (alias, dot or blank)
//   - Type composition: embedded types of structs and interfaces, and the
//     underlying type of other defined types
//   - Method sets grouped by receiver type
//   - Struct tags, one record per key
//
// # Basic Usage
//
//	a := analyzer.New()
//	result, err := a.Analyze("/path/to/file.go")
//	if err != nil {
//	    return err
//	}
//	if result.HasErrors() {
//	    // result holds whatever could be parsed
//	}
package analyzer
