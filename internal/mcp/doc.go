// Package mcp implements the Model Context Protocol (MCP) server for gosight.
//
// The server exposes project analysis tools to AI coding assistants over
// stdio. A client first selects a project with initialize_project; every
// other tool works on the current project.
//
//   - initialize_project: open a project, reconcile its cache, connect a
//     language server when possible
//   - list_symbols: symbols of one file (language server, or local analysis)
//   - find_symbol_definition: declarations of a name across the project
//   - find_symbol_references: usages of the symbol at a position (language
//     server only)
//   - analyze_imports: imports of a file, or module usage across the project
//   - list_type_conformances, list_methods, list_struct_tags: per-file views
//     of the local analysis
//   - get_type_hierarchy: what a type embeds and what embeds it
//   - find_type_usages: where a type appears in signatures, fields and
//     expressions
//   - find_test_cases: tests, benchmarks, fuzz targets and examples
//   - read_symbol, read_function_body: the source of one declaration
//   - search_code: regular expression search over source lines
//   - find_files: source files by glob or path substring
//   - add_note, search_notes: notes that persist across sessions
//   - get_project_stats: cache, notes and language server status
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Tool results are JSON documents in a single text content block. Invalid
// arguments and failures are returned as MCPError values carrying a
// JSON-RPC error code.
//
// # Reduced functionality
//
// When no language server can be started for a project (no go.mod, no
// gopls on PATH, broken build), the tools keep working on the local
// analyzer. find_symbol_references then answers with an explanation and
// alternatives instead of failing:
//
//	Request:
//	{
//	  "name": "find_symbol_references",
//	  "arguments": {"file_path": "internal/auth/auth.go", "line": 42, "column": 6}
//	}
//
//	Response:
//	{
//	  "lsp_available": false,
//	  "message": "Language server not available for this project. ...",
//	  "alternatives": ["find_symbol_definition: ...", "get_type_hierarchy: ..."]
//	}
//
// Line and column arguments are 1-based, as shown in editors.
//
// # Error Codes
//
//   - -32602: Invalid parameters
//   - -32603: Internal error
//   - -32001: Project path is not usable
//   - -32002: No project initialized
//   - -32003: File not found
//   - -32004: Language server request failed (message carries the server's text)
//   - -32005: Warm-up already running
package mcp
