package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func filePathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "File path, absolute or relative to the project root",
	}
}

// fileTool builds a tool whose only argument is a file_path
func fileTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
			},
			Required: []string{"file_path"},
		},
	}
}

// initializeProjectTool returns the tool definition for initialize_project
func initializeProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "initialize_project",
		Description: "Open a Go project for analysis and make it the current project. Must be called before the other tools.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the project root (usually the directory holding go.mod)",
				},
				"warm": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, analyze every source file now instead of on first use",
					"default":     false,
				},
			},
			Required: []string{"project_path"},
		},
	}
}

// listSymbolsTool returns the tool definition for list_symbols
func listSymbolsTool() mcp.Tool {
	return fileTool("list_symbols",
		"List the symbols declared in a file (functions, methods, types, fields, constants, variables). Uses the language server when connected.")
}

// findSymbolDefinitionTool returns the tool definition for find_symbol_definition
func findSymbolDefinitionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_symbol_definition",
		Description: "Find where a symbol is declared anywhere in the project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol_name": map[string]interface{}{
					"type":        "string",
					"description": "Exact symbol name (function, type, method, field, etc.)",
				},
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Only return symbols of this kind",
					"enum":        []string{"function", "method", "struct", "interface", "type", "const", "var", "field"},
				},
				"cached_only": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, search only files already analyzed instead of scanning the project",
					"default":     false,
				},
			},
			Required: []string{"symbol_name"},
		},
	}
}

// findSymbolReferencesTool returns the tool definition for find_symbol_references
func findSymbolReferencesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_symbol_references",
		Description: "Find all references to the symbol at a position (requires a language server and a buildable module)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "Line number (1-indexed)",
					"minimum":     1,
				},
				"column": map[string]interface{}{
					"type":        "integer",
					"description": "Column number (1-indexed)",
					"minimum":     1,
				},
			},
			Required: []string{"file_path", "line", "column"},
		},
	}
}

// analyzeImportsTool returns the tool definition for analyze_imports
func analyzeImportsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_imports",
		Description: "Analyze import dependencies of one file, or of the whole project when file_path is omitted",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
			},
		},
	}
}

// listTypeConformancesTool returns the tool definition for list_type_conformances
func listTypeConformancesTool() mcp.Tool {
	return fileTool("list_type_conformances",
		"List the types declared in a file with their underlying type and embedded types or interfaces")
}

// getTypeHierarchyTool returns the tool definition for get_type_hierarchy
func getTypeHierarchyTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_type_hierarchy",
		Description: "Show what a type embeds, which types embed it and which types are defined from it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"type_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the type to analyze",
				},
			},
			Required: []string{"type_name"},
		},
	}
}

// listMethodsTool returns the tool definition for list_methods
func listMethodsTool() mcp.Tool {
	return fileTool("list_methods", "List the methods declared in a file, grouped by receiver type")
}

// listStructTagsTool returns the tool definition for list_struct_tags
func listStructTagsTool() mcp.Tool {
	return fileTool("list_struct_tags", "List struct field tags declared in a file, one entry per tag key")
}

// addNoteTool returns the tool definition for add_note
func addNoteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_note",
		Description: "Save a note about the current project that persists across sessions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Note content",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Optional tags for later search",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"content"},
		},
	}
}

// searchNotesTool returns the tool definition for search_notes
func searchNotesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_notes",
		Description: "Search the current project's notes by content or tag (case-insensitive). An empty query lists recent notes.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text to look for in note content and tags",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of notes to return (1-200)",
					"default":     defaultNotesLimit,
					"minimum":     1,
					"maximum":     maxNotesLimit,
				},
			},
		},
	}
}

// getProjectStatsTool returns the tool definition for get_project_stats
func getProjectStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_project_stats",
		Description: "Get cache, notes and language server statistics for the current project",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// findTestCasesTool returns the tool definition for find_test_cases
func findTestCasesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_test_cases",
		Description: "List the tests, benchmarks, fuzz targets and examples in the project's _test.go files, or in one file when file_path is given",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
			},
		},
	}
}

// findTypeUsagesTool returns the tool definition for find_type_usages
func findTypeUsagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_type_usages",
		Description: "Find where a type is used in signatures, fields, variables, literals, conversions and type assertions across the project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"type_name": map[string]interface{}{
					"type":        "string",
					"description": "Type name, without package qualifier",
				},
			},
			Required: []string{"type_name"},
		},
	}
}

// readSymbolTool returns the tool definition for read_symbol
func readSymbolTool() mcp.Tool {
	return mcp.Tool{
		Name:        "read_symbol",
		Description: "Read the source of one declaration (with its doc comment) without loading the whole file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
				"symbol_path": map[string]interface{}{
					"type":        "string",
					"description": "Declaration name, or Type.Method for a method",
				},
			},
			Required: []string{"file_path", "symbol_path"},
		},
	}
}

// readFunctionBodyTool returns the tool definition for read_function_body
func readFunctionBodyTool() mcp.Tool {
	return mcp.Tool{
		Name:        "read_function_body",
		Description: "Read only the body of a function or method",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": filePathProperty(),
				"function_name": map[string]interface{}{
					"type":        "string",
					"description": "Function name, or Type.Method for a method",
				},
			},
			Required: []string{"file_path", "function_name"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search source lines with a regular expression (RE2 syntax), like grep",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Regular expression to look for",
				},
				"file_pattern": map[string]interface{}{
					"type":        "string",
					"description": "Only search files whose name matches this glob (e.g. '*_test.go')",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matching lines to return",
					"default":     defaultSearchLimit,
					"minimum":     1,
					"maximum":     maxSearchLimit,
				},
			},
			Required: []string{"pattern"},
		},
	}
}

// findFilesTool returns the tool definition for find_files
func findFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_files",
		Description: "Find source files by name: a glob such as '*_handler.go' or 'internal/*/*.go', or a plain substring of the path",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob or substring to match against file paths",
				},
			},
			Required: []string{"pattern"},
		},
	}
}
