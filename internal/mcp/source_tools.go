package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/gosight-mcp/internal/analyzer"
)

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 1000
	maxFilesListed     = 500
)

// handleFindTestCases handles the find_test_cases tool invocation
func (s *Server) handleFindTestCases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	var (
		p    *project
		path string
		err  error
	)
	if file, _ := args["file_path"].(string); file != "" {
		p, path, err = s.fileRequest(request)
	} else {
		p, err = s.currentProject()
	}
	if err != nil {
		return nil, err
	}

	found, err := p.ws.TestCases(ctx, path)
	if err != nil {
		return nil, analysisError(err)
	}

	total := 0
	counts := map[string]int{}
	files := make([]map[string]interface{}, 0, len(found))
	for _, f := range found {
		for _, tc := range f.Cases {
			counts[tc.Kind]++
		}
		total += len(f.Cases)
		files = append(files, map[string]interface{}{
			"file":  relativeTo(p.ws.Root(), f.File),
			"cases": f.Cases,
		})
	}

	response := map[string]interface{}{
		"count":  total,
		"counts": counts,
		"files":  files,
	}
	if len(files) == 0 {
		response["message"] = "No test functions found"
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindTypeUsages handles the find_type_usages tool invocation
func (s *Server) handleFindTypeUsages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	name, err := requireString(args, "type_name")
	if err != nil {
		return nil, err
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	found, err := p.ws.TypeUsages(ctx, name)
	if err != nil {
		return nil, analysisError(err)
	}

	total := 0
	files := make([]map[string]interface{}, 0, len(found))
	for _, f := range found {
		total += len(f.Usages)
		files = append(files, map[string]interface{}{
			"file":   relativeTo(p.ws.Root(), f.File),
			"usages": f.Usages,
		})
	}

	response := map[string]interface{}{
		"type_name": name,
		"count":     total,
		"files":     files,
	}
	if total == 0 {
		response["message"] = fmt.Sprintf("No usages found for type '%s'", name)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReadSymbol handles the read_symbol tool invocation
func (s *Server) handleReadSymbol(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.readDeclaration(request, "symbol_path", false)
}

// handleReadFunctionBody handles the read_function_body tool invocation
func (s *Server) handleReadFunctionBody(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.readDeclaration(request, "function_name", true)
}

func (s *Server) readDeclaration(request mcp.CallToolRequest, key string, bodyOnly bool) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}
	name, err := requireString(request.Params.Arguments.(map[string]interface{}), key)
	if err != nil {
		return nil, err
	}

	src, err := p.ws.ReadSymbol(path, name, bodyOnly)
	switch {
	case errors.Is(err, analyzer.ErrSymbolNotFound), errors.Is(err, analyzer.ErrNoBody):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
			"param": key,
			"value": name,
			"file":  path,
		})
	case err != nil:
		return nil, analysisError(err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":       path,
		"name":       src.Name,
		"kind":       src.Kind,
		"receiver":   src.Receiver,
		"start_line": src.StartLine,
		"end_line":   src.EndLine,
		"body_only":  bodyOnly,
		"source":     src.Source,
	})), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid regular expression", map[string]interface{}{
			"param":  "pattern",
			"reason": err.Error(),
		})
	}
	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	filePattern := getStringDefault(args, "file_pattern", "")

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	matches, truncated, err := p.ws.SearchCode(ctx, re, filePattern, limit)
	if errors.Is(err, filepath.ErrBadPattern) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid file pattern", map[string]interface{}{
			"param":  "file_pattern",
			"reason": err.Error(),
		})
	}
	if err != nil {
		return nil, analysisError(err)
	}
	for i := range matches {
		matches[i].File = relativeTo(p.ws.Root(), matches[i].File)
	}

	response := map[string]interface{}{
		"pattern":   pattern,
		"count":     len(matches),
		"matches":   nonNilSlice(matches),
		"truncated": truncated,
	}
	if filePattern != "" {
		response["file_pattern"] = filePattern
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindFiles handles the find_files tool invocation
func (s *Server) handleFindFiles(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, err
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	files, err := p.ws.FindFiles(pattern)
	if errors.Is(err, filepath.ErrBadPattern) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid pattern", map[string]interface{}{
			"param":  "pattern",
			"reason": err.Error(),
		})
	}
	if err != nil {
		return nil, analysisError(err)
	}

	response := map[string]interface{}{
		"pattern": pattern,
		"count":   len(files),
		"files":   nonNilSlice(files[:min(len(files), maxFilesListed)]),
	}
	if len(files) > maxFilesListed {
		response["files_omitted"] = len(files) - maxFilesListed
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// requireString reads a required, non-blank string argument
func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return v, nil
}
