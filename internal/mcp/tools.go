package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gosight-mcp/internal/lsp"
	"github.com/dshills/gosight-mcp/internal/storage"
	"github.com/dshills/gosight-mcp/internal/workspace"
	"github.com/dshills/gosight-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams         = -32602 // Invalid method parameters
	ErrorCodeInternalError         = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound       = -32001 // Specified path is not a usable project root
	ErrorCodeProjectNotInitialized = -32002 // No project selected with initialize_project
	ErrorCodeFileNotFound          = -32003 // File does not exist in the project
	ErrorCodeLanguageServerRequest = -32004 // Language server answered with an error
	ErrorCodeWarmupInProgress      = -32005 // Another warm-up is already running
)

const (
	defaultNotesLimit      = 20
	maxNotesLimit          = 200
	maxImportFilesListed   = 20
	maxImportModulesListed = 10
	maxWarmErrorsReported  = 5
)

// handleInitializeProject handles the initialize_project tool invocation
func (s *Server) handleInitializeProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	root, ok := args["project_path"].(string)
	if !ok || root == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "project_path parameter is required", map[string]interface{}{
			"param":  "project_path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(root); err != nil {
		return nil, newMCPError(ErrorCodeProjectNotFound, "invalid project path", map[string]interface{}{
			"param":  "project_path",
			"reason": err.Error(),
		})
	}
	root = filepath.Clean(root)

	p, opened, err := s.openProject(root)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open project", map[string]interface{}{
			"error": err.Error(),
		})
	}

	removed, evicted, err := p.ws.Reconcile()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list project files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"project":        root,
		"newly_opened":   opened,
		"cached_files":   p.ws.Cache().Len(),
		"cache_removed":  removed,
		"cache_evicted":  evicted,
		"lsp_available":  false,
		"watching_files": false,
	}
	if info, err := p.ws.Module(); err == nil {
		response["module"] = info
	}

	if getBoolDefault(args, "warm", false) {
		stats, err := p.ws.Warm(ctx)
		switch {
		case errors.Is(err, workspace.ErrWarmInProgress):
			return nil, newMCPError(ErrorCodeWarmupInProgress, "a warm-up is already running for this project", nil)
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "warm-up failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["warm_up"] = warmSummary(stats)
		response["cached_files"] = p.ws.Cache().Len()
	}

	if s.cfg.Watch {
		if err := p.ws.Watch(s.ctx); err != nil {
			s.logger.Warn("failed to watch project", slog.String("root", root), slog.String("error", err.Error()))
		}
		response["watching_files"] = p.ws.Watching()
	}

	if s.connect(ctx, p) {
		response["lsp_available"] = true
		response["message"] = "Project initialized. Language server connected; reference search is available."
	} else {
		response["message"] = "Project initialized. Language server not available; using local analysis (find_symbol_references is disabled)."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func warmSummary(stats *workspace.WarmStats) map[string]interface{} {
	summary := map[string]interface{}{
		"files":       stats.Files,
		"analyzed":    stats.Analyzed,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxWarmErrorsReported {
			summary["errors"] = stats.ErrorMessages[:maxWarmErrorsReported]
			summary["error_count"] = n
		} else {
			summary["errors"] = stats.ErrorMessages
		}
	}
	return summary
}

// handleListSymbols handles the list_symbols tool invocation. A connected
// language server is preferred; the local analyzer answers when there is
// none or the request fails.
func (s *Server) handleListSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}

	if conn := s.conn(ctx, p); conn != nil {
		syms, err := conn.ListSymbols(ctx, path)
		switch {
		case err != nil:
			s.logger.Warn("language server symbols failed, using local analysis",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		case len(syms) > 0:
			return mcp.NewToolResultText(formatJSON(map[string]interface{}{
				"file":    path,
				"source":  "lsp",
				"count":   len(syms),
				"symbols": syms,
			})), nil
		}
	}

	syms, err := p.ws.Symbols(ctx, path)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":    path,
		"source":  "analyzer",
		"count":   len(syms),
		"symbols": syms,
	})), nil
}

// definition is one match of find_symbol_definition
type definition struct {
	File     string           `json:"file"`
	Name     string           `json:"name"`
	Kind     types.SymbolKind `json:"kind"`
	Line     int              `json:"line"`
	Detail   string           `json:"detail,omitempty"`
	Receiver string           `json:"receiver,omitempty"`
}

// handleFindSymbolDefinition handles the find_symbol_definition tool invocation
func (s *Server) handleFindSymbolDefinition(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	name, ok := args["symbol_name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "symbol_name parameter is required", map[string]interface{}{
			"param":  "symbol_name",
			"reason": "missing or empty",
		})
	}
	kind := types.SymbolKind(getStringDefault(args, "kind", ""))
	if kind != "" && !kind.Valid() {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid kind", map[string]interface{}{
			"param": "kind",
			"value": kind,
		})
	}
	cachedOnly := getBoolDefault(args, "cached_only", false)

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	match := func(file string, sym types.SymbolData) (definition, bool) {
		if sym.Name != name || (kind != "" && sym.Kind != kind) {
			return definition{}, false
		}
		return definition{
			File:     file,
			Name:     sym.Name,
			Kind:     sym.Kind,
			Line:     sym.Line,
			Detail:   sym.Detail,
			Receiver: sym.Receiver,
		}, true
	}

	var (
		defs   []definition
		failed int
	)
	if cachedOnly {
		for _, file := range p.ws.Cache().FindFilesWithSymbol(name) {
			syms, err := p.ws.Symbols(ctx, file)
			if err != nil {
				continue
			}
			for _, sym := range syms {
				if d, ok := match(file, sym); ok {
					defs = append(defs, d)
				}
			}
		}
	} else {
		byFile, n, err := collect(ctx, s, p, p.ws.Symbols)
		if err != nil {
			return nil, analysisError(err)
		}
		failed = n
		for _, file := range sortedKeys(byFile) {
			for _, sym := range byFile[file] {
				if d, ok := match(file, sym); ok {
					defs = append(defs, d)
				}
			}
		}
	}

	response := map[string]interface{}{
		"symbol":      name,
		"count":       len(defs),
		"definitions": nonNilSlice(defs),
		"cached_only": cachedOnly,
	}
	if failed > 0 {
		response["files_failed"] = failed
	}
	if len(defs) == 0 {
		response["message"] = fmt.Sprintf("Symbol '%s' not found in project", name)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindSymbolReferences handles the find_symbol_references tool
// invocation. It needs a language server; without one it explains what is
// available instead.
func (s *Server) handleFindSymbolReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}
	args := request.Params.Arguments.(map[string]interface{})

	line, err := requirePosition(args, "line")
	if err != nil {
		return nil, err
	}
	column, err := requirePosition(args, "column")
	if err != nil {
		return nil, err
	}

	conn := s.conn(ctx, p)
	if conn == nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"lsp_available": false,
			"message":       "Language server not available for this project. Reference search needs a buildable module and a language server on PATH.",
			"alternatives": []string{
				"find_symbol_definition: locate declarations by name",
				"get_type_hierarchy: find types that embed or derive from a type",
			},
		})), nil
	}

	refs, err := conn.FindReferences(ctx, path, line-1, column-1)
	if err != nil {
		s.logger.Error("language server references failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		data := map[string]interface{}{"error": err.Error()}
		if se, ok := lsp.AsServerError(err); ok {
			data["server_code"] = se.Code
		}
		return nil, newMCPError(ErrorCodeLanguageServerRequest, "LSP request failed: "+err.Error(), data)
	}

	response := map[string]interface{}{
		"file":       path,
		"line":       line,
		"column":     column,
		"count":      len(refs),
		"references": refs,
	}
	if len(refs) == 0 {
		response["message"] = fmt.Sprintf("No references found for symbol at %s:%d:%d", path, line, column)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// moduleUsage counts the files importing one module
type moduleUsage struct {
	Module string `json:"module"`
	Files  int    `json:"files"`
}

// handleAnalyzeImports handles the analyze_imports tool invocation. With a
// file_path it lists that file's imports, otherwise it summarizes the
// project.
func (s *Server) handleAnalyzeImports(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	if file, _ := args["file_path"].(string); file != "" {
		p, path, err := s.fileRequest(request)
		if err != nil {
			return nil, err
		}
		imports, err := p.ws.Imports(ctx, path)
		if err != nil {
			return nil, analysisError(err)
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"file":    path,
			"count":   len(imports),
			"imports": imports,
		})), nil
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}
	byFile, failed, err := collect(ctx, s, p, p.ws.Imports)
	if err != nil {
		return nil, analysisError(err)
	}

	counts := make(map[string]int)
	files := make(map[string]interface{})
	withImports := 0
	for _, file := range sortedKeys(byFile) {
		imports := byFile[file]
		if len(imports) == 0 {
			continue
		}
		withImports++
		seen := make(map[string]struct{}, len(imports))
		for _, imp := range imports {
			if _, ok := seen[imp.Module]; ok {
				continue
			}
			seen[imp.Module] = struct{}{}
			counts[imp.Module]++
		}
		if len(files) < maxImportFilesListed {
			files[relativeTo(p.ws.Root(), file)] = imports
		}
	}

	usage := make([]moduleUsage, 0, len(counts))
	for module, n := range counts {
		usage = append(usage, moduleUsage{Module: module, Files: n})
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Files != usage[j].Files {
			return usage[i].Files > usage[j].Files
		}
		return usage[i].Module < usage[j].Module
	})

	response := map[string]interface{}{
		"files_scanned":      len(byFile),
		"files_with_imports": withImports,
		"distinct_modules":   len(usage),
		"most_used":          usage[:min(len(usage), maxImportModulesListed)],
		"files":              files,
	}
	if withImports > maxImportFilesListed {
		response["files_omitted"] = withImports - maxImportFilesListed
	}
	if failed > 0 {
		response["files_failed"] = failed
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListTypeConformances handles the list_type_conformances tool invocation
func (s *Server) handleListTypeConformances(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}
	tcs, err := p.ws.TypeConformances(ctx, path)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":  path,
		"count": len(tcs),
		"types": tcs,
	})), nil
}

// typeRef names a type and where it is declared
type typeRef struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// handleGetTypeHierarchy handles the get_type_hierarchy tool invocation
func (s *Server) handleGetTypeHierarchy(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	name, ok := args["type_name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "type_name parameter is required", map[string]interface{}{
			"param":  "type_name",
			"reason": "missing or empty",
		})
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}
	// Bring every file's entry up to date so the cache index is complete
	if _, _, err := collect(ctx, s, p, p.ws.TypeConformances); err != nil {
		return nil, analysisError(err)
	}

	all := p.ws.Cache().AllTypeConformances()
	var (
		found      *types.TypeConformanceData
		foundFile  string
		embeddedBy []typeRef
		derived    []typeRef
	)
	for _, file := range sortedKeys(all) {
		for i := range all[file] {
			tc := all[file][i]
			if tc.TypeName == name && found == nil {
				found, foundFile = &tc, file
			}
			if tc.Superclass == name {
				derived = append(derived, typeRef{Name: tc.TypeName, File: file, Line: tc.Line})
			}
			for _, embedded := range tc.Protocols {
				if embedded == name || strings.TrimPrefix(embedded, "*") == name {
					embeddedBy = append(embeddedBy, typeRef{Name: tc.TypeName, File: file, Line: tc.Line})
					break
				}
			}
		}
	}

	if found == nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"type_name": name,
			"found":     false,
			"message":   fmt.Sprintf("Type '%s' not found in project", name),
		})), nil
	}

	response := map[string]interface{}{
		"type_name":     name,
		"found":         true,
		"kind":          found.TypeKind,
		"file":          foundFile,
		"line":          found.Line,
		"embeds":        nonNilSlice(found.Protocols),
		"embedded_by":   nonNilSlice(embeddedBy),
		"derived_types": nonNilSlice(derived),
		"related_files": nonNilSlice(p.ws.Cache().FindFilesContainingType(name)),
	}
	if found.Superclass != "" {
		response["underlying"] = found.Superclass
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListMethods handles the list_methods tool invocation
func (s *Server) handleListMethods(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}
	sets, err := p.ws.Extensions(ctx, path)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":        path,
		"count":       len(sets),
		"method_sets": sets,
	})), nil
}

// handleListStructTags handles the list_struct_tags tool invocation
func (s *Server) handleListStructTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, path, err := s.fileRequest(request)
	if err != nil {
		return nil, err
	}
	tags, err := p.ws.PropertyWrappers(ctx, path)
	if err != nil {
		return nil, analysisError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file":  path,
		"count": len(tags),
		"tags":  tags,
	})), nil
}

// handleAddNote handles the add_note tool invocation
func (s *Server) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required", map[string]interface{}{
			"param":  "content",
			"reason": "missing or empty",
		})
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	note := &storage.Note{
		ProjectRoot: p.ws.Root(),
		Content:     content,
		Tags:        getStringList(args, "tags"),
	}
	if err := s.store.AddNote(ctx, note); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to save note", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"saved": true,
		"note":  note,
	})), nil
}

// handleSearchNotes handles the search_notes tool invocation. An empty
// query lists the most recent notes.
func (s *Server) handleSearchNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}
	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	limit := getIntDefault(args, "limit", defaultNotesLimit)
	if limit < 1 || limit > maxNotesLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxNotesLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	notes, err := s.store.SearchNotes(ctx, p.ws.Root(), query, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to search notes", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query": query,
		"count": len(notes),
		"notes": nonNilSlice(notes),
	}
	if len(notes) == 0 {
		response["message"] = "No matching notes"
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetProjectStats handles the get_project_stats tool invocation
func (s *Server) handleGetProjectStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := s.currentProject()
	if err != nil {
		return nil, err
	}

	notes, err := s.store.CountNotes(ctx, p.ws.Root())
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count notes", map[string]interface{}{
			"error": err.Error(),
		})
	}

	stats := p.ws.Cache().Stats()
	cacheInfo := map[string]interface{}{
		"total_files":            stats.TotalFiles,
		"files_with_symbols":     stats.FilesWithSymbols,
		"files_with_imports":     stats.FilesWithImports,
		"files_with_types":       stats.FilesWithTypes,
		"files_with_method_sets": stats.FilesWithExtensions,
		"files_with_struct_tags": stats.FilesWithWrappers,
		"request_count":          stats.RequestCount,
		"max_entries":            p.ws.Cache().MaxEntries(),
		"directory":              p.ws.Cache().Dir(),
	}
	if !stats.LastCleanup.IsZero() {
		cacheInfo["last_cleanup"] = stats.LastCleanup.Format(time.RFC3339)
	}

	lspInfo := map[string]interface{}{
		"enabled":   s.registry != nil,
		"available": s.registry != nil && s.registry.IsAvailable(p.ws.Root()),
	}
	if s.registry != nil {
		lspInfo["connected_projects"] = s.registry.Projects()
	}

	response := map[string]interface{}{
		"project":       p.ws.Root(),
		"open_projects": s.projectRoots(),
		"cache":         cacheInfo,
		"notes":         notes,
		"lsp":           lspInfo,
		"watching":      p.ws.Watching(),
	}
	if info, err := p.ws.Module(); err == nil {
		response["module"] = info
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// fileRequest resolves the file_path argument against the current project
// and checks that it names a regular file.
func (s *Server) fileRequest(request mcp.CallToolRequest) (*project, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	raw, ok := args["file_path"].(string)
	if !ok || raw == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "file_path parameter is required", map[string]interface{}{
			"param":  "file_path",
			"reason": "missing or empty",
		})
	}

	p, err := s.currentProject()
	if err != nil {
		return nil, "", err
	}

	path := p.ws.Resolve(raw)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		reason := "not a regular file"
		if err != nil {
			reason = err.Error()
		}
		return nil, "", newMCPError(ErrorCodeFileNotFound, "file not found", map[string]interface{}{
			"param":  "file_path",
			"path":   path,
			"reason": reason,
		})
	}
	return p, path, nil
}

// collect runs fetch for every source file of p with bounded parallelism.
// Files that fail to analyze are left out of the result and counted.
func collect[T any](
	ctx context.Context,
	s *Server,
	p *project,
	fetch func(context.Context, string) ([]T, error),
) (map[string][]T, int, error) {
	files, err := p.ws.SourceFiles()
	if err != nil {
		return nil, 0, err
	}

	workers := s.cfg.Workspace.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu     sync.Mutex
		out    = make(map[string][]T, len(files))
		failed atomic.Int32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		g.Go(func() error {
			v, err := fetch(gctx, file)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				s.logger.Debug("analysis failed", slog.String("path", file), slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			out[file] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, int(failed.Load()), nil
}

// analysisError maps a workspace error onto an MCP error
func analysisError(err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return newMCPError(ErrorCodeFileNotFound, "file not found", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, types.ErrUnsupportedFile):
		return newMCPError(ErrorCodeInvalidParams, "file type is not supported", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return newMCPError(ErrorCodeInternalError, "analysis failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// requirePosition reads a required 1-based line or column
func requirePosition(args map[string]interface{}, key string) (int, error) {
	if _, ok := args[key]; !ok {
		return 0, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing",
		})
	}
	v := getIntDefault(args, key, 0)
	if v < 1 {
		return 0, newMCPError(ErrorCodeInvalidParams, key+" must be >= 1", map[string]interface{}{
			"param": key,
			"value": args[key],
		})
	}
	return v, nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	// Check if it's a directory
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// relativeTo shortens path to be relative to root when possible
func relativeTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// nonNilSlice keeps empty results encoded as [] rather than null
func nonNilSlice[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringList extracts a list parameter given either as an array of
// strings or as one comma-separated string
func getStringList(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	return nil
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
