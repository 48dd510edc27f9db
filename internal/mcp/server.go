package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/gosight-mcp/internal/analyzer"
	"github.com/dshills/gosight-mcp/internal/lsp"
	"github.com/dshills/gosight-mcp/internal/storage"
	"github.com/dshills/gosight-mcp/internal/workspace"
	"github.com/dshills/gosight-mcp/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "gosight-mcp"
)

// ServerVersion is the current server version, set at build time
var ServerVersion = "0.1.0"

// Config holds the dependencies of a Server
type Config struct {
	// Workspace configures every project session the server opens
	Workspace workspace.Config

	// Store holds project notes. Required.
	Store storage.Store

	// Registry manages language server connections. Nil disables them and
	// every tool uses the local analyzer.
	Registry *lsp.Registry

	// Analyzer defaults to the Go analyzer
	Analyzer types.Analyzer

	// Watch follows each initialized project for removed files
	Watch bool

	Logger *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      Config
	store    storage.Store
	registry *lsp.Registry
	analyzer types.Analyzer
	logger   *slog.Logger

	// ctx outlives single tool calls; watchers run until Shutdown
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	projects map[string]*project
	current  *project
	closed   bool
}

// project is an initialized workspace and whether a language server was
// connected for it.
type project struct {
	ws      *workspace.Workspace
	wantLSP bool
}

// NewServer creates a new MCP server instance
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("notes store is required")
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = analyzer.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		cfg:      cfg,
		store:    cfg.Store,
		registry: cfg.Registry,
		analyzer: cfg.Analyzer,
		logger:   cfg.Logger.With(slog.String("component", "mcp")),
		ctx:      ctx,
		cancel:   cancel,
		projects: make(map[string]*project),
	}

	if err := s.registerTools(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is done or stdin closes,
// then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO is Serve over arbitrary streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if shutdownErr := s.Shutdown(); shutdownErr != nil {
		s.logger.Warn("shutdown incomplete", slog.String("error", shutdownErr.Error()))
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Shutdown saves every project cache, stops the language servers and
// closes the notes store. Calling it again is a no-op.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	projects := make([]*project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	s.projects = map[string]*project{}
	s.current = nil
	s.mu.Unlock()

	s.cancel()

	var errs []error
	for _, p := range projects {
		if err := p.ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.registry != nil {
		s.registry.Close()
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notes store: %w", err))
	}

	s.logger.Info("server stopped", slog.Int("projects", len(projects)))
	return errors.Join(errs...)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(initializeProjectTool(), s.handleInitializeProject)

	s.mcp.AddTool(listSymbolsTool(), s.handleListSymbols)
	s.mcp.AddTool(findSymbolDefinitionTool(), s.handleFindSymbolDefinition)
	s.mcp.AddTool(findSymbolReferencesTool(), s.handleFindSymbolReferences)

	s.mcp.AddTool(analyzeImportsTool(), s.handleAnalyzeImports)
	s.mcp.AddTool(listTypeConformancesTool(), s.handleListTypeConformances)
	s.mcp.AddTool(getTypeHierarchyTool(), s.handleGetTypeHierarchy)
	s.mcp.AddTool(listMethodsTool(), s.handleListMethods)
	s.mcp.AddTool(listStructTagsTool(), s.handleListStructTags)
	s.mcp.AddTool(findTypeUsagesTool(), s.handleFindTypeUsages)
	s.mcp.AddTool(findTestCasesTool(), s.handleFindTestCases)

	s.mcp.AddTool(readSymbolTool(), s.handleReadSymbol)
	s.mcp.AddTool(readFunctionBodyTool(), s.handleReadFunctionBody)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(findFilesTool(), s.handleFindFiles)

	s.mcp.AddTool(addNoteTool(), s.handleAddNote)
	s.mcp.AddTool(searchNotesTool(), s.handleSearchNotes)
	s.mcp.AddTool(getProjectStatsTool(), s.handleGetProjectStats)

	return nil
}

// openProject returns the session for root, opening it on first use, and
// makes it the current project.
func (s *Server) openProject(root string) (*project, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, errors.New("server is shut down")
	}
	if p, ok := s.projects[root]; ok {
		s.current = p
		return p, false, nil
	}

	ws, err := workspace.Open(root, s.cfg.Workspace, s.analyzer)
	if err != nil {
		return nil, false, err
	}
	p := &project{ws: ws}
	s.projects[root] = p
	s.current = p
	return p, true, nil
}

// currentProject returns the project selected by initialize_project
func (s *Server) currentProject() (*project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, newMCPError(ErrorCodeProjectNotInitialized, "project not initialized", map[string]interface{}{
			"hint": "call initialize_project with the project root first",
		})
	}
	return s.current, nil
}

// projectRoots lists every open project
func (s *Server) projectRoots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	roots := make([]string, 0, len(s.projects))
	for root := range s.projects {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// connect tries to attach a language server to p and records the outcome
func (s *Server) connect(ctx context.Context, p *project) bool {
	if s.registry == nil {
		return false
	}
	ok := s.registry.TryConnect(ctx, p.ws.Root())
	s.mu.Lock()
	p.wantLSP = ok
	s.mu.Unlock()
	return ok
}

// conn returns a live language server connection for p, replacing a dead
// one. It returns nil when the project runs without a server.
func (s *Server) conn(ctx context.Context, p *project) *lsp.Conn {
	if s.registry == nil {
		return nil
	}
	if c := s.registry.Get(p.ws.Root()); c != nil {
		return c
	}

	s.mu.Lock()
	want := p.wantLSP
	s.mu.Unlock()
	if !want {
		return nil
	}

	s.logger.Info("language server connection lost, reconnecting", slog.String("root", p.ws.Root()))
	if !s.connect(ctx, p) {
		return nil
	}
	return s.registry.Get(p.ws.Root())
}
