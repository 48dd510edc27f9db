package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gosight-mcp/internal/config"
	"github.com/dshills/gosight-mcp/internal/lsp"
	"github.com/dshills/gosight-mcp/internal/mcp"
	"github.com/dshills/gosight-mcp/internal/storage"
	"github.com/dshills/gosight-mcp/internal/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gosight",
		Short: "Go code intelligence for AI assistants over MCP",
		Long: "gosight serves symbol, import, type and reference queries about Go projects\n" +
			"over the Model Context Protocol on stdio. It uses gopls when available and\n" +
			"a local analyzer otherwise, caching results per file.",
		SilenceUsage: true,
		RunE:         runServe,
	}
	config.InitFlags(root)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gosight MCP Server\n")
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
		},
	})
	root.AddCommand(newCacheCmd())
	return root
}

// loadConfig reads the configuration and installs the default logger.
// Logs go to stderr; stdout carries the MCP protocol.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmd, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("gosight MCP server starting",
		slog.String("version", version),
		slog.String("build_mode", storage.BuildMode),
		slog.String("data_dir", cfg.DataDir),
	)

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    mcp.ServerName,
		ServiceVersion: version,
		Trace:          cfg.Trace,
		Metrics:        cfg.MetricsAddr != "",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if cfg.MetricsAddr != "" {
		addr, err := telemetry.ServeMetrics(ctx, cfg.MetricsAddr, providers.MetricsHandler(), logger)
		if err != nil {
			return err
		}
		logger.Info("serving metrics", slog.String("addr", addr.String()))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.NotesPath())
	if err != nil {
		return fmt.Errorf("failed to open notes database: %w", err)
	}

	var registry *lsp.Registry
	if cfg.LSP.Enabled {
		registry = lsp.NewRegistry(cfg.RegistryConfig())
	}

	mcp.ServerVersion = version
	server, err := mcp.NewServer(mcp.Config{
		Workspace: cfg.WorkspaceConfig(),
		Store:     store,
		Registry:  registry,
		Watch:     cfg.Cache.Watch,
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		if registry != nil {
			registry.Close()
		}
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	logger.Info("MCP server ready, listening on stdio")
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
