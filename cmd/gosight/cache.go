package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/gosight-mcp/internal/analyzer"
	"github.com/dshills/gosight-mcp/internal/workspace"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or maintain a project's file cache",
	}
	cmd.PersistentFlags().StringP("project", "p", "", "Project root (default: current directory)")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkspace(cmd, func(ws *workspace.Workspace) error {
				stats := ws.Cache().Stats()
				return printJSON(cmd, map[string]interface{}{
					"project":     ws.Root(),
					"directory":   ws.Cache().Dir(),
					"max_entries": ws.Cache().MaxEntries(),
					"stats":       stats,
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "gc",
		Short: "Drop entries for deleted files and trim the cache to its limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkspace(cmd, func(ws *workspace.Workspace) error {
				removed, evicted, err := ws.Reconcile()
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{
					"project":   ws.Root(),
					"removed":   removed,
					"evicted":   evicted,
					"remaining": ws.Cache().Len(),
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "warm",
		Short: "Analyze every source file and store the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkspace(cmd, func(ws *workspace.Workspace) error {
				stats, err := ws.Warm(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{
					"project":     ws.Root(),
					"files":       stats.Files,
					"analyzed":    stats.Analyzed,
					"skipped":     stats.Skipped,
					"failed":      stats.Failed,
					"duration_ms": stats.Duration.Milliseconds(),
					"errors":      stats.ErrorMessages,
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry for the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withWorkspace(cmd, func(ws *workspace.Workspace) error {
				n := ws.Cache().Len()
				ws.Cache().Clear()
				return printJSON(cmd, map[string]interface{}{
					"project": ws.Root(),
					"cleared": n,
				})
			})
		},
	})

	return cmd
}

// withWorkspace opens the selected project's workspace, runs fn and saves
// the cache on the way out.
func withWorkspace(cmd *cobra.Command, fn func(ws *workspace.Workspace) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	root, _ := cmd.Flags().GetString("project")
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return err
		}
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}

	ws, err := workspace.Open(root, cfg.WorkspaceConfig(), analyzer.New())
	if err != nil {
		return err
	}
	runErr := fn(ws)
	if err := ws.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to save cache: %w", err)
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

