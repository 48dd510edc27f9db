package workspace

import (
	"context"
	"log/slog"

	"github.com/dshills/gosight-mcp/pkg/types"
)

// Symbols returns the symbols declared in path
func (w *Workspace) Symbols(ctx context.Context, path string) ([]types.SymbolData, error) {
	return lookup(ctx, w, path, w.cache.Symbols, func(r *types.AnalysisResult) []types.SymbolData { return r.Symbols })
}

// Imports returns the imports of path
func (w *Workspace) Imports(ctx context.Context, path string) ([]types.ImportData, error) {
	return lookup(ctx, w, path, w.cache.Imports, func(r *types.AnalysisResult) []types.ImportData { return r.Imports })
}

// TypeConformances returns the type declarations of path with what they
// embed or are defined as
func (w *Workspace) TypeConformances(ctx context.Context, path string) ([]types.TypeConformanceData, error) {
	return lookup(ctx, w, path, w.cache.TypeConformances, func(r *types.AnalysisResult) []types.TypeConformanceData { return r.TypeConformances })
}

// Extensions returns the method sets declared in path
func (w *Workspace) Extensions(ctx context.Context, path string) ([]types.ExtensionData, error) {
	return lookup(ctx, w, path, w.cache.Extensions, func(r *types.AnalysisResult) []types.ExtensionData { return r.Extensions })
}

// PropertyWrappers returns the struct tags declared in path
func (w *Workspace) PropertyWrappers(ctx context.Context, path string) ([]types.PropertyWrapperData, error) {
	return lookup(ctx, w, path, w.cache.PropertyWrappers, func(r *types.AnalysisResult) []types.PropertyWrapperData { return r.PropertyWrappers })
}

// lookup serves a payload from the cache, analyzing the file on a miss.
func lookup[T any](
	ctx context.Context,
	w *Workspace,
	path string,
	cached func(string) ([]T, bool),
	pick func(*types.AnalysisResult) []T,
) ([]T, error) {
	path = w.Resolve(path)
	if v, ok := cached(path); ok {
		return v, nil
	}

	result, err := w.analyze(ctx, path)
	if err != nil {
		return nil, err
	}
	if v := pick(result); v != nil {
		return v, nil
	}
	return []T{}, nil
}

// analyze runs the analyzer on path and stores every payload. Concurrent
// calls for the same path share one analysis.
func (w *Workspace) analyze(ctx context.Context, path string) (*types.AnalysisResult, error) {
	ch := w.flight.DoChan(path, func() (interface{}, error) {
		result, err := w.analyzer.Analyze(path)
		if err != nil {
			return nil, err
		}
		if result.HasErrors() {
			w.logger.Debug("analyzed with errors",
				slog.String("path", path),
				slog.Int("errors", len(result.Errors)),
			)
		}
		if !w.cache.SetAll(path, result) {
			w.logger.Debug("analysis not cached", slog.String("path", path))
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.AnalysisResult), nil
	}
}
