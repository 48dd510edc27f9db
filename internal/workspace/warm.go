package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// WarmStats reports the outcome of a warm-up
type WarmStats struct {
	Files         int           `json:"files"`
	Analyzed      int           `json:"analyzed"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Removed       int           `json:"removed"`
	Evicted       int           `json:"evicted"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// Warm analyzes every source file without a valid cache entry, using a
// bounded pool of workers, then reconciles and saves the cache. Files that
// fail to analyze are counted and reported but do not stop the warm-up.
// Only one warm-up runs at a time; others fail with ErrWarmInProgress.
func (w *Workspace) Warm(ctx context.Context) (*WarmStats, error) {
	if !w.warm.TryAcquire() {
		return nil, ErrWarmInProgress
	}
	defer w.warm.Release()

	start := time.Now()
	files, err := w.SourceFiles()
	if err != nil {
		return nil, err
	}

	var (
		analyzed atomic.Int32
		skipped  atomic.Int32
		failed   atomic.Int32
		mu       sync.Mutex // Protects stats.ErrorMessages
	)
	stats := &WarmStats{Files: len(files)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)

	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !w.cache.IsStale(path) {
				skipped.Add(1)
				return nil
			}
			if _, err := w.analyze(gctx, path); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				return nil
			}
			analyzed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.Analyzed = int(analyzed.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())

	valid := make(map[string]struct{}, len(files))
	for _, f := range files {
		valid[f] = struct{}{}
	}
	stats.Removed, stats.Evicted = w.cache.CheckAndRun(valid)

	if err := w.cache.Save(); err != nil {
		w.logger.Warn("failed to save cache after warm-up", slog.String("error", err.Error()))
	}

	stats.Duration = time.Since(start)
	w.logger.Info("warm-up complete",
		slog.Int("files", stats.Files),
		slog.Int("analyzed", stats.Analyzed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}
