// Package workspace is the per-project analysis session.
//
// A Workspace pairs a project root with its persisted file cache and a
// types.Analyzer. Lookups go through the cache first; a miss (no entry, a
// stale entry or a payload never computed) analyzes the file once, stores
// every payload the analyzer produced and returns the requested one.
// Concurrent misses on the same file share a single analysis.
//
// # Lifecycle
//
//	ws, err := workspace.Open(root, workspace.DefaultConfig(dataDir), analyzer.New())
//	if err != nil {
//	    return err
//	}
//	defer ws.Close() // saves the cache
//
//	ws.Reconcile()      // drop entries for deleted files
//	ws.Watch(ctx)       // keep doing so while the server runs
//	ws.Warm(ctx)        // optionally analyze everything up front
//
// Warm-ups run on a bounded errgroup and are exclusive: a second Warm while
// one is running returns ErrWarmInProgress instead of waiting.
package workspace
