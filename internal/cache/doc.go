// Package cache stores per-file analysis results for one project.
//
// Each Entry carries the file's modification time at the moment its
// payloads were stored. Every read stats the file again and treats the
// entry as a miss once the file has been modified since, so callers never
// see results computed from an older version of a file.
//
// The cache is bounded: CheckAndRun drops entries for files that no longer
// exist in the project and then evicts the least recently accessed entries
// once the cache holds more than MaxEntries. Save persists the whole cache
// as a JSON document in the cache directory; Open restores it.
//
// # Basic Usage
//
//	dir, _ := cache.DirForProject(dataDir, root)
//	fc, _ := cache.Open(dir)
//	defer fc.Save()
//
//	if syms, ok := fc.Symbols(path); ok {
//	    return syms
//	}
//	result, err := analyzer.Analyze(path)
//	if err == nil {
//	    fc.SetAll(path, result)
//	}
package cache
