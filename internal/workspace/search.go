package workspace

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dshills/gosight-mcp/internal/analyzer"
)

// CodeMatch is one line matched by SearchCode
type CodeMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// FileTestCases are the test functions declared in one _test.go file
type FileTestCases struct {
	File  string              `json:"file"`
	Cases []analyzer.TestCase `json:"cases"`
}

// FileTypeUsages are the usages of a type within one file
type FileTypeUsages struct {
	File   string               `json:"file"`
	Usages []analyzer.TypeUsage `json:"usages"`
}

// ReadSymbol returns the source of one declaration in path. See
// analyzer.ReadSymbol for the accepted symbol paths.
func (w *Workspace) ReadSymbol(path, symbolPath string, bodyOnly bool) (*analyzer.SymbolSource, error) {
	path = w.Resolve(path)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return analyzer.ReadSymbol(path, content, symbolPath, bodyOnly)
}

// TestCases lists the tests, benchmarks, fuzz targets and examples of the
// project, or of a single file when path is not empty. Symbols come from
// the file cache, so only stale or new test files are parsed.
func (w *Workspace) TestCases(ctx context.Context, path string) ([]FileTestCases, error) {
	var files []string
	if path != "" {
		files = []string{w.Resolve(path)}
	} else {
		all, err := w.SourceFiles()
		if err != nil {
			return nil, err
		}
		for _, f := range all {
			if strings.HasSuffix(f, "_test.go") {
				files = append(files, f)
			}
		}
	}

	var out []FileTestCases
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(file, "_test.go") {
			continue
		}
		syms, err := w.Symbols(ctx, file)
		if err != nil {
			if path != "" {
				return nil, err
			}
			w.logger.Debug("skipping test file", slog.String("path", file), slog.String("error", err.Error()))
			continue
		}
		var cases []analyzer.TestCase
		for _, sym := range syms {
			if tc, ok := analyzer.ClassifyTest(sym); ok {
				cases = append(cases, tc)
			}
		}
		if len(cases) > 0 {
			out = append(out, FileTestCases{File: file, Cases: cases})
		}
	}
	return out, nil
}

// TypeUsages finds where typeName is used as a type across the project.
// Files that never mention the name are not parsed.
func (w *Workspace) TypeUsages(ctx context.Context, typeName string) ([]FileTypeUsages, error) {
	files, err := w.SourceFiles()
	if err != nil {
		return nil, err
	}

	needle := []byte(typeName)
	var out []FileTypeUsages
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(file)
		if err != nil || !bytes.Contains(content, needle) {
			continue
		}
		usages, err := analyzer.TypeUsages(file, content, typeName)
		if err != nil {
			w.logger.Debug("skipping unparsable file", slog.String("path", file), slog.String("error", err.Error()))
			continue
		}
		if len(usages) > 0 {
			out = append(out, FileTypeUsages{File: file, Usages: usages})
		}
	}
	return out, nil
}

// SearchCode returns up to limit source lines matching re, in file order.
// A non-empty filePattern restricts the search to files whose base name
// matches it (filepath.Match syntax). truncated reports whether more
// matches were left out.
func (w *Workspace) SearchCode(ctx context.Context, re *regexp.Regexp, filePattern string, limit int) (matches []CodeMatch, truncated bool, err error) {
	if filePattern != "" {
		if _, err := filepath.Match(filePattern, ""); err != nil {
			return nil, false, fmt.Errorf("invalid file pattern %q: %w", filePattern, err)
		}
	}
	files, err := w.SourceFiles()
	if err != nil {
		return nil, false, err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if filePattern != "" {
			if ok, _ := filepath.Match(filePattern, filepath.Base(file)); !ok {
				continue
			}
		}
		f, err := os.Open(file)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for line := 1; scanner.Scan(); line++ {
			if !re.Match(scanner.Bytes()) {
				continue
			}
			if len(matches) == limit {
				_ = f.Close()
				return matches, true, nil
			}
			matches = append(matches, CodeMatch{File: file, Line: line, Text: strings.TrimSpace(scanner.Text())})
		}
		_ = f.Close()
	}
	return matches, false, nil
}

// FindFiles returns the project's source files, relative to the root,
// whose base name or relative path matches pattern. Patterns without glob
// characters match as a case-insensitive substring of the relative path.
func (w *Workspace) FindFiles(pattern string) ([]string, error) {
	glob := strings.ContainsAny(pattern, "*?[")
	if glob {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	files, err := w.SourceFiles()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(pattern)
	var out []string
	for _, file := range files {
		rel, err := filepath.Rel(w.root, file)
		if err != nil {
			continue
		}
		var ok bool
		if glob {
			ok, _ = filepath.Match(pattern, filepath.Base(file))
			if !ok {
				ok, _ = filepath.Match(pattern, filepath.ToSlash(rel))
			}
		} else {
			ok = strings.Contains(strings.ToLower(filepath.ToSlash(rel)), needle)
		}
		if ok {
			out = append(out, rel)
		}
	}
	return out, nil
}
