package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// ModuleInfo describes the Go module at the project root
type ModuleInfo struct {
	Path      string `json:"path"`
	GoVersion string `json:"go_version,omitempty"`
	Requires  int    `json:"requires"`
}

// Module parses go.mod at the project root. It returns an error wrapping
// os.ErrNotExist when the project has no go.mod.
func (w *Workspace) Module() (*ModuleInfo, error) {
	return parseGoMod(filepath.Join(w.root, "go.mod"))
}

func parseGoMod(path string) (*ModuleInfo, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f, err := modfile.ParseLax(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("parse go.mod: %w", err)
	}

	info := &ModuleInfo{Requires: len(f.Require)}
	if f.Module != nil {
		info.Path = f.Module.Mod.Path
	}
	if f.Go != nil {
		info.GoVersion = f.Go.Version
	}
	return info, nil
}
