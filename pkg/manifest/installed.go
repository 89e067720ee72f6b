package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
)

// ModulesDir is the managed dependency directory.
const ModulesDir = "node_modules"

// Package is the installed manifest of one dependency.
type Package struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// Dir is the directory the manifest was found in, as linked.
	Dir string `json:"-"`
	// Workspace is true when Dir resolves outside every node_modules
	// directory, i.e. the package is linked from a sibling project.
	Workspace bool `json:"-"`
}

// Installed resolves name from <root>/node_modules, falling back to the
// node_modules of each parent directory the way Node's resolver does.
// A package that is not installed yields an error coded NOT_FOUND.
func Installed(root, name string) (*Package, error) {
	dir, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for {
		pkgDir := filepath.Join(dir, ModulesDir, filepath.FromSlash(name))
		data, err := os.ReadFile(filepath.Join(pkgDir, FileName))
		switch {
		case err == nil:
			return readInstalled(pkgDir, data)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, sserrors.New(sserrors.ErrCodeNotFound, "%s is not installed", name)
		}
		dir = parent
	}
}

func readInstalled(dir string, data []byte) (*Package, error) {
	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "read %s", filepath.Join(dir, FileName))
	}
	p.Dir = dir
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, err
	}
	p.Workspace = !slices.Contains(strings.Split(filepath.ToSlash(real), "/"), ModulesDir)
	return &p, nil
}
