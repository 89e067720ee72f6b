package process

import (
	"os"
	"path/filepath"
	"strings"
)

// Manager names a supported package manager executable.
type Manager string

const (
	NPM  Manager = "npm"
	Yarn Manager = "yarn"
	PNPM Manager = "pnpm"
	Bun  Manager = "bun"
)

// lockfiles in detection order.
var lockfiles = []struct {
	file    string
	manager Manager
}{
	{"pnpm-lock.yaml", PNPM},
	{"yarn.lock", Yarn},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"package-lock.json", NPM},
}

// ParseManager maps a name to a Manager. ok is false for unknown names.
func ParseManager(name string) (Manager, bool) {
	switch m := Manager(strings.ToLower(strings.TrimSpace(name))); m {
	case NPM, Yarn, PNPM, Bun:
		return m, true
	}
	return "", false
}

// Detect picks the package manager for the project at root. Precedence:
// preferred (from configuration), the package.json "packageManager" field
// (e.g. "yarn@4.1.0"), the first lockfile found, then npm.
func Detect(root, preferred, packageManager string) Manager {
	if m, ok := ParseManager(preferred); ok {
		return m
	}
	if name, _, _ := strings.Cut(packageManager, "@"); name != "" {
		if m, ok := ParseManager(name); ok {
			return m
		}
	}
	for _, lf := range lockfiles {
		if _, err := os.Stat(filepath.Join(root, lf.file)); err == nil {
			return lf.manager
		}
	}
	return NPM
}
