package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/matzehuels/stacksync/pkg/registry"
)

// DiscoverEndpoint returns the registry to use for the project at root.
// Order: configured, the npm_config_registry environment variable, the
// project .npmrc, the user ~/.npmrc, then the public registry.
func DiscoverEndpoint(root, configured string) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	for _, key := range []string{"npm_config_registry", "NPM_CONFIG_REGISTRY"} {
		if v := os.Getenv(key); v != "" {
			return strings.TrimSuffix(v, "/")
		}
	}
	files := []string{filepath.Join(root, ".npmrc")}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".npmrc"))
	}
	for _, f := range files {
		if v := npmrcRegistry(f); v != "" {
			return strings.TrimSuffix(v, "/")
		}
	}
	return registry.DefaultEndpoint
}

// npmrcRegistry reads the top-level registry key of an .npmrc file.
func npmrcRegistry(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	// auth lines look like //host/:_authToken=..., so ":" must not split keys
	cfg, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return ""
	}
	v := strings.TrimSpace(cfg.Section(ini.DefaultSection).Key("registry").String())
	return os.ExpandEnv(strings.Trim(v, `"`))
}
