// Package config loads stacksync settings.
//
// Settings come from a TOML file: <root>/stacksync.toml when present,
// otherwise $XDG_CONFIG_HOME/stacksync/config.toml. Missing files are not an
// error. Command-line flags are applied on top by the CLI.
//
//	endpoint = "https://registry.example.com"
//	timeout = "5s"
//	manager = "pnpm"
//	broadcast_window = "500ms"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
//	ttl = "168h"
//
//	[serve]
//	addr = "127.0.0.1:7357"
//
// An empty endpoint is discovered with [DiscoverEndpoint].
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/process"
	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/versions"
)

const (
	// FileName is the per-project config file.
	FileName = "stacksync.toml"

	appName = "stacksync"

	DefaultServeAddr = "127.0.0.1:7357"
	DefaultCacheTTL  = registry.DefaultCacheTTL
)

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Duration is a time.Duration read from a TOML string such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the merged configuration.
type Config struct {
	Endpoint        string      `toml:"endpoint"`
	Timeout         Duration    `toml:"timeout"`
	Manager         string      `toml:"manager"`
	BroadcastWindow Duration    `toml:"broadcast_window"`
	Cache           CacheConfig `toml:"cache"`
	Serve           ServeConfig `toml:"serve"`
}

// CacheConfig selects the registry response cache.
type CacheConfig struct {
	Backend   string   `toml:"backend"`
	Dir       string   `toml:"dir"`
	TTL       Duration `toml:"ttl"`
	RedisAddr string   `toml:"redis_addr"`
	RedisDB   int      `toml:"redis_db"`
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	Addr string `toml:"addr"`
}

// WithDefaults returns c with zero values replaced by defaults. The endpoint
// is left empty; it is discovered separately.
func (c Config) WithDefaults() Config {
	if c.Timeout.Duration <= 0 {
		c.Timeout.Duration = registry.DefaultTimeout
	}
	if c.BroadcastWindow.Duration <= 0 {
		c.BroadcastWindow.Duration = versions.DefaultWindow
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.TTL.Duration <= 0 {
		c.Cache.TTL.Duration = DefaultCacheTTL
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = DefaultServeAddr
	}
	return c
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Endpoint != "" {
		if err := sserrors.ValidateURL(c.Endpoint); err != nil {
			return sserrors.Wrap(sserrors.ErrCodeInvalidConfig, err, "endpoint %q", c.Endpoint)
		}
	}
	if c.Manager != "" {
		if _, ok := process.ParseManager(c.Manager); !ok {
			return sserrors.New(sserrors.ErrCodeInvalidConfig, "unknown package manager %q", c.Manager)
		}
	}
	switch c.Cache.Backend {
	case "", BackendFile, BackendNone:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return sserrors.New(sserrors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	default:
		return sserrors.New(sserrors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// Load reads the config for the project at root and returns it with
// defaults applied, along with the file it came from ("" if none).
func Load(root string) (Config, string, error) {
	for _, path := range candidates(root) {
		cfg, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, path, err
		}
		return cfg, path, nil
	}
	return Config{}.WithDefaults(), "", nil
}

// LoadFile reads one TOML file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, sserrors.Wrap(sserrors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, sserrors.New(sserrors.ErrCodeInvalidConfig, "%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg.WithDefaults(), nil
}

func candidates(root string) []string {
	paths := []string{filepath.Join(root, FileName)}
	if dir, err := Dir(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.toml"))
	}
	return paths
}

// Dir returns the user config directory ($XDG_CONFIG_HOME/stacksync).
func Dir() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// CacheDir returns the file cache directory: the configured one, else
// $XDG_CACHE_HOME/stacksync, else ~/.cache/stacksync.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
