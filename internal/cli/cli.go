// Package cli implements the stacksync command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacksync/pkg/buildinfo"
	"github.com/matzehuels/stacksync/pkg/cache"
	"github.com/matzehuels/stacksync/pkg/config"
	"github.com/matzehuels/stacksync/pkg/install"
	"github.com/matzehuels/stacksync/pkg/manifest"
	"github.com/matzehuels/stacksync/pkg/process"
	"github.com/matzehuels/stacksync/pkg/registry"
)

// =============================================================================
// Constants
// =============================================================================

const appName = "stacksync"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	flags  globalFlags
}

// globalFlags are the persistent flags shared by every command. Non-zero
// values override the config file.
type globalFlags struct {
	root     string
	endpoint string
	manager  string
	timeout  time.Duration
	noCache  bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Stacksync keeps plugin dependencies in sync with a running host",
		Long:         `Stacksync inspects the dependencies declared in package.json, resolves them against the npm registry, runs the package manager when an install is needed and tells a running host which loaded modules to reload.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.root, "root", "C", ".", "project directory containing package.json")
	pf.StringVar(&c.flags.endpoint, "endpoint", "", "registry endpoint (default: .npmrc, then registry.npmjs.org)")
	pf.StringVar(&c.flags.manager, "manager", "", "package manager: npm, yarn, pnpm or bun (default: detected)")
	pf.DurationVar(&c.flags.timeout, "timeout", 0, "registry request timeout")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "disable the registry response cache")

	root.AddCommand(c.depsCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.versionsCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Project Factory
// =============================================================================

// project is the wired dependency state of the --root directory.
type project struct {
	root   string
	cfg    config.Config
	cache  cache.Cache
	client *registry.Client
	runner *process.Runner
	orch   *install.Orchestrator
}

// Close stops pending broadcasts and releases the cache backend.
func (p *project) Close() {
	p.orch.Close()
	_ = p.cache.Close()
}

// settings loads the config for the --root directory and applies flag
// overrides on top of it.
func (c *CLI) settings() (string, config.Config, error) {
	root, err := filepath.Abs(c.flags.root)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("resolve root: %w", err)
	}
	cfg, path, err := config.Load(root)
	if err != nil {
		return "", config.Config{}, err
	}
	if path != "" {
		c.Logger.Debug("loaded config", "path", path)
	}

	if c.flags.endpoint != "" {
		cfg.Endpoint = c.flags.endpoint
	}
	if c.flags.manager != "" {
		cfg.Manager = c.flags.manager
	}
	if c.flags.timeout > 0 {
		cfg.Timeout.Duration = c.flags.timeout
	}
	if c.flags.noCache {
		cfg.Cache.Backend = config.BackendNone
	}
	if err := cfg.Validate(); err != nil {
		return "", config.Config{}, err
	}
	return root, cfg, nil
}

// open wires the registry client, package-manager runner and orchestrator
// for the --root directory.
func (c *CLI) open(ctx context.Context) (*project, error) {
	root, cfg, err := c.settings()
	if err != nil {
		return nil, err
	}

	cc, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	endpoint := config.DiscoverEndpoint(root, cfg.Endpoint)
	client := registry.NewClient(endpoint,
		registry.WithTimeout(cfg.Timeout.Duration),
		registry.WithCache(cc),
		registry.WithCacheTTL(cfg.Cache.TTL.Duration),
		registry.WithLogger(c.Logger),
	)

	var declared string
	if m, err := manifest.Load(root); err == nil {
		declared = m.PackageManager
	}
	manager := process.Detect(root, cfg.Manager, declared)
	runner := process.New(ctx, process.Options{
		Root:     root,
		Manager:  manager,
		Endpoint: cfg.Endpoint,
		Logger:   c.Logger,
	})
	c.Logger.Debug("project", "root", root, "endpoint", endpoint, "manager", manager, "mode", runner.Mode(), "cache", cfg.Cache.Backend)

	orch := install.New(install.Options{
		Root:   root,
		Source: client,
		Runner: runner,
		Compat: registry.Current(),
		Window: cfg.BroadcastWindow.Duration,
		Logger: c.Logger,
	})

	return &project{
		root:   root,
		cfg:    cfg,
		cache:  cc,
		client: client,
		runner: runner,
		orch:   orch,
	}, nil
}

// newCache opens the configured registry cache backend. A file cache whose
// directory cannot be determined degrades to no caching.
func newCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}
