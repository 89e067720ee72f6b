package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
)

// probeTimeout bounds the --version probe.
const probeTimeout = 10 * time.Second

// registryEnv overrides the registry for Yarn 2+, which has no --registry flag.
const registryEnv = "YARN_NPM_REGISTRY_SERVER"

// Options configures a Runner.
type Options struct {
	// Root is the project directory the process runs in.
	Root string
	// Manager is the package manager to run. Empty means npm.
	Manager Manager
	// Endpoint, when set, overrides the registry the tool installs from.
	Endpoint string
	// Env is appended to the inherited environment.
	Env    []string
	Logger *log.Logger
}

// Runner invokes one package-manager executable.
type Runner struct {
	root     string
	manager  Manager
	path     string
	version  *semver.Version
	mode     Mode
	endpoint string
	env      []string
	logger   *log.Logger
}

// New resolves and probes the executable for opts.Manager. An executable
// that cannot be found or probed still yields a Runner in plain mode; Run
// then reports the start failure as -1.
func New(ctx context.Context, opts Options) *Runner {
	if opts.Manager == "" {
		opts.Manager = NPM
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	r := &Runner{
		root:     opts.Root,
		manager:  opts.Manager,
		endpoint: opts.Endpoint,
		env:      opts.Env,
		logger:   logger,
	}

	path, err := resolve(opts.Root, string(opts.Manager))
	if err != nil {
		logger.Warn("package manager not found", "manager", opts.Manager, "err", err)
		r.path = string(opts.Manager)
		return r
	}
	r.path = path
	r.version = probe(ctx, opts.Root, path)
	if r.manager == Yarn && r.version != nil && r.version.Major() >= 2 {
		r.mode = ModeJSON
	}
	logger.Debug("package manager resolved", "manager", r.manager, "path", r.path, "version", r.Version(), "mode", r.mode)
	return r
}

// resolve looks in <root>/node_modules/.bin, then PATH.
func resolve(root, name string) (string, error) {
	local := filepath.Join(root, "node_modules", ".bin", name)
	if runtime.GOOS == "windows" {
		local += ".cmd"
	}
	if fi, err := os.Stat(local); err == nil && !fi.IsDir() {
		return local, nil
	}
	return exec.LookPath(name)
}

func probe(ctx context.Context, root, path string) *semver.Version {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	v, err := semver.NewVersion(strings.TrimSpace(string(out)))
	if err != nil {
		return nil
	}
	return v
}

// Manager returns the package manager this runner invokes.
func (r *Runner) Manager() Manager { return r.manager }

// Mode returns the stdout parsing mode selected at construction.
func (r *Runner) Mode() Mode { return r.mode }

// Path returns the resolved executable.
func (r *Runner) Path() string { return r.path }

// Version returns the probed tool version, or "" if unknown.
func (r *Runner) Version() string {
	if r.version == nil {
		return ""
	}
	return r.version.String()
}

// Args returns the full argument list Run would pass for args.
func (r *Runner) Args(args []string) []string {
	if len(args) == 0 && r.manager != Yarn {
		// bare yarn installs
		args = []string{"install"}
	}
	out := append([]string(nil), args...)
	if r.mode == ModeJSON {
		out = append(out, "--json")
	}
	if r.endpoint != "" && r.mode != ModeJSON {
		out = append(out, "--registry="+r.endpoint)
	}
	return out
}

// Run executes the package manager in the project root and waits for it.
// It returns the exit code, or -1 if the process could not be started.
// The only timeout is ctx.
func (r *Runner) Run(ctx context.Context, args []string) int {
	args = r.Args(args)
	logger := r.logger.WithPrefix(string(r.manager))

	stdout := NewLineBuffer(stdoutHandler(r.mode, logger))
	stderr := NewLineBuffer(stderrHandler(logger))

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Dir = r.root
	cmd.Env = append(os.Environ(), r.env...)
	if r.endpoint != "" && r.mode == ModeJSON {
		cmd.Env = append(cmd.Env, registryEnv+"="+r.endpoint)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Info("running package manager", "cmd", r.manager, "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		r.logger.Error("package manager failed to start", "path", r.path, "err", err)
		return -1
	}

	err := cmd.Wait()
	_ = stdout.Close()
	_ = stderr.Close()

	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	r.logger.Error("package manager failed", "err", err)
	return -1
}
