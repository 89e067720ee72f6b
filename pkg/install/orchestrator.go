package install

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/fetch"
	"github.com/matzehuels/stacksync/pkg/manifest"
	"github.com/matzehuels/stacksync/pkg/observability"
	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/snapshot"
	"github.com/matzehuels/stacksync/pkg/versions"
)

//go:generate mockgen -destination=mocks/mock_install.go -package=mocks github.com/matzehuels/stacksync/pkg/install Runner,Loader

// Runner runs the package manager and returns its exit code, -1 if it
// could not start. *process.Runner implements it.
type Runner interface {
	Run(ctx context.Context, args []string) int
}

// Loader is the host's module loader.
type Loader interface {
	// Loaded reports whether the package is currently loaded.
	Loaded(name string) bool
	// Reload requests a full reload of all modules.
	Reload(ctx context.Context)
}

// Options configures an Orchestrator.
type Options struct {
	Root   string
	Source fetch.Source
	Runner Runner
	// Loader and Notifier are optional; nil disables reloads and broadcasts.
	Loader   Loader
	Notifier versions.Notifier
	// Compat filters registry versions. Nil accepts every version.
	Compat registry.Compat
	// Window is the broadcast coalescing window.
	Window time.Duration
	Logger *log.Logger
}

// Result describes one install call.
type Result struct {
	ID       string        `json:"id"`
	Code     int           `json:"code"`
	Forced   bool          `json:"forced"`
	Reason   string        `json:"reason,omitempty"`
	Reloaded []string      `json:"reloaded,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Orchestrator owns the dependency state of one project.
type Orchestrator struct {
	root    string
	runner  Runner
	logger  *log.Logger
	cache   *versions.Cache
	thr     *versions.Throttle
	coord   *fetch.Coordinator
	builder *snapshot.Builder

	installMu sync.Mutex
	stateMu   sync.Mutex

	loaderMu sync.RWMutex
	loader   Loader
}

// New wires the version cache, fetch coordinator and snapshot builder for
// the project at opts.Root.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	compat := opts.Compat
	if compat == nil {
		compat = registry.Any
	}

	cache := versions.NewCache()
	coord := fetch.New(opts.Source, cache, fetch.WithCompat(compat), fetch.WithLogger(logger))
	return &Orchestrator{
		root:    opts.Root,
		runner:  opts.Runner,
		logger:  logger,
		cache:   cache,
		thr:     versions.NewThrottle(cache, opts.Notifier, opts.Window, logger),
		coord:   coord,
		builder: snapshot.NewBuilder(opts.Root, coord, logger),
		loader:  opts.Loader,
	}
}

// Root returns the project directory.
func (o *Orchestrator) Root() string { return o.root }

// SetLoader replaces the module loader. Nil disables reloads.
func (o *Orchestrator) SetLoader(l Loader) {
	o.loaderMu.Lock()
	o.loader = l
	o.loaderMu.Unlock()
}

// SetNotifier replaces the delta broadcast target. Nil disables broadcasts.
func (o *Orchestrator) SetNotifier(n versions.Notifier) {
	o.thr.SetNotifier(n)
}

// Snapshot returns the current dependency snapshot.
func (o *Orchestrator) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	return o.builder.Build(ctx)
}

// Versions returns the registry versions of name, newest first, or nil if
// the registry has no usable data.
func (o *Orchestrator) Versions(ctx context.Context, name string) versions.Versions {
	return o.coord.Fetch(ctx, name)
}

// Invalidate clears the fetch tasks, both version stores and the memoized
// snapshot in one step.
func (o *Orchestrator) Invalidate() {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.coord.Reset()
	o.builder.Invalidate()
}

// Close stops pending broadcasts.
func (o *Orchestrator) Close() {
	o.thr.Stop()
}

// Install applies overrides (name to range, "" removes) to the manifest,
// runs the package manager when Decide requires it or force is set, and
// reloads modules whose installed version changed. Installs are serialized.
//
// An empty override set without force is a no-op. Every other call ends
// with the cached state invalidated, even when it fails. A non-zero exit code is
// returned in the Result together with an *errors.ExitError, and no reload
// is attempted.
func (o *Orchestrator) Install(ctx context.Context, overrides map[string]string, force bool) (Result, error) {
	res := Result{ID: uuid.NewString()}
	if len(overrides) == 0 && !force {
		return res, nil
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		if err := sserrors.ValidateNpmPackageName(name); err != nil {
			return res, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	o.installMu.Lock()
	defer o.installMu.Unlock()

	start := time.Now()
	hooks := observability.Install()
	logger := o.logger.With("install", res.ID[:8])

	before := o.builder.Local(names)

	if len(overrides) > 0 {
		m, err := manifest.Load(o.root)
		if err != nil {
			o.Invalidate()
			return res, err
		}
		for _, name := range m.Apply(overrides) {
			logger.Debug("ignoring removal of undeclared dependency", "package", name)
		}
		if err := m.Save(); err != nil {
			o.Invalidate()
			return res, sserrors.Wrap(sserrors.ErrCodeInternal, err, "write %s", m.Path())
		}
	}

	d := Decide(before, overrides, force)
	res.Forced, res.Reason = d.Forced, d.Reason
	hooks.OnDecision(ctx, res.ID, d.Forced, d.Reason)
	if d.Forced {
		logger.Info("install required", "reason", d.Reason)
		if o.runner == nil {
			logger.Error("no package manager configured")
			res.Code = -1
		} else {
			res.Code = o.runner.Run(ctx, nil)
		}
	} else {
		logger.Info("install skipped", "reason", d.Reason)
	}

	o.Invalidate()
	defer func() {
		hooks.OnInstallComplete(ctx, res.ID, res.Code, time.Since(start))
	}()

	if res.Code != 0 {
		res.Duration = time.Since(start)
		return res, &sserrors.ExitError{ExitCode: res.Code}
	}

	after, err := o.builder.Build(ctx)
	if err != nil {
		return res, err
	}
	res.Reloaded = o.reconcile(ctx, names, before, after)
	if len(res.Reloaded) > 0 {
		hooks.OnReload(ctx, res.ID, res.Reloaded)
	}
	o.thr.Flush()

	res.Duration = time.Since(start)
	return res, nil
}

// reconcile returns the changed, loaded packages and triggers one reload if
// there are any.
func (o *Orchestrator) reconcile(ctx context.Context, names []string, before, after snapshot.Snapshot) []string {
	o.loaderMu.RLock()
	loader := o.loader
	o.loaderMu.RUnlock()
	if loader == nil {
		return nil
	}

	var changed []string
	for _, name := range names {
		dep := after[name]
		if dep.Workspace || dep.Resolved == before[name].Resolved {
			continue
		}
		if loader.Loaded(name) {
			changed = append(changed, name)
		}
	}
	if len(changed) > 0 {
		o.logger.Info("reloading modules", "changed", changed)
		loader.Reload(ctx)
	}
	return changed
}
