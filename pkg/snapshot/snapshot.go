// Package snapshot computes the current state of every declared dependency:
// requested range, installed version, workspace membership, range validity
// and the latest registry version.
package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stacksync/pkg/manifest"
	"github.com/matzehuels/stacksync/pkg/semverutil"
	"github.com/matzehuels/stacksync/pkg/versions"
)

// Limit is the ceiling on dependencies resolved concurrently.
const Limit = 10

// Dependency is the computed state of one declared dependency.
type Dependency struct {
	Request   string `json:"request"`
	Resolved  string `json:"resolved,omitempty"`
	Workspace bool   `json:"workspace"`
	Invalid   bool   `json:"invalid"`
	Latest    string `json:"latest,omitempty"`
}

// Outdated reports whether a newer registry version than the installed one
// is known.
func (d Dependency) Outdated() bool {
	if d.Workspace || d.Resolved == "" || d.Latest == "" {
		return false
	}
	return d.Resolved != d.Latest && !semverutil.Satisfies(d.Latest, "<="+d.Resolved)
}

// Snapshot maps dependency names to their state. Snapshots returned by a
// Builder are shared and must not be modified.
type Snapshot map[string]Dependency

// Names returns the dependency names, sorted.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Fetcher returns the registry versions of a package, nil when unknown.
// *fetch.Coordinator implements it.
type Fetcher interface {
	Fetch(ctx context.Context, name string) versions.Versions
}

// Builder builds and memoizes snapshots of the project at root.
type Builder struct {
	root    string
	fetcher Fetcher
	logger  *log.Logger

	mu   sync.Mutex
	memo *build
}

type build struct {
	done chan struct{}
	snap Snapshot
	err  error
}

// NewBuilder creates a Builder for the project at root.
func NewBuilder(root string, fetcher Fetcher, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{root: root, fetcher: fetcher, logger: logger}
}

// Build returns the memoized snapshot, computing it if needed. Concurrent
// callers share one computation; a caller whose ctx ends stops waiting
// without cancelling it. A failed build is not memoized.
func (b *Builder) Build(ctx context.Context) (Snapshot, error) {
	b.mu.Lock()
	m := b.memo
	if m == nil {
		m = &build{done: make(chan struct{})}
		b.memo = m
		go b.run(context.WithoutCancel(ctx), m)
	}
	b.mu.Unlock()

	select {
	case <-m.done:
		return m.snap, m.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Builder) run(ctx context.Context, m *build) {
	m.snap, m.err = b.compute(ctx)
	if m.err != nil {
		b.mu.Lock()
		if b.memo == m {
			b.memo = nil
		}
		b.mu.Unlock()
	}
	close(m.done)
}

// Invalidate drops the memoized snapshot. Builds already running finish for
// their callers but are not returned to later ones.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	b.memo = nil
	b.mu.Unlock()
}

func (b *Builder) compute(ctx context.Context) (Snapshot, error) {
	m, err := manifest.Load(b.root)
	if err != nil {
		return nil, err
	}

	snap := make(Snapshot, len(m.Dependencies))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Limit)
	for name, rng := range m.Dependencies {
		g.Go(func() error {
			d := b.resolve(gctx, name, rng)
			mu.Lock()
			snap[name] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Debug("built dependency snapshot", "dependencies", len(snap))
	return snap, nil
}

func (b *Builder) resolve(ctx context.Context, name, rng string) Dependency {
	d := b.local(name)
	d.Request = semverutil.StripOperator(rng)
	if d.Workspace {
		return d
	}
	if !semverutil.ValidRange(d.Request) {
		d.Invalid = true
	}
	if b.fetcher != nil {
		d.Latest = b.fetcher.Fetch(ctx, name).Latest()
	}
	return d
}

// Local resolves names from the installed manifests only, without the
// registry. Request, Invalid and Latest are left empty.
func (b *Builder) Local(names []string) Snapshot {
	snap := make(Snapshot, len(names))
	for _, name := range names {
		snap[name] = b.local(name)
	}
	return snap
}

func (b *Builder) local(name string) Dependency {
	pkg, err := manifest.Installed(b.root, name)
	if err != nil {
		b.logger.Debug("dependency not installed", "package", name, "err", err)
		return Dependency{}
	}
	return Dependency{Resolved: pkg.Version, Workspace: pkg.Workspace}
}
