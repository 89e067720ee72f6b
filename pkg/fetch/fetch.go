// Package fetch deduplicates and bounds registry fetches.
//
// A [Coordinator] issues at most one registry request per package name until
// it is reset. Concurrent callers for the same name share the in-flight
// request. Later callers are served from the version cache, or get nil
// Versions if the request failed.
package fetch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/stacksync/pkg/observability"
	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/versions"
)

// Limit is the ceiling on concurrent registry fetches in [Coordinator.FetchAll].
const Limit = 10

// Source fetches a packument. *registry.Client implements it.
type Source interface {
	Packument(ctx context.Context, name string) (*registry.Packument, error)
}

// Coordinator owns the fetch-task table. Resolved tasks live in the
// version cache; failed ones are remembered here until [Coordinator.Reset].
type Coordinator struct {
	source Source
	cache  *versions.Cache
	compat registry.Compat
	logger *log.Logger

	group singleflight.Group

	mu     sync.Mutex
	gen    uint64
	failed map[string]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCompat sets the platform predicate applied to version records.
// The default accepts everything.
func WithCompat(fn registry.Compat) Option {
	return func(c *Coordinator) { c.compat = fn }
}

// WithLogger sets the logger used for fetch warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator that records results into cache.
func New(source Source, cache *versions.Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		source: source,
		cache:  cache,
		compat: registry.Any,
		failed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// Fetch returns the versions of name, fetching them on first use. It returns
// nil when the registry has no usable data or ctx ends first.
func (c *Coordinator) Fetch(ctx context.Context, name string) versions.Versions {
	c.mu.Lock()
	vs, done := c.lookup(name)
	gen := c.gen
	c.mu.Unlock()
	if done {
		return vs
	}

	key := strconv.FormatUint(gen, 10) + ":" + name
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		if vs, done := c.lookup(name); done && c.gen == gen {
			c.mu.Unlock()
			return vs, nil
		}
		c.mu.Unlock()

		// Shared by every waiter; one caller's cancellation must not fail the rest.
		return c.load(context.WithoutCancel(ctx), name, gen), nil
	})

	select {
	case res := <-ch:
		vs, _ := res.Val.(versions.Versions)
		return vs
	case <-ctx.Done():
		return nil
	}
}

// lookup reports a settled task. c.mu must be held.
func (c *Coordinator) lookup(name string) (versions.Versions, bool) {
	if _, ok := c.failed[name]; ok {
		return nil, true
	}
	return c.cache.Lookup(name)
}

// load fetches name and settles the task, unless the coordinator was reset
// after gen. A stale result is returned to its callers but never stored.
func (c *Coordinator) load(ctx context.Context, name string, gen uint64) versions.Versions {
	hooks := observability.Fetch()
	hooks.OnFetchStart(ctx, name)
	start := time.Now()

	doc, err := c.source.Packument(ctx, name)
	if err != nil {
		hooks.OnFetchComplete(ctx, name, 0, time.Since(start), err)
		c.logger.Warn("registry fetch failed", "package", name, "err", err)
		c.mu.Lock()
		if c.gen == gen {
			c.failed[name] = struct{}{}
		}
		c.mu.Unlock()
		return nil
	}

	records := doc.Records()
	compatible := records[:0]
	for _, r := range records {
		if c.compat(r) {
			compatible = append(compatible, r)
		}
	}

	c.mu.Lock()
	var vs versions.Versions
	if c.gen == gen {
		vs = c.cache.Record(name, compatible)
	} else {
		vs = versions.FromRecords(compatible)
		c.logger.Debug("dropping stale fetch", "package", name)
	}
	c.mu.Unlock()

	hooks.OnFetchComplete(ctx, name, len(vs), time.Since(start), nil)
	c.logger.Debug("fetched versions", "package", name, "versions", len(vs), "took", time.Since(start).Round(time.Millisecond))
	return vs
}

// FetchAll fetches names with at most [Limit] requests in flight. Names with
// no data map to nil.
func (c *Coordinator) FetchAll(ctx context.Context, names []string) map[string]versions.Versions {
	out := make(map[string]versions.Versions, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Limit)
	for _, name := range names {
		g.Go(func() error {
			vs := c.Fetch(gctx, name)
			mu.Lock()
			out[name] = vs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Reset drops every task and clears both stores of the version cache.
// Fetches still in flight complete for their callers but are not stored.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.gen++
	c.failed = make(map[string]struct{})
	c.cache.Reset()
	c.mu.Unlock()
}
