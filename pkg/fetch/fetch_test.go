package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/versions"
)

type fakeSource struct {
	gate     chan struct{}
	delay    time.Duration
	err      error
	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
	docs     map[string]*registry.Packument
}

func (f *fakeSource) Packument(ctx context.Context, name string) (*registry.Packument, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if doc, ok := f.docs[name]; ok {
		return doc, nil
	}
	return &registry.Packument{Name: name, Versions: map[string]registry.Manifest{
		"1.0.0": {}, "1.2.0": {},
	}}, nil
}

func TestFetchDeduplicatesConcurrentCalls(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	c := New(src, versions.NewCache())

	const callers = 25
	results := make([]versions.Versions, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Fetch(context.Background(), "left-pad")
		}()
	}

	// let every caller reach the in-flight request before releasing it
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	for _, vs := range results {
		assert.Equal(t, results[0], vs)
	}
	assert.Equal(t, "1.2.0", results[0].Latest())

	// resolved tasks are reused
	c.Fetch(context.Background(), "left-pad")
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFetchFailureResolvesNil(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	cache := versions.NewCache()
	c := New(src, cache)

	assert.Nil(t, c.Fetch(context.Background(), "left-pad"))
	assert.Nil(t, c.Fetch(context.Background(), "left-pad"))
	assert.Equal(t, int32(1), src.calls.Load(), "failed task is reused until reset")

	_, ok := cache.Lookup("left-pad")
	assert.False(t, ok)
}

func TestFetchReset(t *testing.T) {
	src := &fakeSource{}
	c := New(src, versions.NewCache())

	c.Fetch(context.Background(), "left-pad")
	c.Reset()
	c.Fetch(context.Background(), "left-pad")
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestFetchResetDuringFlight(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	cache := versions.NewCache()
	c := New(src, cache)

	done := make(chan versions.Versions)
	go func() { done <- c.Fetch(context.Background(), "left-pad") }()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Reset()
	close(src.gate)
	assert.NotNil(t, <-done, "caller still gets its result")

	assert.Equal(t, 0, cache.Len(), "stale result stays out of the full store")
	assert.Empty(t, cache.Drain(), "stale result stays out of the delta")

	c.Fetch(context.Background(), "left-pad")
	assert.Equal(t, int32(2), src.calls.Load(), "stale result is not stored")
}

func TestFetchFailureDuringFlightNotKept(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), err: errors.New("boom")}
	c := New(src, versions.NewCache())

	done := make(chan versions.Versions)
	go func() { done <- c.Fetch(context.Background(), "left-pad") }()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Reset()
	close(src.gate)
	assert.Nil(t, <-done)

	src.err = nil
	assert.NotNil(t, c.Fetch(context.Background(), "left-pad"))
}

func TestFetchServesFromCache(t *testing.T) {
	src := &fakeSource{}
	cache := versions.NewCache()
	cache.Record("left-pad", []registry.Manifest{{Version: "1.3.0"}})
	c := New(src, cache)

	vs := c.Fetch(context.Background(), "left-pad")
	assert.Equal(t, "1.3.0", vs.Latest())
	assert.Zero(t, src.calls.Load())

	c.Reset()
	assert.Zero(t, cache.Len())
	assert.Equal(t, "1.2.0", c.Fetch(context.Background(), "left-pad").Latest())
}

func TestFetchCallerCancel(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	c := New(src, versions.NewCache())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan versions.Versions)
	go func() { done <- c.Fetch(ctx, "left-pad") }()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.Nil(t, <-done)

	close(src.gate)
	require.Eventually(t, func() bool {
		return c.Fetch(context.Background(), "left-pad") != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load(), "shared request survives one caller's cancellation")
}

func TestFetchCompat(t *testing.T) {
	src := &fakeSource{docs: map[string]*registry.Packument{
		"fsevents": {Versions: map[string]registry.Manifest{
			"2.0.0": {OS: []string{"darwin"}},
			"1.0.0": {},
		}},
	}}
	c := New(src, versions.NewCache(), WithCompat(registry.Platform("linux", "amd64")))

	vs := c.Fetch(context.Background(), "fsevents")
	assert.Equal(t, []string{"1.0.0"}, vs.Keys())
}

func TestFetchAllLimit(t *testing.T) {
	src := &fakeSource{delay: 10 * time.Millisecond}
	c := New(src, versions.NewCache())

	names := make([]string, 40)
	for i := range names {
		names[i] = fmt.Sprintf("pkg-%d", i)
	}

	out := c.FetchAll(context.Background(), names)
	assert.Len(t, out, len(names))
	assert.Equal(t, int32(len(names)), src.calls.Load())
	assert.LessOrEqual(t, src.peak.Load(), int32(Limit))
	assert.Greater(t, src.peak.Load(), int32(1))
}
