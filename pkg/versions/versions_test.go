package versions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/versions"
	"github.com/matzehuels/stacksync/pkg/versions/mocks"
)

func records(vs ...string) []registry.Manifest {
	out := make([]registry.Manifest, len(vs))
	for i, v := range vs {
		out[i] = registry.Manifest{Version: v}
	}
	return out
}

func TestFromRecordsOrder(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"numeric not lexicographic", []string{"1.2.0", "1.10.0", "1.9.3"}, []string{"1.10.0", "1.9.3", "1.2.0"}},
		{"prerelease below release", []string{"2.0.0-beta.1", "2.0.0", "1.9.9"}, []string{"2.0.0", "2.0.0-beta.1", "1.9.9"}},
		{"prerelease ordering", []string{"1.0.0-alpha", "1.0.0-beta", "1.0.0-alpha.1"}, []string{"1.0.0-beta", "1.0.0-alpha.1", "1.0.0-alpha"}},
		{"garbage dropped", []string{"1.0.0", "latest", "", "v-1"}, []string{"1.0.0"}},
		{"empty", nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := versions.FromRecords(records(tt.in...))
			assert.Equal(t, tt.want, vs.Keys())
		})
	}
}

func TestFromRecordsMetadata(t *testing.T) {
	vs := versions.FromRecords([]registry.Manifest{{
		Version:              "1.0.0",
		PeerDependencies:     map[string]string{"react": "^18"},
		PeerDependenciesMeta: map[string]registry.PeerMeta{"react": {Optional: true}},
		Deprecated:           "old",
	}})

	r, ok := vs.Get("1.0.0")
	require.True(t, ok)
	assert.Equal(t, "^18", r.PeerDependencies["react"])
	assert.True(t, r.PeerDependenciesMeta["react"].Optional)
	assert.Equal(t, "old", r.Deprecated)
	assert.Equal(t, "1.0.0", vs.Latest())

	_, ok = vs.Get("9.9.9")
	assert.False(t, ok)
	assert.Equal(t, "", versions.Versions(nil).Latest())
}

func TestCacheDeltaSubsetOfFull(t *testing.T) {
	c := versions.NewCache()
	c.Record("a", records("1.0.0", "1.1.0"))
	c.Record("b", records("0.1.0"))

	delta := c.Drain()
	require.Len(t, delta, 2)
	for name, vs := range delta {
		full, ok := c.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, full, vs)
	}

	assert.Empty(t, c.Drain(), "drain clears the delta")
	_, ok := c.Lookup("a")
	assert.True(t, ok, "drain keeps the full store")
}

func TestCacheReset(t *testing.T) {
	c := versions.NewCache()
	c.Record("a", records("1.0.0"))
	c.Reset()

	_, ok := c.Lookup("a")
	assert.False(t, ok)
	assert.Empty(t, c.Drain())
	assert.Equal(t, 0, c.Len())
}

func TestThrottleCoalesces(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)

	got := make(chan map[string]versions.Versions, 2)
	n.EXPECT().Broadcast(gomock.Any()).Times(1).Do(func(d map[string]versions.Versions) {
		got <- d
	})

	c := versions.NewCache()
	th := versions.NewThrottle(c, n, 30*time.Millisecond, nil)
	defer th.Stop()

	c.Record("a", records("1.0.0"))
	c.Record("b", records("2.0.0"))
	c.Record("a", records("1.0.0", "1.0.1"))

	select {
	case d := <-got:
		assert.Len(t, d, 2)
		assert.Equal(t, "1.0.1", d["a"].Latest())
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast")
	}

	// nothing left to send
	assert.Empty(t, c.Drain())
}

func TestThrottleFlush(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)
	n.EXPECT().Broadcast(gomock.Len(1)).Times(1)

	c := versions.NewCache()
	th := versions.NewThrottle(c, n, time.Hour, nil)
	defer th.Stop()

	c.Record("a", records("1.0.0"))
	th.Flush()
	th.Flush() // empty delta emits nothing
}

func TestThrottleNilNotifierDrains(t *testing.T) {
	c := versions.NewCache()
	th := versions.NewThrottle(c, nil, time.Hour, nil)
	defer th.Stop()

	c.Record("a", records("1.0.0"))
	th.Flush()
	assert.Empty(t, c.Drain())
}

func TestThrottleStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)
	n.EXPECT().Broadcast(gomock.Any()).Times(0)

	c := versions.NewCache()
	th := versions.NewThrottle(c, n, 10*time.Millisecond, nil)
	th.Stop()

	c.Record("a", records("1.0.0"))
	time.Sleep(50 * time.Millisecond)
}
