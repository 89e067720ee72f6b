package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stacksync/pkg/install"
	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/snapshot"
	"github.com/matzehuels/stacksync/pkg/versions"
)

type source struct{}

func (source) Packument(_ context.Context, name string) (*registry.Packument, error) {
	if name == "ghost" {
		return nil, registry.ErrNotFound
	}
	return &registry.Packument{Versions: map[string]registry.Manifest{"1.0.5": {}, "1.1.0": {}}}, nil
}

type runnerFunc func(ctx context.Context, args []string) int

func (f runnerFunc) Run(ctx context.Context, args []string) int { return f(ctx, args) }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, runner install.Runner) (*Server, *httptest.Server) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"package.json":                       `{"dependencies": {"left-pad": "^1.0.0"}}`,
		"node_modules/left-pad/package.json": `{"version": "1.0.5"}`,
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	orch := install.New(install.Options{Root: root, Source: source{}, Runner: runner, Window: 10 * time.Millisecond})
	t.Cleanup(orch.Close)
	s := New(orch, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, TypeHello, hello.Type)
	return conn
}

func TestDependencies(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/dependencies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap snapshot.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, snapshot.Dependency{Request: "1.0.0", Resolved: "1.0.5", Latest: "1.1.0"}, snap["left-pad"])
}

func TestVersions(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/api/versions/left-pad", http.StatusOK},
		{"/api/versions/@scope/pkg", http.StatusOK},
		{"/api/versions/ghost", http.StatusNotFound},
		{"/api/versions/JSONStream", http.StatusOK},
		{"/api/versions/Bad%20Name", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestInstallSkip(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/install", "application/json",
		strings.NewReader(`{"dependencies": {"left-pad": "^1.0.0"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res install.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res.Forced)
	assert.Equal(t, 0, res.Code)
}

func TestInstallFailure(t *testing.T) {
	_, ts := newTestServer(t)

	// no runner configured: a forced install cannot start
	resp, err := http.Post(ts.URL+"/api/install", "application/json", strings.NewReader(`{"force": true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body struct {
		Code   string         `json:"code"`
		Result install.Result `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INSTALL_FAILED", body.Code)
	assert.Equal(t, -1, body.Result.Code)
}

func TestInstallOutlivesRequest(t *testing.T) {
	var runErr error
	s, _ := newTestServerWith(t, runnerFunc(func(ctx context.Context, _ []string) int {
		runErr = ctx.Err()
		return 0
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/install", strings.NewReader(`{"force": true}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, runErr, "client disconnect must not cancel the package manager")
}

func TestInstallBadRequest(t *testing.T) {
	_, ts := newTestServer(t)

	for _, body := range []string{`nope`, `{"dependencies": {"../x": "1"}}`, `{"deps": {}}`} {
		resp, err := http.Post(ts.URL+"/api/install", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestInvalidateAndHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/invalidate", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHubDeltaBroadcast(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)
	require.Eventually(t, func() bool { return s.Hub().Count() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(ts.URL + "/api/versions/left-pad")
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string                       `json:"type"`
		ID   string                       `json:"id"`
		Data map[string]versions.Versions `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeVersions, msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "1.1.0", msg.Data["left-pad"].Latest())
}

func TestHubLoadedAndReload(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	assert.False(t, s.Hub().Loaded("left-pad"))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypeLoaded, "modules": []string{"left-pad"}}))
	require.Eventually(t, func() bool { return s.Hub().Loaded("left-pad") }, time.Second, 5*time.Millisecond)

	s.Hub().Reload(context.Background())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeReload, msg.Type)

	conn.Close()
	require.Eventually(t, func() bool { return s.Hub().Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Hub().Loaded("left-pad"))
}

func TestSameOrigin(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://localhost:7357/ws", nil)
	assert.True(t, sameOrigin(r))
	r.Header.Set("Origin", "http://localhost:7357")
	assert.True(t, sameOrigin(r))
	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, sameOrigin(r))
}
