package process

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Err   any    `json:"err"`
}

func jsonLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel, Formatter: log.JSONFormatter}), &buf
}

func entries(t *testing.T, buf *bytes.Buffer) []entry {
	t.Helper()
	var out []entry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e entry
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		out = append(out, e)
	}
	return out
}

func TestLineBufferJoinsFragments(t *testing.T) {
	var lines []string
	b := NewLineBuffer(func(l string) { lines = append(lines, l) })

	_, _ = b.Write([]byte(`{"foo`))
	assert.Empty(t, lines, "partial line is held back")
	_, _ = b.Write([]byte("bar\":1}\n"))
	assert.Equal(t, []string{`{"foobar":1}`}, lines)
}

func TestLineBuffer(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   []string
	}{
		{"several lines in one write", []string{"a\nb\nc\n"}, []string{"a", "b", "c"}},
		{"crlf", []string{"a\r\nb\r", "\n"}, []string{"a", "b"}},
		{"remainder flushed on close", []string{"a\nb"}, []string{"a", "b"}},
		{"empty lines kept", []string{"\n\n"}, []string{"", ""}},
		{"byte at a time", []string{"h", "i", "\n", "!"}, []string{"hi", "!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			b := NewLineBuffer(func(l string) { got = append(got, l) })
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			require.NoError(t, b.Close())
			require.NoError(t, b.Close())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONModeLevels(t *testing.T) {
	logger, buf := jsonLogger()
	h := stdoutHandler(ModeJSON, logger)

	h(`{"type":"info","data":"resolving"}`)
	h(`{"type":"warning","data":"peer missing"}`)
	h(`{"type":"error","data":"boom"}`)
	h(`{"type":"bogus","data":"x"}`)
	h(`{"type":"info","data":{"step":2}}`)
	h(`{"type":`)
	h(`➤ YN0000: Done`)
	h(``)

	got := entries(t, buf)
	require.Len(t, got, 7)

	want := []struct{ level, msg string }{
		{"info", "resolving"},
		{"debug", "peer missing"},
		{"warn", "boom"},
		{"info", "x"},
		{"info", `{"step":2}`},
		{"warn", `{"type":`},
		{"info", "➤ YN0000: Done"},
	}
	for i, w := range want {
		assert.Equal(t, w.level, got[i].Level, "entry %d", i)
		assert.Equal(t, w.msg, got[i].Msg, "entry %d", i)
	}
	assert.NotNil(t, got[5].Err, "parse error attached")
}

func TestPlainModeAndStderr(t *testing.T) {
	logger, buf := jsonLogger()
	stdoutHandler(ModePlain, logger)(`{"type":"error","data":"boom"}`)
	stderrHandler(logger)("npm WARN deprecated")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "info", got[0].Level)
	assert.Equal(t, `{"type":"error","data":"boom"}`, got[0].Msg)
	assert.Equal(t, "warn", got[1].Level)
}

func TestDetect(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, NPM, Detect(root, "", ""))

	require.NoError(t, os.WriteFile(filepath.Join(root, "yarn.lock"), nil, 0o644))
	assert.Equal(t, Yarn, Detect(root, "", ""))
	assert.Equal(t, PNPM, Detect(root, "", "pnpm@9.1.0"))
	assert.Equal(t, Bun, Detect(root, "BUN", "pnpm@9.1.0"))
	assert.Equal(t, Yarn, Detect(root, "cargo", "deno@1"))

	_, ok := ParseManager("cargo")
	assert.False(t, ok)
}

func writeTool(t *testing.T, root, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	bin := filepath.Join(root, "node_modules", ".bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"+script), 0o755))
}

func TestRunYarnBerry(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "yarn", `
if [ "$1" = "--version" ]; then echo 3.6.4; exit 0; fi
echo "$@" > args.txt
echo "$YARN_NPM_REGISTRY_SERVER" > env.txt
printf '{"type":"info","data":"resolving"}\n'
printf '{"type":"error","data":"bo'
printf 'om"}\n'
echo "plain progress"
echo "stderr line" >&2
printf 'tail'
exit 3
`)
	logger, buf := jsonLogger()
	r := New(context.Background(), Options{Root: root, Manager: Yarn, Endpoint: "http://registry.test", Logger: logger})
	require.Equal(t, ModeJSON, r.Mode())
	assert.Equal(t, "3.6.4", r.Version())

	code := r.Run(context.Background(), nil)
	assert.Equal(t, 3, code)

	args, err := os.ReadFile(filepath.Join(root, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "--json", strings.TrimSpace(string(args)))
	env, err := os.ReadFile(filepath.Join(root, "env.txt"))
	require.NoError(t, err)
	assert.Equal(t, "http://registry.test", strings.TrimSpace(string(env)))

	want := map[string]string{
		"resolving":      "info",
		"boom":           "warn",
		"plain progress": "info",
		"stderr line":    "warn",
		"tail":           "info",
	}
	byMsg := map[string]string{}
	for _, e := range entries(t, buf) {
		if _, ok := want[e.Msg]; ok {
			byMsg[e.Msg] = e.Level
		}
	}
	assert.Equal(t, want, byMsg)
}

func TestRunNPM(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "npm", `
if [ "$1" = "--version" ]; then echo 10.2.4; exit 0; fi
echo "$@" > args.txt
`)
	r := New(context.Background(), Options{Root: root, Manager: NPM, Endpoint: "http://registry.test"})
	assert.Equal(t, ModePlain, r.Mode())

	assert.Equal(t, 0, r.Run(context.Background(), nil))
	args, err := os.ReadFile(filepath.Join(root, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, "install --registry=http://registry.test", strings.TrimSpace(string(args)))
}

func TestRunYarnClassicIsPlain(t *testing.T) {
	root := t.TempDir()
	writeTool(t, root, "yarn", `
if [ "$1" = "--version" ]; then echo 1.22.19; exit 0; fi
echo "$@" > args.txt
`)
	r := New(context.Background(), Options{Root: root, Manager: Yarn, Endpoint: "http://registry.test"})
	assert.Equal(t, ModePlain, r.Mode())
	assert.Equal(t, []string{"--registry=http://registry.test"}, r.Args(nil))
	assert.Equal(t, []string{"add", "x", "--registry=http://registry.test"}, r.Args([]string{"add", "x"}))
}

func TestRunStartFailure(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	r := New(context.Background(), Options{Root: t.TempDir(), Manager: PNPM})
	assert.Equal(t, -1, r.Run(context.Background(), nil))
}
