package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func jsonUnmarshal(s string, v any) error { return json.Unmarshal([]byte(s), v) }

func TestPlatform(t *testing.T) {
	linux := Platform("linux", "amd64")
	windows := Platform("windows", "arm64")

	tests := []struct {
		name    string
		m       Manifest
		linux   bool
		windows bool
	}{
		{"unrestricted", Manifest{}, true, true},
		{"os allow list", Manifest{OS: []string{"darwin", "linux"}}, true, false},
		{"os block list", Manifest{OS: []string{"!win32"}}, true, false},
		{"cpu allow list", Manifest{CPU: []string{"x64"}}, true, false},
		{"cpu block", Manifest{CPU: []string{"!arm64"}}, true, false},
		{"both", Manifest{OS: []string{"win32"}, CPU: []string{"arm64"}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.linux, linux(tt.m), "linux/amd64")
			assert.Equal(t, tt.windows, windows(tt.m), "windows/arm64")
		})
	}
}

func TestAny(t *testing.T) {
	assert.True(t, Any(Manifest{OS: []string{"!linux"}}))
}
