package cli

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/stacksync/pkg/registry"
	"github.com/matzehuels/stacksync/pkg/versions"
)

var pickerVersions = versions.Versions{
	{Version: "3.0.0", PeerDependencies: map[string]string{"react": "^18", "react-dom": "^18"},
		PeerDependenciesMeta: map[string]registry.PeerMeta{"react-dom": {Optional: true}}},
	{Version: "2.1.0"},
	{Version: "2.0.0", Deprecated: "use 2.1.0"},
	{Version: "1.0.0"},
}

func press(t *testing.T, m VersionPicker, keys ...tea.KeyMsg) (VersionPicker, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(VersionPicker)
	}
	return m, cmd
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyJ     = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}}
	keyQ     = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func TestVersionPickerStartsOnInstalled(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "2.0.0")
	assert.Equal(t, 2, m.Cursor)

	m = NewVersionPicker("ui-kit", pickerVersions, "9.9.9")
	assert.Equal(t, 0, m.Cursor)
}

func TestVersionPickerNavigateAndSelect(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "")

	m, _ = press(t, m, keyUp)
	assert.Equal(t, 0, m.Cursor, "cursor stays at the top")

	m, _ = press(t, m, keyDown, keyJ, keyDown, keyDown)
	assert.Equal(t, 3, m.Cursor, "cursor stops at the bottom")

	m, cmd := press(t, m, keyUp, keyEnter)
	require.NotNil(t, cmd)
	assert.Equal(t, "2.0.0", m.Selected)
}

func TestVersionPickerQuit(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "")
	m, cmd := press(t, m, keyDown, keyQ)
	require.NotNil(t, cmd)
	assert.Empty(t, m.Selected)
}

func TestVersionPickerScrolls(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "")
	m.Height = 2

	m, _ = press(t, m, keyDown, keyDown)
	assert.Equal(t, 2, m.Cursor)
	assert.Equal(t, 1, m.Offset)

	m, _ = press(t, m, keyUp, keyUp)
	assert.Equal(t, 0, m.Offset)
}

func TestVersionPickerWindowSize(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 8})
	assert.Equal(t, 5, next.(VersionPicker).Height)

	next, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	assert.Equal(t, 34, next.(VersionPicker).Height)
}

func TestVersionPickerView(t *testing.T) {
	m := NewVersionPicker("ui-kit", pickerVersions, "2.1.0")
	view := m.View()
	for _, s := range []string{"ui-kit", "3.0.0", "latest", "installed", "deprecated", "react@^18", "[2/4]"} {
		assert.Contains(t, view, s)
	}
}

func TestVersionPickerEmpty(t *testing.T) {
	m := NewVersionPicker("ui-kit", nil, "")
	m, cmd := press(t, m, keyEnter)
	require.NotNil(t, cmd)
	assert.Empty(t, m.Selected)
	assert.NotPanics(t, func() { _ = m.View() })
}

func TestPeerList(t *testing.T) {
	assert.Equal(t, "react@^18 react-dom@^18?", peerList(pickerVersions[0]))
	assert.Equal(t, "-", peerList(pickerVersions[1]))
}
