package cli

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stacksync/pkg/versions"
)

var listDimStyle = lipgloss.NewStyle().Foreground(colorDim)

// =============================================================================
// VersionPicker - Interactive version selection
// =============================================================================

// VersionPicker is the bubbletea model for picking one registry version of
// a package. Selected stays empty when the user quits without choosing.
type VersionPicker struct {
	Name     string
	Versions versions.Versions
	Current  string
	Cursor   int
	Selected string
	Height   int
	Offset   int
}

// NewVersionPicker creates a picker over vs (latest first) with the cursor
// on the installed version, if it is listed.
func NewVersionPicker(name string, vs versions.Versions, current string) VersionPicker {
	m := VersionPicker{
		Name:     name,
		Versions: vs,
		Current:  current,
		Height:   15,
	}
	for i, r := range vs {
		if r.Version == current {
			m.Cursor = i
			break
		}
	}
	if m.Cursor >= m.Height {
		m.Offset = m.Cursor - m.Height + 1
	}
	return m
}

func (m VersionPicker) Init() tea.Cmd {
	return nil
}

func (m VersionPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Versions)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Versions) == 0 {
				return m, tea.Quit
			}
			m.Selected = m.Versions[m.Cursor].Version
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m VersionPicker) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select version of " + m.Name))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Versions))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Versions[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, r.Version, peerList(r), m.note(i)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Version", "Peers", "").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(m.Versions) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if m.Versions[idx].Deprecated != "" {
				base = base.Foreground(colorDim)
			} else if col == 2 {
				base = base.Foreground(colorGray)
			}
			if idx == m.Cursor {
				return base.Foreground(colorGreen).Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Versions))))

	return b.String()
}

// note labels the release at index i.
func (m VersionPicker) note(i int) string {
	r := m.Versions[i]
	var tags []string
	if i == 0 {
		tags = append(tags, "latest")
	}
	if r.Version == m.Current {
		tags = append(tags, "installed")
	}
	if r.Deprecated != "" {
		tags = append(tags, "deprecated")
	}
	return strings.Join(tags, ", ")
}

// peerList formats the peer dependencies of r as "name@range", sorted, with
// optional peers marked by a trailing "?".
func peerList(r versions.Release) string {
	if len(r.PeerDependencies) == 0 {
		return "-"
	}
	names := make([]string, 0, len(r.PeerDependencies))
	for n := range r.PeerDependencies {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "@" + r.PeerDependencies[n]
		if r.PeerDependenciesMeta[n].Optional {
			parts[i] += "?"
		}
	}
	return strings.Join(parts, " ")
}
