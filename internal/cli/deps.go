package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stacksync/pkg/snapshot"
)

// Dependency states shown in the status column.
const (
	statusOK        = "ok"
	statusOutdated  = "outdated"
	statusMissing   = "missing"
	statusInvalid   = "invalid"
	statusWorkspace = "workspace"
)

// depsCommand creates the deps command.
func (c *CLI) depsCommand() *cobra.Command {
	var (
		asJSON   bool
		outdated bool
	)

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Show declared dependencies with installed and latest versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			spin := newSpinnerWithContext(ctx, "Resolving dependencies...")
			spin.Start()
			snap, err := p.orch.Snapshot(ctx)
			if err != nil {
				spin.StopWithError("Could not read dependencies")
				return err
			}
			spin.Stop()

			if outdated {
				snap = filterOutdated(snap)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			if len(snap) == 0 {
				printInfo("No dependencies")
				return nil
			}

			fmt.Println(dependencyTable(snap))
			printSummary(summarize(snap)...)
			for _, name := range snap.Names() {
				if dep := snap[name]; dep.Invalid {
					printWarning("%s: %q is not a valid semver range", name, dep.Request)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	cmd.Flags().BoolVar(&outdated, "outdated", false, "only show outdated dependencies")

	return cmd
}

func filterOutdated(snap snapshot.Snapshot) snapshot.Snapshot {
	out := make(snapshot.Snapshot)
	for name, dep := range snap {
		if dep.Outdated() {
			out[name] = dep
		}
	}
	return out
}

// dependencyStatus classifies dep for display. Invalid wins over missing.
func dependencyStatus(dep snapshot.Dependency) string {
	switch {
	case dep.Workspace:
		return statusWorkspace
	case dep.Invalid:
		return statusInvalid
	case dep.Resolved == "":
		return statusMissing
	case dep.Outdated():
		return statusOutdated
	}
	return statusOK
}

// dependencyRows returns one row per dependency, sorted by name.
func dependencyRows(snap snapshot.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap))
	for _, name := range snap.Names() {
		dep := snap[name]
		rows = append(rows, []string{
			name,
			dep.Request,
			orDash(dep.Resolved),
			orDash(dep.Latest),
			dependencyStatus(dep),
		})
	}
	return rows
}

func dependencyTable(snap snapshot.Snapshot) string {
	rows := dependencyRows(snap)
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	cell := lipgloss.NewStyle().PaddingRight(1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Package", "Requested", "Installed", "Latest", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row < 0 || row >= len(rows) {
				return cell
			}
			switch rows[row][4] {
			case statusOutdated:
				if col >= 3 {
					return cell.Inherit(styleOutdated)
				}
			case statusInvalid:
				return cell.Inherit(styleInvalid)
			case statusMissing:
				return cell.Foreground(colorDim)
			case statusWorkspace:
				if col == 0 || col == 4 {
					return cell.Inherit(styleWorkspace)
				}
			}
			return cell
		}).
		Render()
}

func summarize(snap snapshot.Snapshot) []count {
	n := map[string]int{}
	for _, dep := range snap {
		n[dependencyStatus(dep)]++
	}
	return []count{
		{len(snap), "dependencies"},
		{n[statusOutdated], statusOutdated},
		{n[statusMissing], statusMissing},
		{n[statusInvalid], statusInvalid},
		{n[statusWorkspace], statusWorkspace},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
