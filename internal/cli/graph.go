package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
	"github.com/matzehuels/stacksync/pkg/install"
	"github.com/matzehuels/stacksync/pkg/manifest"
	"github.com/matzehuels/stacksync/pkg/render/depgraph"
	"github.com/matzehuels/stacksync/pkg/snapshot"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output   string
		format   string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render declared dependencies and their peers as DOT or SVG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format == "" {
				format = formatFor(output)
			}
			if format != formatDOT && format != formatSVG {
				return sserrors.New(sserrors.ErrCodeInvalidInput, "unknown format %q (want dot or svg)", format)
			}

			p, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			prog := newProgress(loggerFromContext(ctx))
			g, err := buildGraph(ctx, p.orch)
			if err != nil {
				return err
			}

			data := []byte(depgraph.ToDOT(g, depgraph.Options{Detailed: detailed}))
			if format == formatSVG {
				if data, err = depgraph.RenderSVG(ctx, string(data)); err != nil {
					return err
				}
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			prog.done("Rendered graph")
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "dot or svg (default: from output extension, else dot)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show requested, installed and latest versions")

	return cmd
}

func formatFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return formatSVG
	}
	return formatDOT
}

// buildGraph collects the snapshot and the peer ranges of each installed
// (or else latest) version.
func buildGraph(ctx context.Context, orch *install.Orchestrator) (depgraph.Graph, error) {
	snap, err := orch.Snapshot(ctx)
	if err != nil {
		return depgraph.Graph{}, err
	}

	g := depgraph.Graph{
		Root:  projectName(orch.Root()),
		Deps:  snap,
		Peers: make(map[string]map[string]string),
	}
	for name, dep := range snap {
		if peers := peersOf(ctx, orch, name, dep); len(peers) > 0 {
			g.Peers[name] = peers
		}
	}
	return g, nil
}

func peersOf(ctx context.Context, orch *install.Orchestrator, name string, dep snapshot.Dependency) map[string]string {
	if dep.Workspace {
		return nil
	}
	version := dep.Resolved
	if version == "" {
		version = dep.Latest
	}
	r, ok := orch.Versions(ctx, name).Get(version)
	if !ok || len(r.PeerDependencies) == 0 {
		return nil
	}
	peers := make(map[string]string, len(r.PeerDependencies))
	for peer, rng := range r.PeerDependencies {
		if r.PeerDependenciesMeta[peer].Optional {
			rng += "?"
		}
		peers[peer] = rng
	}
	return peers
}

// projectName is the manifest name, else the directory name.
func projectName(root string) string {
	if m, err := manifest.Load(root); err == nil && m.Name != "" {
		return m.Name
	}
	return filepath.Base(root)
}
