package depgraph

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stacksync/pkg/snapshot"
)

// Graph is the input to ToDOT.
type Graph struct {
	// Root labels the project node.
	Root string
	Deps snapshot.Snapshot
	// Peers maps a dependency to the peer ranges of its installed version.
	// Optional peers are marked with a trailing "?" on the range.
	Peers map[string]map[string]string
}

// Options configures rendering.
type Options struct {
	// Detailed adds request, resolved and latest versions to labels.
	Detailed bool
}

// ToDOT converts g to Graphviz DOT.
func ToDOT(g Graph, opts Options) string {
	root := g.Root
	if root == "" {
		root = "project"
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.25;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [label=%q, shape=folder, fillcolor=\"#e8eefc\"];\n", root, root)
	names := g.Deps.Names()
	for _, name := range names {
		dep := g.Deps[name]
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(fmtAttrs(dep, fmtLabel(name, dep, opts.Detailed)), ", "))
	}

	buf.WriteString("\n")
	for _, name := range names {
		fmt.Fprintf(&buf, "  %q -> %q;\n", root, name)
	}

	for _, name := range names {
		peers := g.Peers[name]
		for _, peer := range sortedKeys(peers) {
			rng := peers[peer]
			if _, declared := g.Deps[peer]; !declared {
				fmt.Fprintf(&buf, "  %q [label=%q, style=\"rounded,dashed\", fontcolor=grey40];\n", peer, peer)
			}
			style := "dotted"
			if strings.HasSuffix(rng, "?") {
				style = "dotted, color=grey60"
			}
			fmt.Fprintf(&buf, "  %q -> %q [style=%s, label=%q, fontsize=10];\n", name, peer, style, strings.TrimSuffix(rng, "?"))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(name string, dep snapshot.Dependency, detailed bool) string {
	if !detailed {
		return name
	}
	parts := []string{name, "request: " + dep.Request}
	if dep.Resolved != "" {
		parts = append(parts, "installed: "+dep.Resolved)
	}
	if dep.Latest != "" {
		parts = append(parts, "latest: "+dep.Latest)
	}
	return strings.Join(parts, "\n")
}

func fmtAttrs(dep snapshot.Dependency, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	switch {
	case dep.Workspace:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=\"#eef7ee\"")
	case dep.Invalid:
		attrs = append(attrs, "fillcolor=\"#fbe3e3\"", "color=\"#c62828\"")
	case dep.Resolved == "":
		attrs = append(attrs, "fillcolor=lightgrey")
	case dep.Outdated():
		attrs = append(attrs, "fillcolor=\"#fff4d6\"")
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderSVG renders a DOT graph to SVG using the embedded Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element to a zero-origin viewBox with
// matching pixel size, so the SVG scales cleanly when embedded.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
