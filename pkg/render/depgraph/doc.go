// Package depgraph draws a project's dependency snapshot as a Graphviz
// node-link diagram.
//
// The project is the root node with one edge per declared dependency. Node
// styling shows state: workspace links are dashed, invalid ranges red,
// outdated packages amber and missing installs grey. Peer dependencies of
// the installed versions can be added as dotted edges.
package depgraph
