// Package process runs the project's package manager and routes its output
// to a logger.
//
// A [Runner] is bound to one executable. At construction it resolves the
// executable (project node_modules/.bin first, then PATH), probes its
// version, and selects an output [Mode] once: Yarn 2 and later get --json and
// have stdout parsed as JSON log records, every other tool is read as plain
// text. Both streams go through a [LineBuffer], which reassembles lines split
// across writes and emits any unterminated remainder when the stream closes.
//
// Run never fails: it returns the process exit code, or -1 when the process
// could not be started.
package process
