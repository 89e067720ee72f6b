// Package manifest reads and rewrites a project's package.json and resolves
// the installed copy of each dependency.
//
// Rewrites are whole-file read-modify-write: every top-level field other than
// "dependencies" is written back byte-for-byte equivalent and in its original
// position, the dependencies object is written with sorted keys, and the file
// ends with a newline. The indentation of the original file is kept.
//
// [Installed] finds node_modules/<name>/package.json in the project or any
// parent directory and reports whether the package is a workspace link, i.e.
// its real path lies outside every node_modules directory.
package manifest
