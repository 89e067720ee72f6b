// Package install decides when the package manager has to run and
// reconciles loaded modules afterwards.
//
// [Decide] compares proposed dependency overrides against what is installed:
// a workspace link always satisfies, an installed version inside the new
// range satisfies, anything else forces an install.
//
// An [Orchestrator] owns all dependency state of one project (the version
// cache, the fetch-task table and the memoized snapshot) and serializes
// installs. Every install attempt invalidates that state, and after a
// successful run it asks the [Loader] for a single full reload if any
// overridden package that is currently loaded changed version.
package install
