package install

import (
	"fmt"
	"sort"

	"github.com/matzehuels/stacksync/pkg/semverutil"
	"github.com/matzehuels/stacksync/pkg/snapshot"
)

// Decision is the outcome of Decide.
type Decision struct {
	Forced bool   `json:"forced"`
	Reason string `json:"reason"`
	// Name is the first override that forced the install, if any.
	Name string `json:"name,omitempty"`
}

// Decide reports whether applying overrides requires running the package
// manager. local holds the installed state of the overridden names; an
// empty range in overrides means removal. Evaluation stops at the first
// override that forces, in name order.
func Decide(local snapshot.Snapshot, overrides map[string]string, force bool) Decision {
	if force {
		return Decision{Forced: true, Reason: "install requested explicitly"}
	}

	names := make([]string, 0, len(overrides))
	for n := range overrides {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		dep := local[name]
		if dep.Workspace {
			continue
		}
		rng := overrides[name]
		switch {
		case rng == "":
			return Decision{Forced: true, Name: name, Reason: fmt.Sprintf("%s removed", name)}
		case dep.Resolved == "":
			return Decision{Forced: true, Name: name, Reason: fmt.Sprintf("%s is not installed", name)}
		case !semverutil.Satisfies(dep.Resolved, rng):
			return Decision{Forced: true, Name: name, Reason: fmt.Sprintf("%s@%s does not satisfy %s", name, dep.Resolved, rng)}
		}
	}
	return Decision{Reason: "installed versions satisfy every override"}
}
