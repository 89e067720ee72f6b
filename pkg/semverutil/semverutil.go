// Package semverutil adapts [github.com/Masterminds/semver/v3] to the npm
// range conventions used in package.json files.
//
// The package deliberately adds no parsing of its own: it normalizes the
// few npm spellings Masterminds does not accept (an empty range or "latest"
// style wildcards) and exposes the checks the rest of stacksync needs.
package semverutil

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// normalize maps npm range spellings onto Masterminds constraint syntax.
func normalize(rng string) string {
	rng = strings.TrimSpace(rng)
	switch rng {
	case "", "x", "X":
		return "*"
	}
	return rng
}

// ParseRange parses an npm range into a constraint set that admits
// prerelease versions.
func ParseRange(rng string) (*semver.Constraints, error) {
	c, err := semver.NewConstraint(normalize(rng))
	if err != nil {
		return nil, err
	}
	c.IncludePrerelease = true
	return c, nil
}

// ValidRange reports whether rng is a syntactically valid semver range.
func ValidRange(rng string) bool {
	_, err := ParseRange(rng)
	return err == nil
}

// Satisfies reports whether version falls inside rng, with prereleases
// admitted. Unparsable input never satisfies.
func Satisfies(version, rng string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := ParseRange(rng)
	if err != nil {
		return false
	}
	return c.Check(v)
}

// StripOperator removes a single leading caret or tilde for display.
func StripOperator(rng string) string {
	if strings.HasPrefix(rng, "^") || strings.HasPrefix(rng, "~") {
		return rng[1:]
	}
	return rng
}
