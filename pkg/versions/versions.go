// Package versions holds the per-package release metadata fetched from the
// registry.
//
// A [Cache] keeps two stores that are always written together: the full
// store answers lookups, the delta store accumulates what changed since the
// last broadcast. A [Throttle] coalesces writes into at most one broadcast
// per window and drains the delta as it emits.
package versions

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/stacksync/pkg/registry"
)

// Release is the lightweight metadata kept for one published version.
type Release struct {
	Version              string                       `json:"version"`
	PeerDependencies     map[string]string            `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]registry.PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Deprecated           string                       `json:"deprecated,omitempty"`
}

// Versions is a release list ordered newest first.
type Versions []Release

// Latest returns the highest version, or "" for an empty list.
func (vs Versions) Latest() string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0].Version
}

// Get returns the release for an exact version string.
func (vs Versions) Get(version string) (Release, bool) {
	for _, r := range vs {
		if r.Version == version {
			return r, true
		}
	}
	return Release{}, false
}

// Keys returns the version strings in order.
func (vs Versions) Keys() []string {
	out := make([]string, len(vs))
	for i, r := range vs {
		out[i] = r.Version
	}
	return out
}

// FromRecords converts registry version records into Versions sorted by
// descending semantic version. Records with unparsable versions are dropped.
func FromRecords(records []registry.Manifest) Versions {
	type parsed struct {
		v *semver.Version
		r Release
	}
	items := make([]parsed, 0, len(records))
	for _, m := range records {
		v, err := semver.StrictNewVersion(m.Version)
		if err != nil {
			continue
		}
		items = append(items, parsed{v: v, r: Release{
			Version:              m.Version,
			PeerDependencies:     m.PeerDependencies,
			PeerDependenciesMeta: m.PeerDependenciesMeta,
			Deprecated:           string(m.Deprecated),
		}})
	}

	sort.Slice(items, func(i, j int) bool {
		if c := items[i].v.Compare(items[j].v); c != 0 {
			return c > 0
		}
		// build metadata compares equal
		return items[i].r.Version > items[j].r.Version
	})

	out := make(Versions, len(items))
	for i, it := range items {
		out[i] = it.r
	}
	return out
}
