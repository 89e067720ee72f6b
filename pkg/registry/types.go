package registry

import (
	"encoding/json"
)

// Packument is the registry document for one package.
type Packument struct {
	Name     string              `json:"name"`
	DistTags map[string]string   `json:"dist-tags"`
	Versions map[string]Manifest `json:"versions"`
}

// Manifest is one published version record inside a packument.
type Manifest struct {
	Name                 string              `json:"name"`
	Version              string              `json:"version"`
	Dependencies         map[string]string   `json:"dependencies,omitempty"`
	PeerDependencies     map[string]string   `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]PeerMeta `json:"peerDependenciesMeta,omitempty"`
	Deprecated           Deprecation         `json:"deprecated,omitempty"`
	OS                   []string            `json:"os,omitempty"`
	CPU                  []string            `json:"cpu,omitempty"`
}

// PeerMeta carries per-peer flags from peerDependenciesMeta.
type PeerMeta struct {
	Optional bool `json:"optional,omitempty"`
}

// Deprecation is the deprecation notice of a version. The registry sends a
// message string, but some mirrors send a bare boolean.
type Deprecation string

// UnmarshalJSON accepts either a string or a boolean.
func (d *Deprecation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Deprecation(s)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	if b {
		*d = "deprecated"
	} else {
		*d = ""
	}
	return nil
}

// Records returns the version records of the packument in no particular order.
func (p *Packument) Records() []Manifest {
	out := make([]Manifest, 0, len(p.Versions))
	for v, m := range p.Versions {
		if m.Version == "" {
			m.Version = v
		}
		out = append(out, m)
	}
	return out
}
