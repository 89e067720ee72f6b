package registry

import (
	"runtime"
	"strings"
)

// Compat decides whether a version record can be installed on this machine.
type Compat func(Manifest) bool

// Any accepts every version record.
func Any(Manifest) bool { return true }

var nodeOS = map[string]string{
	"windows": "win32",
}

var nodeArch = map[string]string{
	"amd64": "x64",
	"386":   "ia32",
}

// Platform returns a predicate that checks the os and cpu restrictions of a
// version against goos/goarch, translated to npm's platform names.
func Platform(goos, goarch string) Compat {
	osName := goos
	if n, ok := nodeOS[goos]; ok {
		osName = n
	}
	arch := goarch
	if n, ok := nodeArch[goarch]; ok {
		arch = n
	}
	return func(m Manifest) bool {
		return allowed(m.OS, osName) && allowed(m.CPU, arch)
	}
}

// Current returns the predicate for the running platform.
func Current() Compat {
	return Platform(runtime.GOOS, runtime.GOARCH)
}

// allowed applies npm's list semantics: an empty list allows everything,
// "!x" entries block x, and if any positive entry exists the value must
// be one of them.
func allowed(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	hasPositive := false
	matched := false
	for _, entry := range list {
		if neg, ok := strings.CutPrefix(entry, "!"); ok {
			if neg == value {
				return false
			}
			continue
		}
		hasPositive = true
		if entry == value || entry == "any" {
			matched = true
		}
	}
	return !hasPositive || matched
}
