// Package registry implements a client for the npm registry protocol.
//
// # Overview
//
// The registry exposes one document per package (a "packument") at
// GET <endpoint>/<name>, enumerating every published version. stacksync only
// consumes the fields needed to reason about plugins: the version string,
// peer dependency declarations, deprecation notices and the os/cpu
// restrictions used by the platform compatibility predicate.
//
// # Client Pattern
//
//	c := registry.NewClient("https://registry.npmjs.org", registry.WithTimeout(5*time.Second))
//	doc, err := c.Packument(ctx, "left-pad")
//
// Requests carry the abbreviated-metadata Accept header. When a [cache.Cache]
// is configured the client stores each body with its ETag and revalidates it
// with If-None-Match; a 304 reuses the stored body. There is no automatic
// retry: a timeout or transport error is returned to the caller as is.
//
// # Compatibility
//
// [Platform] builds a [Compat] predicate that drops versions whose os or cpu
// lists exclude the current platform, using npm's names (win32, x64, ...).
//
// [cache.Cache]: github.com/matzehuels/stacksync/pkg/cache.Cache
package registry
