package versions

import (
	"sync"

	"github.com/matzehuels/stacksync/pkg/registry"
)

// Cache stores Versions per package name in a full and a delta store.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	full     map[string]Versions
	delta    map[string]Versions
	throttle *Throttle
}

// NewCache returns an empty cache. Writes are not broadcast until a throttle
// is attached with [Cache.Attach].
func NewCache() *Cache {
	return &Cache{
		full:  make(map[string]Versions),
		delta: make(map[string]Versions),
	}
}

// Attach sets the throttle scheduled on every write.
func (c *Cache) Attach(t *Throttle) {
	c.mu.Lock()
	c.throttle = t
	c.mu.Unlock()
}

// Record converts records, stores the result under name in both stores and
// schedules a broadcast.
func (c *Cache) Record(name string, records []registry.Manifest) Versions {
	vs := FromRecords(records)

	c.mu.Lock()
	c.full[name] = vs
	c.delta[name] = vs
	t := c.throttle
	c.mu.Unlock()

	if t != nil {
		t.Schedule()
	}
	return vs
}

// Lookup returns the full entry for name. ok is false if name was never
// recorded since the last reset.
func (c *Cache) Lookup(name string) (Versions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vs, ok := c.full[name]
	return vs, ok
}

// Drain returns the delta store and replaces it with an empty one.
func (c *Cache) Drain() map[string]Versions {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.delta
	c.delta = make(map[string]Versions)
	return d
}

// Reset clears both stores.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.full = make(map[string]Versions)
	c.delta = make(map[string]Versions)
	c.mu.Unlock()
}

// Len returns the number of packages in the full store.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.full)
}
