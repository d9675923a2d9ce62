package cache

import "sync"

var (
	defaultMu    sync.Mutex
	defaultCache *Cache
)

// Default returns the shared cache, creating it with New on first use.
//
// The shared cache is a convenience for callers without an explicit
// *Cache; code that can pass a cache around should do so.
func Default() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = New()
	}
	return defaultCache
}

// SetDefault replaces the shared cache. The previous cache is returned
// untouched; callers that no longer need it should Clear it.
func SetDefault(c *Cache) (previous *Cache) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	previous, defaultCache = defaultCache, c
	return previous
}

// ResetDefault clears the shared cache and drops it, so the next Default
// call starts from an empty cache.
func ResetDefault() {
	defaultMu.Lock()
	c := defaultCache
	defaultCache = nil
	defaultMu.Unlock()

	if c != nil {
		c.Clear(ClearOptions{})
	}
}
