// Package cache provides a data-fetching cache with deduplicated fetches,
// retry with backoff, staleness tracking and observer notifications.
//
// Keys are normalized into canonical JSON hashes (NormalizeKey). Each hash
// owns one Entry whose status moves through idle, fetching, success and
// error. Concurrent fetches of one key share a single operation. Fresh data
// is served from the cache until its stale time elapses, and entries with
// no observers are removed once their cache time elapses.
//
// Basic usage:
//
//	c := cache.New(cache.WithDefaults(cache.WithStaleTime(time.Minute)))
//	todos, err := cache.Fetch(ctx, c, []any{"todos", 1}, loadTodos)
//
// Observers attach with Subscribe and receive every state transition of
// their entry in order.
package cache
