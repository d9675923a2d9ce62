package hydration

import (
	"time"

	"github.com/jonwraymond/querycache/cache"
)

// Infinite is the wire value of StaleTimeInfinite and CacheTimeInfinite.
const Infinite int64 = -1

// DehydratedEntry is the portable form of one successful entry.
//
// Times are milliseconds. StaleTime and CacheTime are present only when
// they differ from the dehydrating cache's defaults; absent fields fall
// back to the receiving cache's defaults.
type DehydratedEntry struct {
	StaleTime   *int64 `json:"staleTime,omitempty" msgpack:"staleTime,omitempty"`
	CacheTime   *int64 `json:"cacheTime,omitempty" msgpack:"cacheTime,omitempty"`
	InitialData any    `json:"initialData" msgpack:"initialData"`

	// UpdatedAt is the Unix time in milliseconds of the last successful
	// fetch. Zero means unknown; the receiving side uses its own clock.
	UpdatedAt int64 `json:"updatedAt,omitempty" msgpack:"updatedAt,omitempty"`
}

// Snapshot maps canonical key hashes to dehydrated entries.
type Snapshot map[string]DehydratedEntry

// Dehydrate captures every entry of c in StatusSuccess. Entries that are
// idle, fetching or failed are left out.
func Dehydrate(c *cache.Cache) (Snapshot, error) {
	if c == nil {
		return nil, ErrNilCache
	}

	defaults := c.Defaults()
	snap := make(Snapshot)
	for _, e := range c.Entries() {
		st := e.State()
		if st.Status != cache.StatusSuccess || st.Removed {
			continue
		}
		cfg := e.Config()

		de := DehydratedEntry{InitialData: st.Data}
		if cfg.StaleTime != defaults.StaleTime {
			de.StaleTime = millis(cfg.StaleTime, cache.StaleTimeInfinite)
		}
		if cfg.CacheTime != defaults.CacheTime {
			de.CacheTime = millis(cfg.CacheTime, cache.CacheTimeInfinite)
		}
		if !st.UpdatedAt.IsZero() {
			de.UpdatedAt = st.UpdatedAt.UnixMilli()
		}
		snap[st.Hash] = de
	}
	return snap, nil
}

func millis(d, infinite time.Duration) *int64 {
	ms := d.Milliseconds()
	if d == infinite {
		ms = Infinite
	}
	return &ms
}

func duration(ms int64, infinite time.Duration) time.Duration {
	if ms == Infinite {
		return infinite
	}
	return time.Duration(ms) * time.Millisecond
}

// options converts de into the query options it was dehydrated from.
func (de DehydratedEntry) options() []cache.QueryOption {
	opts := []cache.QueryOption{cache.WithInitialData(de.InitialData)}
	if de.StaleTime != nil {
		opts = append(opts, cache.WithStaleTime(duration(*de.StaleTime, cache.StaleTimeInfinite)))
	}
	if de.CacheTime != nil {
		opts = append(opts, cache.WithCacheTime(duration(*de.CacheTime, cache.CacheTimeInfinite)))
	}
	return opts
}

func (de DehydratedEntry) updatedAt() time.Time {
	if de.UpdatedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(de.UpdatedAt)
}
