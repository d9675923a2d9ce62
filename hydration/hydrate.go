package hydration

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jonwraymond/querycache/cache"
	"github.com/jonwraymond/querycache/observe"
)

// KeyParser turns a snapshot hash back into a key. The default is
// cache.ParseHash, the inverse of the default key hashing.
type KeyParser func(hash string) (any, error)

// Option configures Hydrate.
type Option func(*hydrateOptions)

type hydrateOptions struct {
	parser KeyParser
	logger observe.Logger
}

// WithKeyParser replaces the default key parser.
func WithKeyParser(p KeyParser) Option {
	return func(o *hydrateOptions) {
		if p != nil {
			o.parser = p
		}
	}
}

// WithLogger sets the logger that reports skipped entries.
func WithLogger(l observe.Logger) Option {
	return func(o *hydrateOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func parseHash(hash string) (any, error) { return cache.ParseHash(hash) }

// Hydrate creates an entry in c for every entry of snap, in hash order.
//
// Creation is idempotent: an entry that already exists keeps its state,
// so hydrating the same snapshot twice equals hydrating it once. New
// entries carry the snapshot data but their stale and GC timers are not
// armed until Pending.Initialize is called.
//
// An entry whose hash cannot be parsed, or whose key or options are
// rejected by the cache, is skipped and reported through Pending.Err.
// The remaining entries are still hydrated.
func Hydrate(c *cache.Cache, snap Snapshot, opts ...Option) (*Pending, error) {
	if c == nil {
		return nil, ErrNilCache
	}

	o := hydrateOptions{parser: parseHash, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	hashes := make([]string, 0, len(snap))
	for h := range snap {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	p := &Pending{cache: c}
	for _, hash := range hashes {
		de := snap[hash]
		e, err := hydrateEntry(c, o.parser, hash, de)
		if err != nil {
			perr := &ParseError{Hash: hash, Err: err}
			p.errs = append(p.errs, perr)
			o.logger.WithQuery(observe.QueryMeta{Hash: hash}).Warn(context.Background(), "skipping dehydrated entry",
				observe.Field{Key: "error", Value: err.Error()})
			continue
		}
		p.hashes = append(p.hashes, e.Hash())
	}
	return p, nil
}

func hydrateEntry(c *cache.Cache, parse KeyParser, hash string, de DehydratedEntry) (*cache.Entry, error) {
	key, err := parse(hash)
	if err != nil {
		return nil, err
	}
	e, _, err := c.CreateDeferredEntry(key, de.updatedAt(), de.options()...)
	return e, err
}

// Pending holds the hashes hydrated into a cache that still await
// initialization. It keeps hashes rather than entries, so entries that are
// collected or removed in the meantime are simply skipped.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Initialize may be called any number of times.
type Pending struct {
	cache *cache.Cache

	mu     sync.Mutex
	hashes []string
	errs   []error
}

// Hashes returns the hashes still awaiting initialization.
func (p *Pending) Hashes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.hashes...)
}

// Errors returns the entries skipped during hydration, each a *ParseError.
func (p *Pending) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}

// Err joins Errors into one error, or returns nil.
func (p *Pending) Err() error {
	return errors.Join(p.Errors()...)
}

// Initialize arms the timers of the hydrated entries and releases the
// pending hashes. It returns how many entries were initialized; entries
// that already existed before hydration or are gone are skipped.
func (p *Pending) Initialize() int {
	p.mu.Lock()
	hashes := p.hashes
	p.hashes = nil
	p.mu.Unlock()

	n := 0
	for _, h := range hashes {
		if p.cache.InitializeEntry(h) {
			n++
		}
	}
	return n
}
