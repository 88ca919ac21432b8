package cache

import (
	"github.com/dgraph-io/ristretto"
)

// Balances is a read cache for transferable balances backed by
// dgraph-io/ristretto. It only serves reads; writers must invalidate the
// identities they touch, which keeps the cache exact under the single-writer
// model the lockup core assumes.
type Balances struct {
	c *ristretto.Cache
}

// Option configures the underlying ristretto cache.
type Option func(*ristretto.Config)

// WithConfig applies a custom ristretto configuration.
//
// If cfg is nil, defaults are used.
func WithConfig(cfg *ristretto.Config) Option {
	return func(c *ristretto.Config) {
		if cfg == nil {
			return
		}
		*c = *cfg
	}
}

// NewBalances returns a balance cache with defaults sized for a modest
// working set of identities.
func NewBalances(opts ...Option) *Balances {
	cfg := &ristretto.Config{
		NumCounters: 1e4,     // number of identities to track frequency of (10k).
		MaxCost:     1 << 16, // one unit of cost per cached balance.
		BufferItems: 64,      // number of keys per Get buffer.
	}
	for _, opt := range opts {
		opt(cfg)
	}
	rc, err := ristretto.NewCache(cfg)
	if err != nil {
		panic(err)
	}
	return &Balances{c: rc}
}

// Get returns the cached balance for an identity.
// The boolean return indicates whether the identity was cached.
func (b *Balances) Get(id string) (uint64, bool) {
	v, ok := b.c.Get(id)
	if !ok {
		return 0, false
	}
	amount, ok := v.(uint64)
	return amount, ok
}

// Set caches the balance for an identity.
func (b *Balances) Set(id string, amount uint64) {
	b.c.Set(id, amount, 1)
	b.c.Wait()
}

// Invalidate drops the cached balance for an identity.
func (b *Balances) Invalidate(id string) {
	b.c.Del(id)
	b.c.Wait()
}

// Close releases the cache resources.
func (b *Balances) Close() {
	b.c.Close()
}
