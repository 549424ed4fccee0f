// Package ristretto implements the cache port for the opt-in membership
// decision cache.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
)

// entryCost is the admission cost charged per cached decision. A decision
// is a user/tenant key plus a one-byte verdict, so capacity is accounted
// per entry rather than per value byte; the constant covers the key and
// per-entry bookkeeping.
const entryCost = 128

// Cache holds recent positive membership decisions. Entries expire on the
// configured TTL and are invalidated explicitly on revocation, so the
// cache only ever shortens the window between a grant and its reuse,
// never between a revocation and its effect.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New sizes the decision cache from the membership configuration:
// cfg.CacheSizeMB bounds the total memory, translated into an entry
// budget at entryCost apiece.
func New(cfg config.Membership) (*Cache, error) {
	budget := cfg.CacheSizeMB << 20
	if budget <= 0 {
		budget = 16 << 20
	}
	maxEntries := budget / entryCost

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10, // ~10x expected entries for admission stats
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached decision for key, if present.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a decision at unit cost with the given TTL.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, 1, ttl)
	return nil
}

// Delete drops the decision for key. Called on revocation.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
