// Package cache keeps decoded donation histories for a short while so that
// repeated reads of the same account do not each cost an RPC round trip.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/bloodchain/internal/donation"
)

// Sources reported by GetOrFetch.
const (
	SourceCache = "cache"
	SourceRPC   = "rpc"
)

// Value is a decoded donation history and the time it was read from chain.
type Value struct {
	Donations []donation.Donation
	FetchedAt time.Time
}

type slot struct {
	val     Value
	expires time.Time
}

func (s slot) fresh(now time.Time) bool { return now.Before(s.expires) }

// Cache maps account addresses to histories. Concurrent misses for the same
// account share one fetch. A non-positive ttl disables storage but keeps the
// coalescing.
type Cache struct {
	ttl    time.Duration
	flight singleflight.Group

	mu    sync.RWMutex
	slots map[string]slot
	// gens counts invalidations per key. A fetch that started under an older
	// generation must not store its result.
	gens map[string]uint64
}

func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, slots: make(map[string]slot), gens: make(map[string]uint64)}
}

func (c *Cache) generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key]
}

func (c *Cache) lookup(key string) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[key]
	if !ok || !s.fresh(time.Now()) {
		return Value{}, false
	}
	return s.val, true
}

// store saves v under key unless key was invalidated since gen was read, and
// drops every expired slot while holding the lock.
func (c *Cache) store(key string, gen uint64, v Value) {
	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return
	}
	for k, s := range c.slots {
		if !s.fresh(now) {
			delete(c.slots, k)
		}
	}
	c.slots[key] = slot{val: v, expires: now.Add(c.ttl)}
}

// GetOrFetch returns the history stored under key while it is fresh and
// otherwise calls fetch, once per key no matter how many callers are waiting.
// The source is SourceCache or SourceRPC; it is empty when fetch failed.
// Failures are not stored.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (Value, error)) (Value, string, error) {
	if v, ok := c.lookup(key); ok {
		return v, SourceCache, nil
	}
	res, err, _ := c.flight.Do(key, func() (interface{}, error) {
		gen := c.generation(key)
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, v)
		return v, nil
	})
	if err != nil {
		return Value{}, "", err
	}
	return res.(Value), SourceRPC, nil
}

// Invalidate drops key so the next lookup goes to the chain. An in-flight
// fetch for key is forgotten as well, so it cannot be joined by new callers,
// and its result is not stored when it completes.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.slots, key)
	c.gens[key]++
	c.mu.Unlock()
	c.flight.Forget(key)
}

// Len is the number of stored histories, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}
