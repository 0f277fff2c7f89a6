// Package cache implements the process-wide query cache: fingerprint →
// result payload with a fixed freshness window. All dashboard users share
// one cache; the underlying analytical tables are the same for everyone.
package cache

import (
	"container/list"
	"sync"
	"time"

	"voc-dashboard/internal/domain"
	"voc-dashboard/internal/observability"
)

type entry struct {
	fingerprint string
	payload     *domain.ResultPayload
	storedAt    time.Time
}

// QueryCache is a TTL cache keyed by query fingerprint. An entry older than
// the TTL is treated as absent. Callers cannot tell "never cached" from
// "expired", and don't need to: the remedy is the same re-fetch either way.
// Writes are insert-or-overwrite, last writer wins.
type QueryCache struct {
	ttl        time.Duration
	maxEntries int // 0 = unbounded
	metrics    *observability.Metrics
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = most recently stored
}

// New creates a QueryCache with the given freshness window. maxEntries caps
// memory by evicting the oldest entries; it is a bound, not a correctness
// mechanism.
func New(ttl time.Duration, maxEntries int, metrics *observability.Metrics) *QueryCache {
	return &QueryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached payload for the fingerprint if it is still fresh.
// The freshness check and payload read both happen under the lock so an
// overwriting Put can never expose a torn payload/storedAt pair.
func (c *QueryCache) Get(fingerprint string) (*domain.ResultPayload, bool) {
	c.mu.RLock()
	var payload *domain.ResultPayload
	if elem, ok := c.entries[fingerprint]; ok {
		e := elem.Value.(*entry)
		if c.now().Sub(e.storedAt) < c.ttl {
			payload = e.payload
		}
	}
	c.mu.RUnlock()

	if payload == nil {
		c.metrics.CacheMisses.Inc()
		return nil, false
	}
	c.metrics.CacheHits.Inc()
	return payload, true
}

// Put stores the payload under the fingerprint, overwriting any previous
// entry and restarting its TTL.
func (c *QueryCache) Put(fingerprint string, payload *domain.ResultPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		e := elem.Value.(*entry)
		e.payload = payload
		e.storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry{
		fingerprint: fingerprint,
		payload:     payload,
		storedAt:    c.now(),
	})
	c.entries[fingerprint] = elem

	if c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*entry).fingerprint)
		}
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
