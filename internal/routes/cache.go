package routes

import (
	"sync"
	"time"
)

// TTLs are the completeness-based expiry windows for cached routes
type TTLs struct {
	Complete            time.Duration
	InferenceIncomplete time.Duration
	OtherIncomplete     time.Duration
}

// Fresh is the shared TTL predicate: a cached route with a known
// arrival lives longest, an incomplete inference result shortest.
// Expiry is decided lazily at read time; nothing evicts rows.
func (t TTLs) Fresh(source string, complete bool, createdAt, now time.Time) bool {
	ttl := t.OtherIncomplete
	switch {
	case complete:
		ttl = t.Complete
	case source == SourceInference:
		ttl = t.InferenceIncomplete
	}
	return now.Sub(createdAt) <= ttl
}

type cacheItem struct {
	result    Result
	ttlSource string
	createdAt time.Time
}

// ProcessCache is the in-memory route cache, first stop in the
// resolution chain. Entries expire by the same TTL rules as the
// persistent cache but are never evicted, only overwritten.
type ProcessCache struct {
	mu      sync.RWMutex
	ttls    TTLs
	entries map[string]cacheItem
}

// NewProcessCache creates an empty process-local cache
func NewProcessCache(ttls TTLs) *ProcessCache {
	return &ProcessCache{
		ttls:    ttls,
		entries: make(map[string]cacheItem),
	}
}

// Get returns a fresh cached result for the key, or nil on miss
func (c *ProcessCache) Get(key string, now time.Time) *Result {
	c.mu.RLock()
	item, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if !c.ttls.Fresh(item.ttlSource, item.result.Complete(), item.createdAt, now) {
		return nil
	}
	result := item.result
	return &result
}

// Put stores a result under the key, replacing any previous entry.
// The result's own source decides the TTL class and is recorded as
// such; lookups serve the entry with cache provenance.
func (c *ProcessCache) Put(key string, result Result, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := cacheItem{result: result, ttlSource: result.Source, createdAt: createdAt}
	item.result.Source = SourceCache
	c.entries[key] = item
}

// Len returns the number of entries including expired ones
func (c *ProcessCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
