package cache

import (
	"sync"
	"time"
)

type entry struct {
	val      any
	deadline int64 // unix nanos; 0 never expires
}

func (e entry) expired(now int64) bool {
	return e.deadline != 0 && now > e.deadline
}

// TTLCache is the in-process BytesCache used when Redis is disabled.
// Expired entries drop lazily on read; inserts past maxEntries evict
// expired entries first and then arbitrary ones. History keys vary by
// limit and interval, so the keyspace is not bounded by symbols alone.
type TTLCache struct {
	mu         sync.RWMutex
	m          map[string]entry
	maxEntries int
}

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]entry), maxEntries: 4096}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	switch {
	case !ok:
		return nil, false
	case e.expired(time.Now().UnixNano()):
		c.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have refreshed it.
		if cur, ok := c.m[key]; ok && cur.deadline == e.deadline {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.val, true
}

func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	var deadline int64
	if ttl > 0 {
		deadline = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && len(c.m) >= c.maxEntries {
		c.evictLocked()
	}
	c.m[key] = entry{val: v, deadline: deadline}
}

// evictLocked reclaims expired entries, then arbitrary ones until a quarter
// of the capacity is free again.
func (c *TTLCache) evictLocked() {
	now := time.Now().UnixNano()
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
		}
	}
	target := c.maxEntries - c.maxEntries/4
	for k := range c.m {
		if len(c.m) < target {
			break
		}
		delete(c.m, k)
	}
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
