package cache

import (
	"context"
	"time"
)

// LayeredCache stacks an in-process L1 in front of Redis. Writes land in
// Redis first so replicas sharing the server converge; L1 only ever holds
// what Redis confirmed. Reads promote Redis hits into L1 for a bounded
// time, because L1 cannot see the key's remaining TTL.
type LayeredCache struct {
	l1         *MemoryCache
	l2         *RedisCache
	promoteTTL time.Duration
}

func NewLayeredCache(redis *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		PromoteTTL:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		l1:         NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		l2:         redis,
		promoteTTL: cfg.PromoteTTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.l2.Get(ctx, key, dest); err != nil {
		return err
	}

	// Promote the concrete value, not the pointer we decoded into.
	switch d := dest.(type) {
	case *string:
		_ = lc.l1.Set(ctx, key, *d, lc.promoteTTL)
	case *[]byte:
		_ = lc.l1.Set(ctx, key, *d, lc.promoteTTL)
	}
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

// Close shuts both layers down.
func (lc *LayeredCache) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
