package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a token-bucket limiter keyed by caller identity, here client
// IP plus endpoint. Once the map grows past pruneAbove, buckets idle long
// enough to be full again are dropped, so scanners cannot grow it without
// bound.
type Limiter struct {
	mu         sync.Mutex
	m          map[string]*bucket
	pruneAbove int
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), pruneAbove: 10000}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.pruneAbove {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// pruneLocked drops buckets that have refilled to capacity. Forgetting one
// is indistinguishable from a fresh bucket on its next request.
func (l *Limiter) pruneLocked(now time.Time) {
	for k, b := range l.m {
		idle := now.Sub(b.last).Seconds()
		if b.tokens+idle*b.refillRate >= b.capacity {
			delete(l.m, k)
		}
	}
}
