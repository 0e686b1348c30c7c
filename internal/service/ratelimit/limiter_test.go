package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBurstThenDenies(t *testing.T) {
	l := New()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("ip:forecast", 3, 0.001), "request %d within burst", i)
	}
	assert.False(t, l.Allow("ip:forecast", 3, 0.001))
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("k", 1, 50)) // 50 tokens/s refill
	assert.False(t, l.Allow("k", 1, 50))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, l.Allow("k", 1, 50))
}

func TestKeysAreIndependent(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("a", 1, 0.001))
	assert.False(t, l.Allow("a", 1, 0.001))
	assert.True(t, l.Allow("b", 1, 0.001))
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l := New()
	l.pruneAbove = 10

	// Fill with buckets that are immediately full again (nothing consumed
	// beyond the first token, high refill rate).
	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("old-%d", i), 2, 1000)
	}
	time.Sleep(5 * time.Millisecond)

	// Next new key triggers the prune before insertion.
	l.Allow("fresh", 2, 1000)

	l.mu.Lock()
	size := len(l.m)
	l.mu.Unlock()
	assert.LessOrEqual(t, size, 1)
}

func TestPruneKeepsActiveBuckets(t *testing.T) {
	l := New()
	l.pruneAbove = 2

	// Exhausted bucket with no refill: never full again, survives pruning.
	assert.True(t, l.Allow("hot", 1, 0.0001))
	assert.False(t, l.Allow("hot", 1, 0.0001))
	l.Allow("other", 1, 0.0001)

	l.Allow("fresh", 1, 1000)

	l.mu.Lock()
	_, hotKept := l.m["hot"]
	l.mu.Unlock()
	assert.True(t, hotKept)
	assert.False(t, l.Allow("hot", 1, 0.0001), "hot bucket still exhausted after prune")
}
