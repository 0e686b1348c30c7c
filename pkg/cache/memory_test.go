package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Minute))

	var got string
	require.NoError(t, mc.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)

	require.NoError(t, mc.Delete(ctx, "k"))
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	var got string
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCacheEvictsLRUAtCapacity(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(2 * time.Millisecond)

	// Touch "a" so "b" is the eviction candidate.
	var got string
	require.NoError(t, mc.Get(ctx, "a", &got))

	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))
	assert.Equal(t, 2, mc.Len())

	assert.ErrorIs(t, mc.Get(ctx, "b", &got), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &got))
	require.NoError(t, mc.Get(ctx, "c", &got))
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	require.NoError(t, mc.Set(ctx, "a", "1b", time.Minute))

	var got string
	require.NoError(t, mc.Get(ctx, "a", &got))
	assert.Equal(t, "1b", got)
	require.NoError(t, mc.Get(ctx, "b", &got))
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheSweepRemovesExpired(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(10 * time.Millisecond))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", time.Millisecond))
	assert.Eventually(t, func() bool {
		return mc.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGenerateKeyWithParams(t *testing.T) {
	assert.Equal(t, "forecast:AAPL:1d:trimmed:600", GenerateKeyWithParams("forecast", "AAPL", "1d", "trimmed", 600))
	assert.Equal(t, "history:MSFT", GenerateKey("history", "MSFT"))
}
