package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Signature string  `json:"signature"`
	Rate      float64 `json:"rate"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "p:1", sample{Signature: "SpringX_1m", Rate: 50}, time.Minute))

	var got sample
	require.NoError(t, mc.Get(ctx, "p:1", &got))
	assert.Equal(t, sample{Signature: "SpringX_1m", Rate: 50}, got)

	var raw string
	require.NoError(t, mc.Set(ctx, "s", "plain", time.Minute))
	require.NoError(t, mc.Get(ctx, "s", &raw))
	assert.Equal(t, "plain", raw)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	var v string
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", time.Minute))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", time.Minute))
	time.Sleep(time.Millisecond)

	var v string
	require.NoError(t, mc.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", time.Minute))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &v))
	assert.NoError(t, mc.Get(ctx, "c", &v))
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for _, k := range []string{"pattern:a", "pattern:b", "top:5"} {
		require.NoError(t, mc.Set(ctx, k, "x", time.Minute))
	}
	require.NoError(t, mc.DeleteByPattern(ctx, "pattern:*"))
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCacheLockOwnership(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	token, ok, err := mc.TryLock(ctx, "cascade:BTC", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = mc.TryLock(ctx, "cascade:BTC", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	assert.ErrorIs(t, mc.Unlock(ctx, "cascade:BTC", "someone-else"), ErrLockNotHeld)
	require.NoError(t, mc.Unlock(ctx, "cascade:BTC", token))

	_, ok, err = mc.TryLock(ctx, "cascade:BTC", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
