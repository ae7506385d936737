package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurstThenRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(2, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("quote"), "token %d", i)
	}
	assert.False(t, l.Allow("quote"))
	assert.True(t, l.Allow("other"), "keys have separate buckets")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("quote"))
	assert.False(t, l.Allow("quote"))
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitReturnsAfterRefill(t *testing.T) {
	l := New(100, 1)
	require.True(t, l.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "k"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
