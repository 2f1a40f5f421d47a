package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Disabled(t *testing.T) {
	var nilLimiter *RateLimiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "a"))

	rl := NewRateLimiter(0, 1)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Wait(context.Background(), "a"))
	}
}

func TestRateLimiter_ThrottlesPerHost(t *testing.T) {
	rl := NewRateLimiter(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx, "a.example.com"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A different host has its own bucket.
	start = time.Now()
	require.NoError(t, rl.Wait(ctx, "b.example.com"))
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	rl := NewRateLimiter(0.1, 1)
	require.NoError(t, rl.Wait(context.Background(), "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx, "a"))
}
