package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterAllowSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	now := time.Unix(1_700_000_000, 0)
	limiter := Limiter{Client: client, Prefix: "test:", Now: func() time.Time { return now }}
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "key", window, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		require.Equal(t, 1-i, d.Remaining)
		now = now.Add(100 * time.Millisecond)
	}

	d, err := limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, time.Unix(1_700_000_000, 0).Add(window), d.ResetAt)

	count, err := client.ZCard(ctx, "test:key").Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, count, "refused calls are not recorded")

	now = time.Unix(1_700_000_000, 0).Add(window + time.Millisecond)
	d, err = limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestLimiterDisabled(t *testing.T) {
	d, err := Limiter{}.Allow(context.Background(), "key", time.Second, 5)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
