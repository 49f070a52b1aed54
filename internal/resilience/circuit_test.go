package resilience_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/checkout-api/internal/resilience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 2, FailureRatio: 0.5, OpenFor: time.Minute}).
		WithTarget("test_transitions").WithClock(clock.Now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx), "breaker should refuse while open")

	clock.Advance(time.Minute)
	require.True(t, breaker.Allow(ctx), "first caller after cool off is the probe")
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")
	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, FailureRatio: 1, OpenFor: time.Second}).
		WithTarget("test_probe").WithClock(clock.Now)
	ctx := context.Background()

	breaker.Report(ctx, false)
	clock.Advance(time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 4, FailureRatio: 0.5, OpenFor: time.Second})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		breaker.Report(ctx, i%3 == 0 || i%3 == 1)
	}
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
