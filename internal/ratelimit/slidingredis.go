package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow works in milliseconds. It trims entries older than the window, admits the call only while the count
// is below the limit and reports the oldest score so callers can compute the reset time.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, member)
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, tostring(oldestScore)}
`)

// Limiter implements a sliding window rate limiter backed by Redis sorted sets.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow records a call for key when it fits in the window. Refused calls are not recorded.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || limit <= 0 || window < time.Millisecond {
		return Decision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())
	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldestStr, _ := res[2].(string)
	oldest, err := strconv.ParseFloat(oldestStr, 64)
	if err != nil {
		oldest = float64(now.UnixMilli())
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed == 1,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(int64(oldest)).Add(window),
	}, nil
}
