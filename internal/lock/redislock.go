package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another worker holds the lock for the same key.
var ErrBusy = errors.New("lock: key is being processed")

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Once runs a callback at most once per key across processes. A key is marked done only
// after the callback succeeds, so failed work can be retried.
type Once struct {
	Client  *redis.Client
	Prefix  string
	LockTTL time.Duration
	DoneTTL time.Duration
}

// Do runs fn unless key already completed. It reports whether fn ran. Concurrent callers
// for the same key get ErrBusy instead of waiting.
func (o Once) Do(ctx context.Context, key string, fn func(context.Context) error) (bool, error) {
	if fn == nil {
		return false, errors.New("lock: callback not provided")
	}
	if o.Client == nil {
		return true, fn(ctx)
	}
	doneKey := o.Prefix + "done:" + key
	lockKey := o.Prefix + "lock:" + key

	done, err := o.Client.Exists(ctx, doneKey).Result()
	if err != nil {
		return false, fmt.Errorf("lock: check %s: %w", key, err)
	}
	if done > 0 {
		return false, nil
	}

	token := uuid.NewString()
	ok, err := o.Client.SetNX(ctx, lockKey, token, ttlOr(o.LockTTL, 30*time.Second)).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return false, ErrBusy
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), o.Client, []string{lockKey}, token).Err()
	}()

	// A holder may have finished and released between the first check and SETNX.
	done, err = o.Client.Exists(ctx, doneKey).Result()
	if err != nil {
		return false, fmt.Errorf("lock: check %s: %w", key, err)
	}
	if done > 0 {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return true, err
	}
	if err := o.Client.Set(ctx, doneKey, time.Now().UTC().Format(time.RFC3339), ttlOr(o.DoneTTL, 72*time.Hour)).Err(); err != nil {
		return true, fmt.Errorf("lock: mark %s done: %w", key, err)
	}
	return true, nil
}

func ttlOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
