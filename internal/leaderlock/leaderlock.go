// Package leaderlock provides a Redis-backed mutual-exclusion lock so that,
// when multiple control-plane replicas run, only one ticks the C9
// aggregator at a time (spec §3's aggregator is specified as "a single
// background task"; this is what makes that true under replication).
//
// Adapted from internal/auth/ratelimit.go's Redis INCR/EXPIRE style
// (wisbric-nightowl), swapped for SET NX PX — the same "one counter key,
// one TTL" shape applied to acquire/renew instead of count/expire.
package leaderlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single named, renewable Redis lock.
type Lock struct {
	redis *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// New creates a Lock named key, held for ttl at a time between renewals.
// token should be unique per process (e.g. a uuid) so a replica can never
// release or renew a lock it doesn't hold.
func New(rdb *redis.Client, key, token string, ttl time.Duration) *Lock {
	return &Lock{redis: rdb, key: "leaderlock:" + key, token: token, ttl: ttl}
}

// TryAcquire attempts to become leader, returning true if it succeeded.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.redis.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leaderlock: acquiring %q: %w", l.key, err)
	}
	return ok, nil
}

// Renew extends the lock's TTL if this process still holds it. It reports
// whether it still holds leadership afterward.
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	held, err := l.redis.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("leaderlock: checking %q: %w", l.key, err)
	}
	if held != l.token {
		return false, nil
	}
	if err := l.redis.Expire(ctx, l.key, l.ttl).Err(); err != nil {
		return false, fmt.Errorf("leaderlock: renewing %q: %w", l.key, err)
	}
	return true, nil
}

// Release gives up leadership if this process still holds it.
func (l *Lock) Release(ctx context.Context) error {
	held, err := l.redis.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("leaderlock: checking %q before release: %w", l.key, err)
	}
	if held != l.token {
		return nil
	}
	return l.redis.Del(ctx, l.key).Err()
}
