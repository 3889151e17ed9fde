package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter limits requests per client IP using Redis INCR + EXPIRE.
// Adapted from internal/auth/ratelimit.go (wisbric-nightowl); the teacher
// used this to throttle login attempts, here it throttles admin-endpoint
// calls regardless of signature validity, since a bad signature still
// costs an HMAC verification.
type RateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a rate limiter allowing maxAttempt requests per
// client IP within window.
func NewRateLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, maxAttempt: maxAttempt, window: window}
}

func (rl *RateLimiter) key(ip string) string { return "adminapi:ratelimit:" + ip }

// Allow increments the counter for ip and reports whether it is still under
// the limit.
func (rl *RateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	key := rl.key(ip)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incrementing %q: %w", key, err)
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: setting expiry for %q: %w", key, err)
		}
	}
	return count <= int64(rl.maxAttempt), nil
}

// Middleware rejects requests once a client IP exceeds the configured rate,
// logging and failing OPEN (allowing the request through) on Redis errors
// so a Redis outage degrades to "unlimited" rather than "outage".
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, err := rl.Allow(r.Context(), ip)
		if err != nil {
			slog.Warn("ratelimit: redis error, allowing request", "ip", ip, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
