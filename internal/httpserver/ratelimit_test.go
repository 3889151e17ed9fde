package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRateLimiter_AllowsUpToLimitThenRejects(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 2, time.Minute)
	ctx := t.Context()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("expected request %d to be allowed, got allowed=%v err=%v", i, allowed, err)
		}
	}

	allowed, err := rl.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
}

func TestRateLimiter_TracksIPsIndependently(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 1, time.Minute)
	ctx := t.Context()

	if allowed, err := rl.Allow(ctx, "10.0.0.1"); err != nil || !allowed {
		t.Fatalf("expected first IP's request allowed, got allowed=%v err=%v", allowed, err)
	}
	if allowed, err := rl.Allow(ctx, "10.0.0.2"); err != nil || !allowed {
		t.Fatalf("expected second IP's request allowed, got allowed=%v err=%v", allowed, err)
	}
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(newTestRedis(t), 1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/customer/get", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate-limited, got %d", rr.Code)
	}
}
