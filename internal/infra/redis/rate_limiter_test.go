package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRateLimiter(client, limit, window, logger), mr
}

func TestRedisRateLimiterLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "1.2.3.4") {
			t.Fatalf("attempt %d should be admitted", i+1)
		}
	}
	if limiter.Allow(ctx, "1.2.3.4") {
		t.Fatalf("attempt over the limit was admitted")
	}
	if !limiter.Allow(ctx, "5.6.7.8") {
		t.Fatalf("unrelated address was rejected")
	}
}

func TestRedisRateLimiterWindowSlides(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2, time.Second)
	ctx := context.Background()

	limiter.Allow(ctx, "1.2.3.4")
	limiter.Allow(ctx, "1.2.3.4")
	if limiter.Allow(ctx, "1.2.3.4") {
		t.Fatalf("third attempt inside the window was admitted")
	}

	// The script prunes by wall-clock score, so waiting out the window frees
	// capacity even without miniredis time travel.
	time.Sleep(1100 * time.Millisecond)
	if !limiter.Allow(ctx, "1.2.3.4") {
		t.Fatalf("expired window still rejecting")
	}

	// The key carries a TTL so drained addresses expire on their own.
	if mr.TTL("quiz:ratelimit:1.2.3.4") <= 0 {
		t.Fatalf("rate limit key has no TTL")
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	mr.Close()
	if !limiter.Allow(ctx, "1.2.3.4") {
		t.Fatalf("limiter must fail open when redis is unreachable")
	}
}
