package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a Redis-backed sliding window for deployments that front
// the engine with more than one ingress. Each address maps to a sorted set
// of admission timestamps; the Lua script prunes, counts, and records in one
// atomic round trip.
//
// On Redis errors the limiter fails open: availability beats precise
// admission control for an advisory limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	script *redis.Script
	logger *slog.Logger
}

// KEYS[1]: per-address sorted set
// ARGV[1]: window seconds, ARGV[2]: limit, ARGV[3]: now (ms), ARGV[4]: member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - (window * 1000))

if redis.call('ZCARD', key) < limit then
    redis.call('ZADD', key, now, ARGV[4])
    redis.call('EXPIRE', key, window + 60)
    return 1
end
return 0
`)

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		script: slidingWindowScript,
		logger: logger,
	}
}

func (l *RateLimiter) Allow(ctx context.Context, addr string) bool {
	allowed, err := l.script.Run(
		ctx,
		l.client,
		[]string{l.key(addr)},
		int64(l.window.Seconds()),
		l.limit,
		time.Now().UnixMilli(),
		uuid.NewString(),
	).Int()
	if err != nil {
		l.logger.Warn("rate limiter failing open", "addr", addr, "err", err)
		return true
	}
	return allowed == 1
}

// Sweep is a no-op: the script sets a TTL on every key, so drained
// addresses expire on their own.
func (l *RateLimiter) Sweep(context.Context) {}

func (l *RateLimiter) key(addr string) string {
	return "quiz:ratelimit:" + addr
}
