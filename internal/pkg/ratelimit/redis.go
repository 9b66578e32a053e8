package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fixedWindowScript returns {count, pttl_ms, allowed}. A denied call leaves
// the counter untouched; the first hit of a window sets its expiry.
var fixedWindowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if current >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then ttl = window end
  return {current, ttl, 0}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end
return {current, ttl, 1}
`)

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithKeyPrefix sets the namespace for counter keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisLimiter) { r.prefix = strings.Trim(prefix, ":") }
}

// WithFallback sets the in-process limiter used when Redis is unavailable.
func WithFallback(fallback Checker) RedisOption {
	return func(r *RedisLimiter) {
		if fallback != nil {
			r.fallback = fallback
		}
	}
}

// WithTimeout bounds each Redis round trip.
func WithTimeout(d time.Duration) RedisOption {
	return func(r *RedisLimiter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// RedisLimiter is a fixed-window Checker shared by every instance that points
// at the same Redis. Redis errors degrade to the in-process fallback.
type RedisLimiter struct {
	rdb      redis.Scripter
	logger   *zap.Logger
	prefix   string
	fallback Checker
	timeout  time.Duration
}

// NewRedisLimiter wraps a go-redis client.
func NewRedisLimiter(rdb redis.Scripter, logger *zap.Logger, opts ...RedisOption) *RedisLimiter {
	r := &RedisLimiter{
		rdb:      rdb,
		logger:   logger,
		prefix:   "poplift:ratelimit",
		fallback: NewLimiter(),
		timeout:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisLimiter) Check(ctx context.Context, identifier string, limit int, window time.Duration) Decision {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.prefix + ":" + identifier
	res, err := fixedWindowScript.Run(ctx, r.rdb, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 3 {
		r.logger.Warn("redis rate limiter unavailable, using in-process counter",
			zap.String("identifier", identifier),
			zap.Error(err),
		)
		return r.fallback.Check(ctx, identifier, limit, window)
	}

	count, ttl, allowed := int(res[0]), time.Duration(res[1])*time.Millisecond, res[2] == 1
	if !allowed {
		return Decision{Allowed: false, Remaining: 0, ResetIn: ttl}
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, ResetIn: ttl}
}
