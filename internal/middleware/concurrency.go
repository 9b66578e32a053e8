package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"poplift/internal/pkg/respond"
)

// ConcurrencyLimiter bounds concurrent writes against the data store.
type ConcurrencyLimiter struct {
	writeSem *semaphore.Weighted
	timeout  time.Duration
	logger   *zap.Logger
}

// NewConcurrencyLimiter constructs a limiter admitting writeLimit concurrent writes.
func NewConcurrencyLimiter(writeLimit int64, timeout time.Duration, logger *zap.Logger) *ConcurrencyLimiter {
	if writeLimit <= 0 {
		writeLimit = 1
	}
	return &ConcurrencyLimiter{
		writeSem: semaphore.NewWeighted(writeLimit),
		timeout:  timeout,
		logger:   logger,
	}
}

// WriteConcurrencyLimitMiddleware queues writes behind the semaphore.
// A request that cannot be admitted in time gets 503 (200 on soft routes).
func WriteConcurrencyLimitMiddleware(limiter *ConcurrencyLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), limiter.timeout)
		defer cancel()

		start := time.Now()
		if err := limiter.AcquireWrite(ctx); err != nil {
			limiter.logger.Warn("write concurrency limit reached",
				zap.String("path", c.Path()),
				zap.String("ip", ClientIP(c)),
				zap.Duration("wait_time", time.Since(start)),
				zap.Error(err),
			)
			c.Set(fiber.HeaderRetryAfter, "1")
			return respond.Fail(c, fiber.StatusServiceUnavailable, "server_busy", "server is at capacity, please retry")
		}
		defer limiter.ReleaseWrite()

		if wait := time.Since(start); wait > 100*time.Millisecond {
			limiter.logger.Info("write queued under load",
				zap.String("path", c.Path()),
				zap.Duration("queue_time", wait),
			)
		}

		return c.Next()
	}
}

// AcquireWrite acquires a write slot.
func (cl *ConcurrencyLimiter) AcquireWrite(ctx context.Context) error {
	return cl.writeSem.Acquire(ctx, 1)
}

// ReleaseWrite releases a write slot.
func (cl *ConcurrencyLimiter) ReleaseWrite() {
	cl.writeSem.Release(1)
}
