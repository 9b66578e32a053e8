package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"poplift/internal/pkg/ratelimit"
	"poplift/internal/pkg/respond"
)

const budgetKey = "ratelimit_budget"

type budget struct {
	checker ratelimit.Checker
	logger  *zap.Logger
}

// AttachChecker makes the limiter available to middleware that rejects a
// request before RateLimit runs.
func AttachChecker(c *fiber.Ctx, checker ratelimit.Checker, logger *zap.Logger) {
	c.Locals(budgetKey, &budget{checker: checker, logger: logger})
}

// RateLimit enforces the route policy's budget per client address.
// Routes without a budget pass through.
func RateLimit(checker ratelimit.Checker, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		d, limited := consume(c, checker, logger)
		if !limited {
			return c.Next()
		}
		if !d.Allowed {
			return respond.RateLimited(c, d)
		}
		return c.Next()
	}
}

// reject answers a request refused for bad credentials or malformed input.
// The attempt is charged to the route budget, and once the budget is spent
// the client gets 429 instead of the rejection.
func reject(c *fiber.Ctx, status int, code, message string) error {
	if b, ok := c.Locals(budgetKey).(*budget); ok {
		if d, limited := consume(c, b.checker, b.logger); limited && !d.Allowed {
			return respond.RateLimited(c, d)
		}
	}
	return respond.Fail(c, status, code, message)
}

// consume counts one request against the route policy. It reports false
// when the route has no budget.
func consume(c *fiber.Ctx, checker ratelimit.Checker, logger *zap.Logger) (ratelimit.Decision, bool) {
	policy := respond.From(c)
	if !policy.Limited() || checker == nil {
		return ratelimit.Decision{}, false
	}

	ip := ClientIP(c)
	d := checker.Check(c.UserContext(), policy.Identifier(ip), policy.Limit, policy.Window)
	if !d.Allowed {
		logger.Warn("rate limit exceeded",
			zap.String("route", policy.Tag),
			zap.String("ip", ip),
			zap.Duration("reset_in", d.ResetIn),
		)
		return d, true
	}

	c.Set("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Set("X-RateLimit-Reset", strconv.Itoa(d.RetryAfterSeconds()))
	return d, true
}
