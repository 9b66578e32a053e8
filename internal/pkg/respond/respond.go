// Package respond shapes error and rate-limit responses from a route's
// declared failure policy.
package respond

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"poplift/internal/pkg/ratelimit"
)

const localsKey = "respond_policy"

// GenericServerError is the only message a hard route ever returns for a 5xx.
const GenericServerError = "internal server error"

// Policy describes how a route fails.
//
// Soft routes are consumed by scripts embedded on customer sites and always
// answer 200: the fallback body plus a code describing what went wrong.
// Hard routes answer with the real status code.
type Policy struct {
	Tag      string
	Limit    int
	Window   time.Duration
	SoftFail bool
	Fallback func() fiber.Map
	// Render writes soft responses for routes that do not speak JSON.
	Render func(c *fiber.Ctx, body fiber.Map) error
}

// Identifier returns the limiter key for a client of this route.
func (p *Policy) Identifier(clientIP string) string {
	return p.Tag + "_" + clientIP
}

// Limited reports whether the route has a rate-limit budget.
func (p *Policy) Limited() bool {
	return p != nil && p.Tag != "" && p.Limit > 0
}

func (p *Policy) fallbackBody() fiber.Map {
	if p == nil || p.Fallback == nil {
		return fiber.Map{}
	}
	body := p.Fallback()
	if body == nil {
		return fiber.Map{}
	}
	return body
}

func (p *Policy) write(c *fiber.Ctx, body fiber.Map) error {
	if p.Render != nil {
		return p.Render(c, body)
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// Attach stores the policy on the request.
func Attach(c *fiber.Ctx, p *Policy) {
	c.Locals(localsKey, p)
}

// From returns the request's policy, or nil when the route declared none.
func From(c *fiber.Ctx) *Policy {
	p, _ := c.Locals(localsKey).(*Policy)
	return p
}

// IsSoft reports whether the current route fails open.
func IsSoft(c *fiber.Ctx) bool {
	p := From(c)
	return p != nil && p.SoftFail
}

// Fail answers the request with an error shaped by the route policy.
func Fail(c *fiber.Ctx, status int, code, message string) error {
	p := From(c)
	if p != nil && p.SoftFail {
		body := p.fallbackBody()
		body["code"] = code
		if status < fiber.StatusInternalServerError {
			body["success"] = false
			body["error"] = message
		} else {
			body["warning"] = message
		}
		return p.write(c, body)
	}

	if status >= fiber.StatusInternalServerError {
		message = GenericServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// RateLimited answers a request the limiter denied.
func RateLimited(c *fiber.Ctx, d ratelimit.Decision) error {
	p := From(c)
	if p != nil && p.SoftFail {
		body := p.fallbackBody()
		body["rate_limited"] = true
		body["code"] = "rate_limited"
		body["warning"] = "rate limit exceeded, try again later"
		return p.write(c, body)
	}

	retryAfter := d.RetryAfterSeconds()
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"success":     false,
		"error":       "rate_limited",
		"message":     "too many requests, try again later",
		"retry_after": retryAfter,
	})
}
