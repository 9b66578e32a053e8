package middleware

import (
	"github.com/gofiber/fiber/v2"

	"poplift/internal/security"
)

// CORS writes the permissive header set on every response and answers
// preflight requests with 204.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		for k, v := range security.CORSHeaders(c.Get(fiber.HeaderOrigin)) {
			c.Set(k, v)
		}
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}
