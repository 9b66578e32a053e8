package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poplift/internal/pkg/respond"
	"poplift/internal/security"
)

// ClientIP derives the client address from proxy headers.
func ClientIP(c *fiber.Ctx) string {
	return security.ClientIP(security.HeaderFunc(func(key string) string {
		return c.Get(key)
	}))
}

// RequestLogger emits structured request logs using zap.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		stop := time.Since(start)

		status := c.Response().StatusCode()
		level := zapcore.InfoLevel
		switch {
		case err != nil || status >= fiber.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status == fiber.StatusTooManyRequests:
			level = zapcore.WarnLevel
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", stop),
			zap.String("ip", ClientIP(c)),
		}
		if id, ok := c.Locals("requestid").(string); ok && id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if p := respond.From(c); p != nil && p.Tag != "" {
			fields = append(fields, zap.String("route", p.Tag))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		logger.Log(level, "http request", fields...)
		return err
	}
}
