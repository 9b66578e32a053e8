package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"poplift/internal/analytics"
	"poplift/internal/server"
)

// AnalyticsData returns the account's dashboard for a 7, 30 or 90 day window.
func AnalyticsData(ctx *server.Context) error {
	days := analytics.DefaultDays
	if raw := ctx.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !allowedDays(n) {
			return ctx.Fail(fiber.StatusBadRequest, "invalid_days", "days must be 7, 30 or 90")
		}
		days = n
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "analytics: database unavailable", err)
	}

	report, err := analytics.Dashboard(db, ctx.TargetUser(), days, ctx.Now())
	if err != nil {
		return unavailable(ctx, "analytics: dashboard failed", err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"data":    report,
	})
}

func allowedDays(n int) bool {
	for _, d := range analytics.AllowedDays {
		if d == n {
			return true
		}
	}
	return false
}
