package internal

import (
	"github.com/gofiber/fiber/v2"

	"poplift/internal/config"
	httphandlers "poplift/internal/http"
	"poplift/internal/middleware"
	"poplift/internal/pkg/respond"
	"poplift/internal/server"
)

func policy(cfg *config.Config, tag string) *respond.Policy {
	budget := cfg.RateBudget(tag)
	return &respond.Policy{Tag: tag, Limit: budget.Limit, Window: budget.Window}
}

func softPolicy(cfg *config.Config, tag string, fallback func() fiber.Map) *respond.Policy {
	p := policy(cfg, tag)
	p.SoftFail = true
	p.Fallback = fallback
	return p
}

// MountRoutes registers all application routes.
func MountRoutes(s *server.Server) {
	cfg := s.Settings()

	// Public routes are called from customer sites and fail open.
	s.Get("/popups/:userId", httphandlers.PublicPopups, &server.RouteConfig{
		Policy:     softPolicy(cfg, config.TagPopups, httphandlers.PopupsFallback),
		EnableCORS: true,
	})
	s.Post("/track", httphandlers.TrackEvent, &server.RouteConfig{
		Policy:           softPolicy(cfg, config.TagTrack, httphandlers.TrackFallback),
		EnableCORS:       true,
		WriteConcurrency: true,
	})

	pixel := softPolicy(cfg, config.TagPixel, nil)
	pixel.Render = httphandlers.RenderPixel
	s.Get("/pixel.gif", httphandlers.TrackingPixel, &server.RouteConfig{
		Policy:           pixel,
		EnableCORS:       true,
		WriteConcurrency: true,
	})

	embed := softPolicy(cfg, config.TagEmbed, nil)
	embed.Render = httphandlers.RenderSnippetComment
	s.Get("/embed/:userId", httphandlers.EmbedSnippet, &server.RouteConfig{
		Policy:     embed,
		EnableCORS: true,
	})

	s.Get("/pricing", httphandlers.PricingCatalog, &server.RouteConfig{
		Policy:     softPolicy(cfg, config.TagPricing, httphandlers.PricingFallback),
		EnableCORS: true,
	})

	// Account routes fail closed. Ownership is checked before the limiter so
	// a mismatched principal gets 403, not 429.
	ownBody := []fiber.Handler{s.RequireAuth(), middleware.RequireOwner(middleware.OwnerFromBody)}
	ownQuery := []fiber.Handler{s.OptionalAuth(), middleware.RequireOwner(middleware.OwnerFromQuery)}

	write := func(tag string) *server.RouteConfig {
		return &server.RouteConfig{
			Policy:           policy(cfg, tag),
			EnableCORS:       true,
			WriteConcurrency: true,
			CustomMiddleware: ownBody,
		}
	}
	read := func(tag string) *server.RouteConfig {
		return &server.RouteConfig{
			Policy:           policy(cfg, tag),
			EnableCORS:       true,
			CustomMiddleware: ownQuery,
		}
	}

	s.Post("/popups", httphandlers.CreatePopup, write(config.TagPopupWrite))
	s.Post("/popups/:id/status", httphandlers.SetPopupStatus, write(config.TagPopupWrite))

	s.Get("/subscription", httphandlers.GetSubscription, read(config.TagSubscriptionRead))
	s.Get("/analytics/data", httphandlers.AnalyticsData, read(config.TagAnalytics))

	s.Post("/subscription", httphandlers.Subscribe, write(config.TagSubscription))
	s.Post("/subscription/upgrade", httphandlers.UpgradeSubscription, write(config.TagUpgrade))
	s.Post("/subscription/cancel", httphandlers.CancelSubscription, write(config.TagCancel))
	s.Post("/subscription/addons", httphandlers.UpdateAddon, write(config.TagAddons))
}
