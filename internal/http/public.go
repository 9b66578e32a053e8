package http

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"poplift/internal/analytics"
	"poplift/internal/billing"
	"poplift/internal/popups"
	"poplift/internal/security"
	"poplift/internal/server"
	"poplift/web"
)

// SnippetVersion is stamped into the served embed script.
const SnippetVersion = "1.4.0"

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

var snippetTemplate = template.Must(template.ParseFS(web.Templates, "snippet.js.tmpl"))

// PopupsFallback is the degraded body of GET /popups/:userId.
func PopupsFallback() fiber.Map {
	return fiber.Map{
		"popups":    []popups.Public{},
		"count":     0,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
}

// TrackFallback is the degraded body of POST /track.
func TrackFallback() fiber.Map {
	return fiber.Map{"success": true, "tracked": false}
}

// PricingFallback is the degraded body of GET /pricing.
func PricingFallback() fiber.Map {
	return fiber.Map{"plans": []billing.Plan{}, "addons": []billing.Addon{}}
}

// PublicPopups serves the active popups of an account to its embed script.
func PublicPopups(ctx *server.Context) error {
	userID := ctx.Params("userId")
	if !security.IsValidUUID(userID) {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_user_id", "user id must be a valid UUID")
	}

	db, err := ctx.PublicDB()
	if err != nil {
		return unavailable(ctx, "public popups: database unavailable", err)
	}

	list, err := popups.ListActive(db, userID)
	if err != nil {
		return unavailable(ctx, "public popups: list failed", err)
	}

	out := make([]popups.Public, len(list))
	for i, p := range list {
		out[i] = p.Public()
	}

	return ctx.JSON(fiber.Map{
		"popups":    out,
		"count":     len(out),
		"timestamp": ctx.Now().Format(time.RFC3339),
	})
}

type trackRequest struct {
	PopupID   string `json:"popup_id"`
	EventType string `json:"event_type"`
	PageURL   string `json:"page_url"`
	SessionID string `json:"session_id"`
}

// TrackEvent records an interaction reported by the embed script.
func TrackEvent(ctx *server.Context) error {
	var req trackRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}
	if !security.IsValidUUID(req.PopupID) {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_popup_id", "popup_id must be a valid UUID")
	}
	if !security.OneOf(req.EventType, analytics.EventTypes...) {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_event_type",
			"event_type must be one of "+strings.Join(analytics.EventTypes, ", "))
	}

	if err := recordEvent(ctx, req); err != nil {
		if errors.Is(err, popups.ErrNotFound) {
			return ctx.Fail(fiber.StatusNotFound, "popup_not_found", "popup not found")
		}
		return unavailable(ctx, "track: record failed", err)
	}

	return ctx.JSON(fiber.Map{"success": true, "tracked": true})
}

// TrackingPixel records an event from a query string and always answers
// with the pixel image.
func TrackingPixel(ctx *server.Context) error {
	req := trackRequest{
		PopupID:   ctx.Query("pid"),
		EventType: ctx.Query("e"),
		PageURL:   ctx.Get(fiber.HeaderReferer),
	}
	if security.IsValidUUID(req.PopupID) && security.OneOf(req.EventType, analytics.EventTypes...) {
		if err := recordEvent(ctx, req); err != nil && !errors.Is(err, popups.ErrNotFound) {
			ctx.Logger.Warn("pixel: record failed", zap.Error(err))
		}
	}
	return writePixel(ctx.Ctx)
}

// RenderPixel answers degraded pixel requests with the image.
func RenderPixel(c *fiber.Ctx, _ fiber.Map) error {
	return writePixel(c)
}

func writePixel(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "image/gif")
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate, max-age=0")
	return c.Status(fiber.StatusOK).Send(transparentGIF)
}

func recordEvent(ctx *server.Context, req trackRequest) error {
	db, err := ctx.PublicDB()
	if err != nil {
		return err
	}

	popup, err := popups.Get(db, req.PopupID)
	if err != nil {
		return err
	}

	event := &analytics.Event{
		PopupID:   popup.ID,
		UserID:    popup.UserID,
		EventType: req.EventType,
		PageURL:   clampURL(req.PageURL),
		SessionID: cleanSessionID(req.SessionID),
		CreatedAt: ctx.Now(),
	}
	if ip := ctx.ClientIP(); ip != security.UnknownClient {
		event.VisitorHash = security.HashIP(ctx.Config.AnonSalt, ip)
	}
	return analytics.Record(db, event)
}

type snippetData struct {
	BaseURL string
	UserID  string
	Version string
}

// EmbedSnippet serves the JavaScript loader for an account.
func EmbedSnippet(ctx *server.Context) error {
	userID := ctx.Params("userId")
	if !security.IsValidUUID(userID) {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_user_id", "user id must be a valid UUID")
	}

	var buf bytes.Buffer
	err := snippetTemplate.Execute(&buf, snippetData{
		BaseURL: ctx.Config.SnippetBaseURL(),
		UserID:  strings.ToLower(userID),
		Version: SnippetVersion,
	})
	if err != nil {
		return unavailable(ctx, "embed: render snippet", err)
	}

	ctx.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return ctx.Status(fiber.StatusOK).Send(buf.Bytes())
}

// RenderSnippetComment answers degraded embed requests with an inert script.
func RenderSnippetComment(c *fiber.Ctx, body fiber.Map) error {
	c.Set(fiber.HeaderContentType, "application/javascript; charset=utf-8")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(fiber.StatusOK).SendString(fmt.Sprintf("/* poplift: %v */\n", body["code"]))
}

// PricingCatalog lists plans and addons.
func PricingCatalog(ctx *server.Context) error {
	ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return ctx.JSON(fiber.Map{
		"plans":    billing.Plans(),
		"addons":   billing.Addons(),
		"currency": "usd",
	})
}
