package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"poplift/internal/billing"
	"poplift/internal/popups"
	"poplift/internal/security"
	"poplift/internal/server"
)

type createPopupRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Headline     string `json:"headline"`
	Body         string `json:"body"`
	CTAText      string `json:"cta_text"`
	CTAURL       string `json:"cta_url"`
	Trigger      string `json:"trigger"`
	DelaySeconds int    `json:"delay_seconds"`
}

// CreatePopup creates a popup within the account's plan limit.
func CreatePopup(ctx *server.Context) error {
	var req createPopupRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "create popup: database unavailable", err)
	}

	userID := ctx.TargetUser()
	account, err := billing.Current(db, userID)
	if err != nil {
		return unavailable(ctx, "create popup: load plan", err)
	}

	popup, err := popups.Create(ctx.UserContext(), ctx.Logger, db, popups.CreateParams{
		UserID:       userID,
		Name:         req.Name,
		Type:         req.Type,
		Headline:     req.Headline,
		Body:         req.Body,
		CTAText:      req.CTAText,
		CTAURL:       req.CTAURL,
		Trigger:      req.Trigger,
		DelaySeconds: req.DelaySeconds,
	}, account.Limits.Popups)
	if err != nil {
		var verr *popups.ValidationError
		switch {
		case errors.As(err, &verr):
			return ctx.Fail(fiber.StatusBadRequest, "invalid_"+verr.Field, verr.Error())
		case errors.Is(err, popups.ErrLimitReached):
			return ctx.Fail(fiber.StatusConflict, "popup_limit_reached", "plan popup limit reached, upgrade to add more")
		default:
			return unavailable(ctx, "create popup failed", err)
		}
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"popup":   popup.Public(),
	})
}

type popupStatusRequest struct {
	Active *bool `json:"active"`
}

// SetPopupStatus activates or deactivates one of the account's popups.
func SetPopupStatus(ctx *server.Context) error {
	popupID := ctx.Params("id")
	if !security.IsValidUUID(popupID) {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_popup_id", "popup id must be a valid UUID")
	}

	var req popupStatusRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}
	if req.Active == nil {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_active", "active must be true or false")
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "popup status: database unavailable", err)
	}

	popup, err := popups.SetActive(ctx.UserContext(), ctx.Logger, db, ctx.TargetUser(), popupID, *req.Active)
	if err != nil {
		if errors.Is(err, popups.ErrNotFound) {
			return ctx.Fail(fiber.StatusNotFound, "not_found", "popup not found")
		}
		return unavailable(ctx, "popup status update failed", err)
	}

	return ctx.JSON(fiber.Map{
		"success": true,
		"popup":   popup.Public(),
		"active":  popup.Active,
	})
}
