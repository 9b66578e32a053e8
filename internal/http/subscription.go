package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"poplift/internal/billing"
	"poplift/internal/security"
	"poplift/internal/server"
)

// billingFailure maps billing errors onto stable response codes.
func billingFailure(ctx *server.Context, err error) error {
	switch {
	case errors.Is(err, billing.ErrInvalidPlan):
		return ctx.Fail(fiber.StatusBadRequest, "invalid_plan_type", "plan_type is not a valid plan")
	case errors.Is(err, billing.ErrInvalidAddon):
		return ctx.Fail(fiber.StatusBadRequest, "invalid_addon_type", "addon_type is not a valid addon")
	case errors.Is(err, billing.ErrNotAnUpgrade):
		return ctx.Fail(fiber.StatusBadRequest, "invalid_upgrade", "target plan must be higher than the current plan")
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return ctx.Fail(fiber.StatusConflict, "already_subscribed", "account already has a paid subscription")
	case errors.Is(err, billing.ErrNoActiveSubscription):
		return ctx.Fail(fiber.StatusConflict, "no_active_subscription", "no active paid subscription")
	case errors.Is(err, billing.ErrAlreadyCanceled):
		return ctx.Fail(fiber.StatusConflict, "already_canceled", "subscription is already scheduled to cancel")
	case errors.Is(err, billing.ErrAddonRequiresPaidPlan):
		return ctx.Fail(fiber.StatusConflict, "addon_requires_paid_plan", "addons require a paid plan")
	default:
		return unavailable(ctx, "billing operation failed", err)
	}
}

// GetSubscription returns the account's plan, addons and effective limits.
func GetSubscription(ctx *server.Context) error {
	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "subscription: database unavailable", err)
	}

	account, err := billing.Current(db, ctx.TargetUser())
	if err != nil {
		return unavailable(ctx, "subscription: load failed", err)
	}
	plan, _ := billing.LookupPlan(account.Subscription.PlanType)

	return ctx.JSON(fiber.Map{
		"success":      true,
		"subscription": account.Subscription,
		"plan":         plan,
		"addons":       account.Addons,
		"limits":       account.Limits,
	})
}

type planRequest struct {
	PlanType string `json:"plan_type"`
}

// Subscribe starts a paid subscription.
func Subscribe(ctx *server.Context) error {
	var req planRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}
	if !security.OneOf(req.PlanType, billing.PlanTypes()...) {
		return billingFailure(ctx, billing.ErrInvalidPlan)
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "subscribe: database unavailable", err)
	}

	sub, err := billing.Subscribe(ctx.UserContext(), ctx.Logger, db, ctx.TargetUser(), req.PlanType, ctx.Now())
	if err != nil {
		return billingFailure(ctx, err)
	}

	plan, _ := billing.LookupPlan(sub.PlanType)
	return ctx.JSON(fiber.Map{
		"success":      true,
		"message":      fmt.Sprintf("Subscribed to the %s plan", plan.Name),
		"subscription": sub,
	})
}

// UpgradeSubscription moves the account to a higher plan.
func UpgradeSubscription(ctx *server.Context) error {
	var req planRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}
	if !security.OneOf(req.PlanType, billing.PlanTypes()...) {
		return billingFailure(ctx, billing.ErrInvalidPlan)
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "upgrade: database unavailable", err)
	}

	sub, err := billing.Upgrade(ctx.UserContext(), ctx.Logger, db, ctx.TargetUser(), req.PlanType, ctx.Now())
	if err != nil {
		return billingFailure(ctx, err)
	}

	plan, _ := billing.LookupPlan(sub.PlanType)
	return ctx.JSON(fiber.Map{
		"success":      true,
		"message":      fmt.Sprintf("Upgraded to the %s plan", plan.Name),
		"subscription": sub,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelSubscription schedules the subscription to end with its period.
func CancelSubscription(ctx *server.Context) error {
	var req cancelRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "cancel: database unavailable", err)
	}

	sub, err := billing.Cancel(ctx.UserContext(), ctx.Logger, db, ctx.TargetUser(), req.Reason, ctx.Now())
	if err != nil {
		return billingFailure(ctx, err)
	}

	return ctx.JSON(fiber.Map{
		"success":      true,
		"message":      "Subscription will end on " + sub.CurrentPeriodEnd.UTC().Format(time.DateOnly),
		"subscription": sub,
	})
}

type addonRequest struct {
	AddonType string `json:"addon_type"`
	Enabled   *bool  `json:"enabled"`
}

// UpdateAddon enables or disables an addon.
func UpdateAddon(ctx *server.Context) error {
	var req addonRequest
	if err := decodeJSON(ctx, &req); err != nil {
		return invalidJSON(ctx)
	}
	if !security.OneOf(req.AddonType, billing.AddonTypes()...) {
		return billingFailure(ctx, billing.ErrInvalidAddon)
	}
	if req.Enabled == nil {
		return ctx.Fail(fiber.StatusBadRequest, "invalid_enabled", "enabled must be true or false")
	}

	db, err := ctx.DB()
	if err != nil {
		return unavailable(ctx, "addon: database unavailable", err)
	}

	addon, err := billing.SetAddon(ctx.UserContext(), ctx.Logger, db, ctx.TargetUser(), req.AddonType, *req.Enabled)
	if err != nil {
		return billingFailure(ctx, err)
	}

	state := "disabled"
	if addon.Active {
		state = "enabled"
	}
	return ctx.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Addon %s %s", addon.AddonType, state),
		"addon":   addon,
	})
}
