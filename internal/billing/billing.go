package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"poplift/internal/pkg/dbtxn"
	"poplift/internal/security"
)

// MaxCancelReasonLength bounds the free-text cancellation reason.
const MaxCancelReasonLength = 500

var (
	ErrInvalidPlan           = errors.New("billing: unknown plan type")
	ErrInvalidAddon          = errors.New("billing: unknown addon type")
	ErrNotAnUpgrade          = errors.New("billing: target plan is not higher than the current plan")
	ErrAlreadySubscribed     = errors.New("billing: account already has a paid subscription")
	ErrNoActiveSubscription  = errors.New("billing: no active subscription")
	ErrAlreadyCanceled       = errors.New("billing: subscription already canceled")
	ErrAddonRequiresPaidPlan = errors.New("billing: addons require a paid plan")
)

// Account is the billing state of one account.
type Account struct {
	Subscription Subscription   `json:"subscription"`
	Addons       []AccountAddon `json:"addons"`
	Limits       Limits         `json:"limits"`
}

// ActiveAddonTypes returns the enabled addon types.
func (a *Account) ActiveAddonTypes() []string {
	var out []string
	for _, ad := range a.Addons {
		if ad.Active {
			out = append(out, ad.AddonType)
		}
	}
	return out
}

func freeSubscription(userID string) Subscription {
	return Subscription{UserID: userID, PlanType: PlanFree, Status: StatusActive}
}

// Current returns the account's subscription, addons and limits. Accounts
// without a subscription row get the free plan.
func Current(db *gorm.DB, userID string) (*Account, error) {
	userID = strings.ToLower(userID)

	sub, err := load(db, userID)
	if err != nil {
		return nil, err
	}
	var current Subscription
	if sub == nil || sub.Status == StatusCanceled {
		current = freeSubscription(userID)
		if sub != nil {
			current.Status = StatusCanceled
			current.CanceledAt = sub.CanceledAt
		}
	} else {
		current = *sub
	}

	var list []AccountAddon
	if err := db.Where("user_id = ?", userID).Order("addon_type ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("billing: load addons: %w", err)
	}

	account := &Account{Subscription: current, Addons: list}
	account.Limits = EffectiveLimits(current.PlanType, account.ActiveAddonTypes())
	return account, nil
}

// Subscribe starts a paid subscription for an account that has none.
func Subscribe(ctx context.Context, logger *zap.Logger, db *gorm.DB, userID, planType string, now time.Time) (*Subscription, error) {
	plan, ok := LookupPlan(planType)
	if !ok || plan.Type == PlanFree {
		return nil, ErrInvalidPlan
	}
	userID = strings.ToLower(userID)

	var result Subscription
	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		sub, err := load(tx, userID)
		if err != nil {
			return err
		}
		if sub.Paid() {
			return ErrAlreadySubscribed
		}
		if sub == nil {
			sub = &Subscription{UserID: userID}
		}
		startPeriod(sub, plan.Type, now)
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("billing: save subscription: %w", err)
		}
		result = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("subscription started", zap.String("user_id", userID), zap.String("plan", plan.Type))
	return &result, nil
}

// Upgrade moves the account to a strictly higher plan. A pending
// cancellation is withdrawn.
func Upgrade(ctx context.Context, logger *zap.Logger, db *gorm.DB, userID, planType string, now time.Time) (*Subscription, error) {
	target, ok := LookupPlan(planType)
	if !ok {
		return nil, ErrInvalidPlan
	}
	userID = strings.ToLower(userID)

	var result Subscription
	var from string
	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		sub, err := load(tx, userID)
		if err != nil {
			return err
		}

		from = PlanFree
		if sub.Paid() {
			from = sub.PlanType
		}
		current, _ := LookupPlan(from)
		if target.Rank <= current.Rank {
			return ErrNotAnUpgrade
		}

		if sub == nil {
			sub = &Subscription{UserID: userID}
		}
		if from == PlanFree {
			startPeriod(sub, target.Type, now)
		} else {
			sub.PlanType = target.Type
			sub.Status = StatusActive
			sub.CancelAtPeriodEnd = false
			sub.CancelReason = ""
			sub.CanceledAt = nil
		}
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("billing: save subscription: %w", err)
		}
		result = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("subscription upgraded",
		zap.String("user_id", userID),
		zap.String("from", from),
		zap.String("to", target.Type),
	)
	return &result, nil
}

// Cancel schedules the paid subscription to end with the current period.
func Cancel(ctx context.Context, logger *zap.Logger, db *gorm.DB, userID, reason string, now time.Time) (*Subscription, error) {
	userID = strings.ToLower(userID)
	reason = security.SanitizeString(strings.TrimSpace(reason), MaxCancelReasonLength)

	var result Subscription
	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		sub, err := load(tx, userID)
		if err != nil {
			return err
		}
		if !sub.Paid() {
			return ErrNoActiveSubscription
		}
		if sub.Status == StatusCanceling {
			return ErrAlreadyCanceled
		}

		canceledAt := now
		sub.Status = StatusCanceling
		sub.CancelAtPeriodEnd = true
		sub.CancelReason = reason
		sub.CanceledAt = &canceledAt
		if err := tx.Save(sub).Error; err != nil {
			return fmt.Errorf("billing: save subscription: %w", err)
		}
		result = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("subscription cancellation scheduled",
		zap.String("user_id", userID),
		zap.Time("period_end", result.CurrentPeriodEnd),
	)
	return &result, nil
}

// SetAddon enables or disables an addon. Enabling requires a paid plan.
func SetAddon(ctx context.Context, logger *zap.Logger, db *gorm.DB, userID, addonType string, enabled bool) (*AccountAddon, error) {
	if !security.OneOf(addonType, AddonTypes()...) {
		return nil, ErrInvalidAddon
	}
	userID = strings.ToLower(userID)

	var result AccountAddon
	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		if enabled {
			sub, err := load(tx, userID)
			if err != nil {
				return err
			}
			if !sub.Paid() {
				return ErrAddonRequiresPaidPlan
			}
		}

		var addon AccountAddon
		err := tx.Where("user_id = ? AND addon_type = ?", userID, addonType).Take(&addon).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			addon = AccountAddon{UserID: userID, AddonType: addonType}
		case err != nil:
			return fmt.Errorf("billing: load addon: %w", err)
		}

		addon.Active = enabled
		if err := tx.Save(&addon).Error; err != nil {
			return fmt.Errorf("billing: save addon: %w", err)
		}
		result = addon
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("addon updated",
		zap.String("user_id", userID),
		zap.String("addon", addonType),
		zap.Bool("enabled", enabled),
	)
	return &result, nil
}

// ExpireCanceled ends every canceling subscription whose period is over:
// the account drops to the free plan and its addons are disabled.
func ExpireCanceled(ctx context.Context, logger *zap.Logger, db *gorm.DB, now time.Time) (int, error) {
	var expired []Subscription
	err := db.WithContext(ctx).
		Where("status = ? AND current_period_end <= ?", StatusCanceling, now).
		Find(&expired).Error
	if err != nil {
		return 0, fmt.Errorf("billing: find expired: %w", err)
	}

	count := 0
	for _, sub := range expired {
		var changed bool
		err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
			changed = false
			res := tx.Model(&Subscription{}).
				Where("id = ? AND status = ?", sub.ID, StatusCanceling).
				Updates(map[string]interface{}{
					"status":    StatusCanceled,
					"plan_type": PlanFree,
				})
			if res.Error != nil {
				return fmt.Errorf("billing: expire subscription: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
			if err := tx.Model(&AccountAddon{}).
				Where("user_id = ? AND active = ?", sub.UserID, true).
				Update("active", false).Error; err != nil {
				return fmt.Errorf("billing: disable addons: %w", err)
			}
			changed = true
			return nil
		})
		if err != nil {
			return count, err
		}
		if !changed {
			continue
		}
		count++
		logger.Info("subscription expired", zap.String("user_id", sub.UserID), zap.String("plan", sub.PlanType))
	}
	return count, nil
}

// load returns the subscription row or nil when the account has none.
func load(db *gorm.DB, userID string) (*Subscription, error) {
	var sub Subscription
	err := db.Where("user_id = ?", userID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: load subscription: %w", err)
	}
	return &sub, nil
}

func startPeriod(sub *Subscription, planType string, now time.Time) {
	sub.PlanType = planType
	sub.Status = StatusActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = now.AddDate(0, 1, 0)
	sub.CancelAtPeriodEnd = false
	sub.CancelReason = ""
	sub.CanceledAt = nil
}
