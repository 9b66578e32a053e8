package popups

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"poplift/internal/pkg/dbtxn"
	"poplift/internal/security"
)

const (
	MaxDelaySeconds = 600
	// Unlimited disables the per-account popup cap.
	Unlimited = -1
)

var (
	ErrNotFound     = errors.New("popups: not found")
	ErrLimitReached = errors.New("popups: plan popup limit reached")
)

// ValidationError reports a rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CreateParams holds parameters for creating a popup.
type CreateParams struct {
	UserID       string
	Name         string
	Type         string
	Headline     string
	Body         string
	CTAText      string
	CTAURL       string
	Trigger      string
	DelaySeconds int
}

func (p CreateParams) validate() error {
	if !security.IsValidUUID(p.UserID) {
		return &ValidationError{Field: "user_id", Message: "must be a valid UUID"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !security.OneOf(p.Type, Types...) {
		return &ValidationError{Field: "type", Message: "must be one of " + strings.Join(Types, ", ")}
	}
	trigger := p.Trigger
	if trigger == "" {
		trigger = TriggerImmediate
	}
	if !security.OneOf(trigger, Triggers...) {
		return &ValidationError{Field: "trigger", Message: "must be one of " + strings.Join(Triggers, ", ")}
	}
	if p.DelaySeconds < 0 || p.DelaySeconds > MaxDelaySeconds {
		return &ValidationError{Field: "delay_seconds", Message: fmt.Sprintf("must be between 0 and %d", MaxDelaySeconds)}
	}
	if p.CTAURL != "" {
		u, err := url.Parse(p.CTAURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "cta_url", Message: "must be an absolute http(s) URL"}
		}
	}
	return nil
}

// Create validates and stores a popup, enforcing limit popups per account
// (Unlimited for no cap). Text fields are stored HTML-encoded.
func Create(ctx context.Context, logger *zap.Logger, db *gorm.DB, params CreateParams, limit int) (*Popup, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	trigger := params.Trigger
	if trigger == "" {
		trigger = TriggerImmediate
	}

	popup := &Popup{
		UserID:       strings.ToLower(params.UserID),
		Name:         security.SanitizeString(strings.TrimSpace(params.Name), 120),
		Type:         params.Type,
		Headline:     security.SanitizeString(params.Headline, 200),
		Body:         security.SanitizeString(params.Body, 2000),
		CTAText:      security.SanitizeString(params.CTAText, 60),
		CTAURL:       params.CTAURL,
		Trigger:      trigger,
		DelaySeconds: params.DelaySeconds,
		Active:       true,
	}

	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		if limit != Unlimited {
			count, err := CountForUser(tx, popup.UserID)
			if err != nil {
				return err
			}
			if count >= int64(limit) {
				return ErrLimitReached
			}
		}
		if err := tx.Create(popup).Error; err != nil {
			return fmt.Errorf("popups: create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("popup created",
		zap.String("popup_id", popup.ID),
		zap.String("user_id", popup.UserID),
		zap.String("type", popup.Type),
	)
	return popup, nil
}

// ListActive returns the account's active popups, oldest first.
func ListActive(db *gorm.DB, userID string) ([]Popup, error) {
	var list []Popup
	err := db.Where("user_id = ? AND active = ?", strings.ToLower(userID), true).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("popups: list active: %w", err)
	}
	return list, nil
}

// Get loads a popup by id.
func Get(db *gorm.DB, id string) (*Popup, error) {
	var popup Popup
	if err := db.Where("id = ?", strings.ToLower(id)).Take(&popup).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("popups: get: %w", err)
	}
	return &popup, nil
}

// NamesByID maps popup ids to names for the given account.
func NamesByID(db *gorm.DB, userID string) (map[string]string, error) {
	var rows []Popup
	if err := db.Select("id", "name").Where("user_id = ?", strings.ToLower(userID)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("popups: names: %w", err)
	}
	names := make(map[string]string, len(rows))
	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

// CountForUser counts every popup the account owns, active or not.
func CountForUser(db *gorm.DB, userID string) (int64, error) {
	var count int64
	if err := db.Model(&Popup{}).Where("user_id = ?", strings.ToLower(userID)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("popups: count: %w", err)
	}
	return count, nil
}

// SetActive toggles a popup the account owns.
func SetActive(ctx context.Context, logger *zap.Logger, db *gorm.DB, userID, popupID string, active bool) (*Popup, error) {
	var popup Popup
	err := dbtxn.WithRetry(ctx, logger, db, func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", strings.ToLower(popupID), strings.ToLower(userID)).Take(&popup).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("popups: load: %w", err)
		}
		if err := tx.Model(&popup).Update("active", active).Error; err != nil {
			return fmt.Errorf("popups: update: %w", err)
		}
		popup.Active = active
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("popup status changed",
		zap.String("popup_id", popup.ID),
		zap.Bool("active", active),
	)
	return &popup, nil
}
