package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusCanceling = "canceling"
	StatusCanceled  = "canceled"
)

// Subscription is an account's plan. Accounts without a row are on the free plan.
type Subscription struct {
	ID                 string     `gorm:"size:36;primaryKey" json:"id,omitempty"`
	UserID             string     `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	PlanType           string     `gorm:"size:20;not null" json:"plan_type"`
	Status             string     `gorm:"size:20;not null;index" json:"status"`
	CurrentPeriodStart time.Time  `json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"index" json:"current_period_end"`
	CancelAtPeriodEnd  bool       `gorm:"not null" json:"cancel_at_period_end"`
	CancelReason       string     `gorm:"type:text" json:"cancel_reason,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a random UUID when none is set.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Paid reports whether the subscription currently grants a paid plan.
func (s *Subscription) Paid() bool {
	return s != nil && s.PlanType != PlanFree && s.Status != StatusCanceled
}

// AccountAddon records whether an addon is enabled for an account.
type AccountAddon struct {
	ID        string    `gorm:"size:36;primaryKey" json:"-"`
	UserID    string    `gorm:"size:36;uniqueIndex:idx_account_addon;not null" json:"-"`
	AddonType string    `gorm:"size:40;uniqueIndex:idx_account_addon;not null" json:"addon_type"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default table name.
func (AccountAddon) TableName() string {
	return "subscription_addons"
}

// BeforeCreate assigns a random UUID when none is set.
func (a *AccountAddon) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
