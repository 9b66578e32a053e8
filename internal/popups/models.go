package popups

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Display types.
const (
	TypeModal      = "modal"
	TypeSlideIn    = "slide_in"
	TypeBanner     = "banner"
	TypeExitIntent = "exit_intent"
)

// Triggers.
const (
	TriggerImmediate = "immediate"
	TriggerDelay     = "delay"
	TriggerScroll    = "scroll"
	TriggerExit      = "exit"
)

// Types lists every accepted display type.
var Types = []string{TypeModal, TypeSlideIn, TypeBanner, TypeExitIntent}

// Triggers lists every accepted trigger.
var Triggers = []string{TriggerImmediate, TriggerDelay, TriggerScroll, TriggerExit}

// Popup is a conversion popup owned by one account.
type Popup struct {
	ID           string `gorm:"size:36;primaryKey"`
	UserID       string `gorm:"size:36;index:idx_popups_user_active;not null"`
	Name         string `gorm:"type:text;not null"`
	Type         string `gorm:"size:20;not null"`
	Headline     string `gorm:"type:text"`
	Body         string `gorm:"type:text"`
	CTAText      string `gorm:"column:cta_text;type:text"`
	CTAURL       string `gorm:"column:cta_url;size:2048"`
	Trigger      string `gorm:"size:20;not null;default:immediate"`
	DelaySeconds int    `gorm:"not null;default:0"`
	Active       bool   `gorm:"index:idx_popups_user_active;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate assigns a random UUID when none is set.
func (p *Popup) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Public is the shape served to the embed script.
type Public struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Headline     string `json:"headline"`
	Body         string `json:"body"`
	CTAText      string `json:"cta_text"`
	CTAURL       string `json:"cta_url"`
	Trigger      string `json:"trigger"`
	DelaySeconds int    `json:"delay_seconds"`
}

// Public strips owner and bookkeeping fields.
func (p Popup) Public() Public {
	return Public{
		ID:           p.ID,
		Name:         p.Name,
		Type:         p.Type,
		Headline:     p.Headline,
		Body:         p.Body,
		CTAText:      p.CTAText,
		CTAURL:       p.CTAURL,
		Trigger:      p.Trigger,
		DelaySeconds: p.DelaySeconds,
	}
}
