package analytics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event types accepted from embed scripts.
const (
	EventImpression = "impression"
	EventClick      = "click"
	EventClose      = "close"
	EventConversion = "conversion"
)

// EventTypes lists every accepted event type.
var EventTypes = []string{EventImpression, EventClick, EventClose, EventConversion}

// Event is one tracked popup interaction.
type Event struct {
	ID          string    `gorm:"size:36;primaryKey"`
	PopupID     string    `gorm:"size:36;index;not null"`
	UserID      string    `gorm:"size:36;index:idx_events_user_created;not null"`
	EventType   string    `gorm:"size:20;not null"`
	PageURL     string    `gorm:"size:2048"`
	SessionID   string    `gorm:"size:64"`
	VisitorHash string    `gorm:"size:32"`
	CreatedAt   time.Time `gorm:"index:idx_events_user_created"`
}

// TableName overrides the default "events" table name.
func (Event) TableName() string {
	return "analytics_events"
}

// BeforeCreate assigns a random UUID when none is set.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
