package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"poplift/internal/analytics"
	"poplift/internal/billing"
	"poplift/internal/popups"
)

// DemoUserID owns the sample data created by Seed.
const DemoUserID = "6f1c2d4e-8a3b-4c5d-9e7f-0a1b2c3d4e5f"

// Seed populates the database with sample data for development/testing.
func Seed(db *gorm.DB, now time.Time) error {
	now = now.UTC()

	var popupCount int64
	if err := db.Model(&popups.Popup{}).Where("user_id = ?", DemoUserID).Count(&popupCount).Error; err != nil {
		return fmt.Errorf("count popups: %w", err)
	}
	if popupCount > 0 {
		fmt.Println("✓ Demo account already seeded")
		return nil
	}

	sub := &billing.Subscription{
		UserID:             DemoUserID,
		PlanType:           billing.PlanPro,
		Status:             billing.StatusActive,
		CurrentPeriodStart: now.AddDate(0, 0, -10),
		CurrentPeriodEnd:   now.AddDate(0, 1, -10),
	}
	if err := db.Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	fmt.Println("✓ Created pro subscription for demo account", DemoUserID)

	samples := []*popups.Popup{
		{
			UserID: DemoUserID, Name: "Newsletter modal", Type: popups.TypeModal,
			Headline: "Join 5,000 readers", Body: "One email a week. No spam.",
			CTAText: "Subscribe", CTAURL: "https://example.com/subscribe",
			Trigger: popups.TriggerDelay, DelaySeconds: 5, Active: true,
		},
		{
			UserID: DemoUserID, Name: "Exit discount", Type: popups.TypeExitIntent,
			Headline: "Wait! 10% off", Body: "Use code STAY10 at checkout.",
			CTAText: "Shop now", CTAURL: "https://example.com/shop",
			Trigger: popups.TriggerExit, Active: true,
		},
		{
			UserID: DemoUserID, Name: "Launch banner", Type: popups.TypeBanner,
			Headline: "We just launched v2", CTAText: "Read more",
			CTAURL: "https://example.com/blog", Trigger: popups.TriggerImmediate, Active: false,
		},
	}
	for _, p := range samples {
		if err := db.Create(p).Error; err != nil {
			return fmt.Errorf("create popup %q: %w", p.Name, err)
		}
	}
	fmt.Printf("✓ Created %d sample popups\n", len(samples))

	events := 0
	for day := 0; day < 14; day++ {
		at := now.AddDate(0, 0, -day)
		for i, p := range samples[:2] {
			impressions := 20 + day + i*5
			for n := 0; n < impressions; n++ {
				eventType := analytics.EventImpression
				switch {
				case n%10 == 0:
					eventType = analytics.EventClick
				case n%17 == 0:
					eventType = analytics.EventConversion
				case n%4 == 0:
					eventType = analytics.EventClose
				}
				event := &analytics.Event{
					PopupID:     p.ID,
					UserID:      DemoUserID,
					EventType:   eventType,
					PageURL:     "https://example.com/",
					VisitorHash: fmt.Sprintf("seed%02d%03d", day, n),
					CreatedAt:   at.Add(-time.Duration(n) * time.Minute),
				}
				if err := db.Create(event).Error; err != nil {
					return fmt.Errorf("create event: %w", err)
				}
				events++
			}
		}
	}
	fmt.Printf("✓ Created %d sample events\n", events)

	fmt.Println("\n✅ Database seeded successfully!")
	return nil
}
