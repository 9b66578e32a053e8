package jobs

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"poplift/internal/analytics"
	"poplift/internal/billing"
	"poplift/internal/config"
	"poplift/internal/database"
)

// SubscriptionExpiry ends canceling subscriptions whose period is over.
type SubscriptionExpiry struct{}

// Name implements Processor.
func (SubscriptionExpiry) Name() string { return "subscription_expiry" }

// ProcessBatch implements Processor.
func (SubscriptionExpiry) ProcessBatch(ctx *JobContext) error {
	n, err := billing.ExpireCanceled(ctx, ctx.Logger, ctx.DB, ctx.Now)
	if err != nil {
		return fmt.Errorf("expire subscriptions: %w", err)
	}
	if n > 0 {
		ctx.Logger.Info("expired canceled subscriptions", zap.Int("count", n))
	}
	return nil
}

// EventRetention purges analytics events older than the retention window.
type EventRetention struct {
	Days int
}

// Name implements Processor.
func (EventRetention) Name() string { return "event_retention" }

// ProcessBatch implements Processor.
func (r EventRetention) ProcessBatch(ctx *JobContext) error {
	if r.Days <= 0 {
		return nil
	}
	cutoff := ctx.Now.AddDate(0, 0, -r.Days)
	n, err := analytics.PurgeBefore(ctx.DB, cutoff)
	if err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	if n > 0 {
		ctx.Logger.Info("purged analytics events", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return nil
}

// WALCheckpoint folds the SQLite write-ahead log back into the database file.
type WALCheckpoint struct {
	Manager *database.Manager
}

// Name implements Processor.
func (WALCheckpoint) Name() string { return "wal_checkpoint" }

// ProcessBatch implements Processor.
func (w WALCheckpoint) ProcessBatch(_ *JobContext) error {
	return w.Manager.CheckpointWAL("PASSIVE")
}

// NewMaintenanceDispatcher wires the periodic maintenance processors.
func NewMaintenanceDispatcher(cfg *config.Config, logger *zap.Logger, db *database.Manager) *Dispatcher {
	interval := cfg.MaintenanceInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return NewDispatcher(
		logger.With(zap.String("component", "maintenance")),
		db,
		interval,
		SubscriptionExpiry{},
		EventRetention{Days: cfg.AnalyticsRetentionDays},
		WALCheckpoint{Manager: db},
	)
}
