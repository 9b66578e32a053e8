package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"poplift/internal/analytics"
	"poplift/internal/billing"
	"poplift/internal/database"
	"poplift/internal/popups"
)

func openEmpty(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestVerifySchema(t *testing.T) {
	t.Run("empty database is rejected", func(t *testing.T) {
		db := openEmpty(t)
		err := database.VerifySchema(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing table")
	})

	t.Run("migrated database passes", func(t *testing.T) {
		db := openEmpty(t)
		require.NoError(t, database.Migrate(db))
		assert.NoError(t, database.VerifySchema(db))
	})

	t.Run("missing column is reported", func(t *testing.T) {
		db := openEmpty(t)
		require.NoError(t, database.Migrate(db))
		require.NoError(t, db.Migrator().DropColumn(&billing.Subscription{}, "cancel_reason"))

		err := database.VerifySchema(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cancel_reason")
	})
}

func TestSeed(t *testing.T) {
	db := openEmpty(t)
	require.NoError(t, database.Migrate(db))
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, database.Seed(db, now))

	account, err := billing.Current(db, database.DemoUserID)
	require.NoError(t, err)
	assert.Equal(t, billing.PlanPro, account.Subscription.PlanType)

	var popupCount, eventCount int64
	require.NoError(t, db.Model(&popups.Popup{}).Where("user_id = ?", database.DemoUserID).Count(&popupCount).Error)
	require.NoError(t, db.Model(&analytics.Event{}).Where("user_id = ?", database.DemoUserID).Count(&eventCount).Error)
	assert.Equal(t, int64(3), popupCount)
	assert.Positive(t, eventCount)

	t.Run("second run is a no-op", func(t *testing.T) {
		require.NoError(t, database.Seed(db, now))

		var again int64
		require.NoError(t, db.Model(&analytics.Event{}).Count(&again).Error)
		assert.Equal(t, eventCount, again)
	})
}
