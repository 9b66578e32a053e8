package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poplift/internal/billing"
	"poplift/internal/pkg/testsupport"
)

const userID = "3b241101-e2bb-4255-8caf-4136c566a962"

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestCurrentDefaultsToFree(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	account, err := billing.Current(db, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.PlanFree, account.Subscription.PlanType)
	assert.Equal(t, billing.StatusActive, account.Subscription.Status)
	assert.Empty(t, account.Addons)
	assert.Equal(t, 1, account.Limits.Popups)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("starts a one month period", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		sub, err := billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanStarter, sub.PlanType)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.True(t, sub.CurrentPeriodStart.Equal(now))
		assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)))
	})

	t.Run("rejects free and unknown plans", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanFree, now)
		assert.ErrorIs(t, err, billing.ErrInvalidPlan)
		_, err = billing.Subscribe(ctx, log, db, userID, "enterprise", now)
		assert.ErrorIs(t, err, billing.ErrInvalidPlan)
	})

	t.Run("rejects a second paid subscription", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)
		_, err = billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now)
		assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)
	})
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("from free", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		sub, err := billing.Upgrade(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanPro, sub.PlanType)
		assert.True(t, sub.CurrentPeriodEnd.Equal(now.AddDate(0, 1, 0)))
	})

	t.Run("keeps the billing period", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now)
		require.NoError(t, err)

		later := now.Add(72 * time.Hour)
		sub, err := billing.Upgrade(ctx, log, db, userID, billing.PlanBusiness, later)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanBusiness, sub.PlanType)
		assert.True(t, sub.CurrentPeriodStart.Equal(now))
	})

	t.Run("rejects same or lower plan", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)

		_, err = billing.Upgrade(ctx, log, db, userID, billing.PlanPro, now)
		assert.ErrorIs(t, err, billing.ErrNotAnUpgrade)
		_, err = billing.Upgrade(ctx, log, db, userID, billing.PlanStarter, now)
		assert.ErrorIs(t, err, billing.ErrNotAnUpgrade)
		_, err = billing.Upgrade(ctx, log, db, userID, "platinum", now)
		assert.ErrorIs(t, err, billing.ErrInvalidPlan)
	})

	t.Run("withdraws a pending cancellation", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now)
		require.NoError(t, err)
		_, err = billing.Cancel(ctx, log, db, userID, "too pricey", now)
		require.NoError(t, err)

		sub, err := billing.Upgrade(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.False(t, sub.CancelAtPeriodEnd)
		assert.Nil(t, sub.CanceledAt)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("schedules cancellation", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)

		sub, err := billing.Cancel(ctx, log, db, userID, "  <b>moving</b> on ", now)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCanceling, sub.Status)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, "&lt;b&gt;moving&lt;/b&gt; on", sub.CancelReason)
		require.NotNil(t, sub.CanceledAt)

		account, err := billing.Current(db, userID)
		require.NoError(t, err)
		assert.Equal(t, billing.PlanPro, account.Subscription.PlanType)
	})

	t.Run("free account", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Cancel(ctx, log, db, userID, "", now)
		assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
	})

	t.Run("twice", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanPro, now)
		require.NoError(t, err)
		_, err = billing.Cancel(ctx, log, db, userID, "", now)
		require.NoError(t, err)
		_, err = billing.Cancel(ctx, log, db, userID, "", now)
		assert.ErrorIs(t, err, billing.ErrAlreadyCanceled)
	})
}

func TestSetAddon(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("requires paid plan", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.SetAddon(ctx, log, db, userID, billing.AddonExtraPopups, true)
		assert.ErrorIs(t, err, billing.ErrAddonRequiresPaidPlan)
	})

	t.Run("unknown addon", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.SetAddon(ctx, log, db, userID, "free_money", true)
		assert.ErrorIs(t, err, billing.ErrInvalidAddon)
	})

	t.Run("enable then disable", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now)
		require.NoError(t, err)

		addon, err := billing.SetAddon(ctx, log, db, userID, billing.AddonExtraPopups, true)
		require.NoError(t, err)
		assert.True(t, addon.Active)

		account, err := billing.Current(db, userID)
		require.NoError(t, err)
		assert.Equal(t, 15, account.Limits.Popups)

		_, err = billing.SetAddon(ctx, log, db, userID, billing.AddonExtraPopups, false)
		require.NoError(t, err)

		account, err = billing.Current(db, userID)
		require.NoError(t, err)
		require.Len(t, account.Addons, 1)
		assert.False(t, account.Addons[0].Active)
		assert.Equal(t, 5, account.Limits.Popups)
	})

	t.Run("disable works on free plan", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)

		addon, err := billing.SetAddon(ctx, log, db, userID, billing.AddonRemoveBranding, false)
		require.NoError(t, err)
		assert.False(t, addon.Active)
	})
}

func TestExpireCanceled(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()
	db := testsupport.SetupTestDB(t)

	_, err := billing.Subscribe(ctx, log, db, userID, billing.PlanPro, now)
	require.NoError(t, err)
	_, err = billing.SetAddon(ctx, log, db, userID, billing.AddonPrioritySupport, true)
	require.NoError(t, err)
	_, err = billing.Cancel(ctx, log, db, userID, "", now)
	require.NoError(t, err)

	n, err := billing.ExpireCanceled(ctx, log, db, now.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Zero(t, n, "period has not ended")

	n, err = billing.ExpireCanceled(ctx, log, db, now.AddDate(0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	account, err := billing.Current(db, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.PlanFree, account.Subscription.PlanType)
	assert.Equal(t, billing.StatusCanceled, account.Subscription.Status)
	assert.Empty(t, account.ActiveAddonTypes())

	_, err = billing.Subscribe(ctx, log, db, userID, billing.PlanStarter, now.AddDate(0, 2, 0))
	assert.NoError(t, err, "expired account can subscribe again")
}

func TestEffectiveLimits(t *testing.T) {
	tests := []struct {
		name   string
		plan   string
		addons []string
		want   billing.Limits
	}{
		{"free", billing.PlanFree, nil, billing.Limits{Popups: 1, MonthlyViews: 1_000}},
		{"unknown falls back to free", "gold", nil, billing.Limits{Popups: 1, MonthlyViews: 1_000}},
		{"pro with extra popups", billing.PlanPro, []string{billing.AddonExtraPopups}, billing.Limits{Popups: 35, MonthlyViews: 100_000}},
		{"business stays unlimited", billing.PlanBusiness, []string{billing.AddonExtraPopups}, billing.Limits{Popups: billing.Unlimited, MonthlyViews: 1_000_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, billing.EffectiveLimits(tt.plan, tt.addons))
		})
	}
}

func TestCatalogOrder(t *testing.T) {
	assert.Equal(t, []string{"free", "starter", "pro", "business"}, billing.PlanTypes())
	plans := billing.Plans()
	for i := 1; i < len(plans); i++ {
		assert.Greater(t, plans[i].Rank, plans[i-1].Rank)
		assert.Greater(t, plans[i].PriceCents, plans[i-1].PriceCents)
	}
}
