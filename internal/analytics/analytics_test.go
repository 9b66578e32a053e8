package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"poplift/internal/analytics"
	"poplift/internal/pkg/testsupport"
	"poplift/internal/popups"
)

const owner = "1c9a7f3e-4b2d-4e8f-a6c5-3d2b1a0f9e8d"

var now = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

func event(popupID, eventType, visitor string, at time.Time) analytics.Event {
	return analytics.Event{PopupID: popupID, UserID: owner, EventType: eventType, VisitorHash: visitor, CreatedAt: at}
}

func TestWindowStart(t *testing.T) {
	start := analytics.WindowStart(now, 7)
	assert.Equal(t, time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC), start)
}

func TestAggregate(t *testing.T) {
	names := map[string]string{"a": "Alpha", "b": "Beta"}
	events := []analytics.Event{
		event("a", analytics.EventImpression, "v1", now),
		event("a", analytics.EventImpression, "v2", now),
		event("a", analytics.EventImpression, "v3", now.AddDate(0, 0, -1)),
		event("a", analytics.EventClick, "v1", now),
		event("a", analytics.EventConversion, "v1", now),
		event("b", analytics.EventImpression, "v1", now.AddDate(0, 0, -2)),
		event("b", analytics.EventClose, "v1", now.AddDate(0, 0, -2)),
		event("c", analytics.EventImpression, "", now),
		// outside a 7 day window
		event("a", analytics.EventImpression, "v9", now.AddDate(0, 0, -7)),
	}

	report := analytics.Aggregate(events, names, 7, now)

	assert.Equal(t, 7, report.Days)
	assert.Equal(t, "2026-05-14", report.From)
	assert.Equal(t, "2026-05-20", report.To)

	assert.Equal(t, analytics.Totals{
		Impressions:    5,
		Clicks:         1,
		Closes:         1,
		Conversions:    1,
		UniqueVisitors: 3,
	}, report.Totals)
	assert.Equal(t, analytics.Rates{ClickThrough: 20, Conversion: 20, Close: 20}, report.Rates)

	require.Len(t, report.Popups, 3)
	assert.Equal(t, "a", report.Popups[0].PopupID)
	assert.Equal(t, 3, report.Popups[0].Impressions)
	assert.Equal(t, 33.33, report.Popups[0].Rates.ClickThrough)
	assert.Equal(t, 60.0, report.Popups[0].Share)
	// ties on impressions order by name
	assert.Equal(t, "Beta", report.Popups[1].Name)
	assert.Equal(t, "Deleted popup", report.Popups[2].Name)
	assert.Equal(t, 100.0, report.Popups[1].Rates.Close)

	require.Len(t, report.Daily, 7)
	assert.Equal(t, "2026-05-14", report.Daily[0].Date)
	assert.Equal(t, 0, report.Daily[0].Impressions)
	assert.Equal(t, 1, report.Daily[4].Impressions)
	assert.Equal(t, 1, report.Daily[4].Closes)
	assert.Equal(t, 1, report.Daily[5].Impressions)
	assert.Equal(t, 3, report.Daily[6].Impressions)
	assert.Equal(t, 1, report.Daily[6].Clicks)
}

func TestAggregateEmpty(t *testing.T) {
	report := analytics.Aggregate(nil, nil, 30, now)

	assert.Len(t, report.Daily, 30)
	assert.Empty(t, report.Popups)
	assert.Equal(t, analytics.Rates{}, report.Rates)
	assert.Zero(t, report.Totals.UniqueVisitors)
}

func TestAggregateSessionFallback(t *testing.T) {
	events := []analytics.Event{
		{PopupID: "a", EventType: analytics.EventImpression, SessionID: "s1", CreatedAt: now},
		{PopupID: "a", EventType: analytics.EventImpression, SessionID: "s1", CreatedAt: now},
		{PopupID: "a", EventType: analytics.EventImpression, SessionID: "s2", CreatedAt: now},
	}
	report := analytics.Aggregate(events, nil, 7, now)
	assert.Equal(t, 2, report.Totals.UniqueVisitors)
}

func TestDashboardAndPurge(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	ctx := context.Background()

	popup, err := popups.Create(ctx, zap.NewNop(), db, popups.CreateParams{
		UserID: owner, Name: "Welcome", Type: popups.TypeSlideIn,
	}, popups.Unlimited)
	require.NoError(t, err)

	records := []analytics.Event{
		event(popup.ID, analytics.EventImpression, "v1", now.Add(-time.Hour)),
		event(popup.ID, analytics.EventClick, "v1", now.Add(-time.Hour)),
		event(popup.ID, analytics.EventImpression, "v2", now.AddDate(0, 0, -60)),
		{PopupID: popup.ID, UserID: "ffffffff-ffff-4fff-bfff-ffffffffffff", EventType: analytics.EventImpression, CreatedAt: now},
	}
	for i := range records {
		require.NoError(t, analytics.Record(db, &records[i]))
	}

	report, err := analytics.Dashboard(db, owner, 30, now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.Impressions)
	assert.Equal(t, 1, report.Totals.Clicks)
	require.Len(t, report.Popups, 1)
	assert.Equal(t, "Welcome", report.Popups[0].Name)

	report, err = analytics.Dashboard(db, owner, 90, now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Totals.Impressions)

	purged, err := analytics.PurgeBefore(db, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}
