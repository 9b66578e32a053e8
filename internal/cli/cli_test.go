package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poplift/internal/analytics"
)

func TestParseUserFlag(t *testing.T) {
	id, err := parseUserFlag(" 3B241101-E2BB-4255-8CAF-4136C566A962 ")
	require.NoError(t, err)
	assert.Equal(t, "3b241101-e2bb-4255-8caf-4136c566a962", id)

	_, err = parseUserFlag("")
	assert.Error(t, err)

	_, err = parseUserFlag("bob")
	assert.Error(t, err)
}

func TestValidDays(t *testing.T) {
	assert.True(t, validDays(7))
	assert.True(t, validDays(90))
	assert.False(t, validDays(14))
}

func TestRenderReport(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	report := analytics.Aggregate([]analytics.Event{
		{PopupID: "p1", EventType: analytics.EventImpression, VisitorHash: "a", CreatedAt: now},
		{PopupID: "p1", EventType: analytics.EventClick, VisitorHash: "a", CreatedAt: now},
	}, map[string]string{"p1": "Newsletter"}, 7, now)

	var buf bytes.Buffer
	renderReport(&buf, &report, false)

	out := buf.String()
	assert.Contains(t, out, "Last 7 days (2026-01-26 to 2026-02-01)")
	assert.Contains(t, out, "Newsletter")
	assert.Contains(t, out, "100.00%")
}

func TestRenderEmptyReport(t *testing.T) {
	report := analytics.Aggregate(nil, nil, 30, time.Now())

	var buf bytes.Buffer
	renderReport(&buf, &report, false)
	assert.Contains(t, buf.String(), "(no events)")
}

func TestIsTerminalBuffer(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
