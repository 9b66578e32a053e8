package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"poplift/internal/popups"
)

const dateLayout = "2006-01-02"

// Dashboard window sizes in days.
var AllowedDays = []int{7, 30, 90}

// DefaultDays is used when the caller does not choose a window.
const DefaultDays = 30

// Totals are event counts over the whole window.
type Totals struct {
	Impressions    int `json:"impressions"`
	Clicks         int `json:"clicks"`
	Closes         int `json:"closes"`
	Conversions    int `json:"conversions"`
	UniqueVisitors int `json:"unique_visitors"`
}

// Rates are percentages of impressions, rounded to two decimals.
type Rates struct {
	ClickThrough float64 `json:"click_through_rate"`
	Conversion   float64 `json:"conversion_rate"`
	Close        float64 `json:"close_rate"`
}

// PopupStats is the per-popup breakdown.
type PopupStats struct {
	PopupID     string  `json:"popup_id"`
	Name        string  `json:"name"`
	Impressions int     `json:"impressions"`
	Clicks      int     `json:"clicks"`
	Closes      int     `json:"closes"`
	Conversions int     `json:"conversions"`
	Rates       Rates   `json:"rates"`
	Share       float64 `json:"impression_share"`
}

// DailyPoint is one UTC day of the series.
type DailyPoint struct {
	Date        string `json:"date"`
	Impressions int    `json:"impressions"`
	Clicks      int    `json:"clicks"`
	Closes      int    `json:"closes"`
	Conversions int    `json:"conversions"`
}

// Report is the analytics dashboard payload.
type Report struct {
	Days   int          `json:"days"`
	From   string       `json:"from"`
	To     string       `json:"to"`
	Totals Totals       `json:"totals"`
	Rates  Rates        `json:"rates"`
	Popups []PopupStats `json:"popups"`
	Daily  []DailyPoint `json:"daily"`
}

// WindowStart returns UTC midnight of the first day of a days-long window ending today.
func WindowStart(now time.Time, days int) time.Time {
	today := now.UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -(days - 1))
}

// Record stores an event. CreatedAt defaults to the database clock when zero.
func Record(db *gorm.DB, event *Event) error {
	if err := db.Create(event).Error; err != nil {
		return fmt.Errorf("analytics: record: %w", err)
	}
	return nil
}

// Dashboard loads the account's events for the window and aggregates them.
func Dashboard(db *gorm.DB, userID string, days int, now time.Time) (*Report, error) {
	userID = strings.ToLower(userID)
	start := WindowStart(now, days)

	var events []Event
	err := db.Where("user_id = ? AND created_at >= ?", userID, start).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("analytics: load events: %w", err)
	}

	names, err := popups.NamesByID(db, userID)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}

	report := Aggregate(events, names, days, now)
	return &report, nil
}

// Aggregate computes the dashboard from raw events. Events outside the
// window are ignored. The daily series always has exactly days entries.
func Aggregate(events []Event, names map[string]string, days int, now time.Time) Report {
	if days <= 0 {
		days = DefaultDays
	}
	start := WindowStart(now, days)

	daily := make([]DailyPoint, days)
	dayIndex := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format(dateLayout)
		daily[i] = DailyPoint{Date: d}
		dayIndex[d] = i
	}

	var totals Totals
	perPopup := make(map[string]*PopupStats)
	visitors := make(map[string]struct{})

	for _, e := range events {
		idx, ok := dayIndex[e.CreatedAt.UTC().Format(dateLayout)]
		if !ok {
			continue
		}
		stats, ok := perPopup[e.PopupID]
		if !ok {
			stats = &PopupStats{PopupID: e.PopupID, Name: popupName(names, e.PopupID)}
			perPopup[e.PopupID] = stats
		}

		switch e.EventType {
		case EventImpression:
			totals.Impressions++
			stats.Impressions++
			daily[idx].Impressions++
		case EventClick:
			totals.Clicks++
			stats.Clicks++
			daily[idx].Clicks++
		case EventClose:
			totals.Closes++
			stats.Closes++
			daily[idx].Closes++
		case EventConversion:
			totals.Conversions++
			stats.Conversions++
			daily[idx].Conversions++
		}

		if v := visitorKey(e); v != "" {
			visitors[v] = struct{}{}
		}
	}
	totals.UniqueVisitors = len(visitors)

	breakdown := make([]PopupStats, 0, len(perPopup))
	for _, s := range perPopup {
		s.Rates = rates(s.Impressions, s.Clicks, s.Closes, s.Conversions)
		s.Share = percent(s.Impressions, totals.Impressions)
		breakdown = append(breakdown, *s)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Impressions != breakdown[j].Impressions {
			return breakdown[i].Impressions > breakdown[j].Impressions
		}
		if breakdown[i].Name != breakdown[j].Name {
			return breakdown[i].Name < breakdown[j].Name
		}
		return breakdown[i].PopupID < breakdown[j].PopupID
	})

	return Report{
		Days:   days,
		From:   daily[0].Date,
		To:     daily[days-1].Date,
		Totals: totals,
		Rates:  rates(totals.Impressions, totals.Clicks, totals.Closes, totals.Conversions),
		Popups: breakdown,
		Daily:  daily,
	}
}

// PurgeBefore deletes events created before cutoff.
func PurgeBefore(db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.Where("created_at < ?", cutoff).Delete(&Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("analytics: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func rates(impressions, clicks, closes, conversions int) Rates {
	return Rates{
		ClickThrough: percent(clicks, impressions),
		Conversion:   percent(conversions, impressions),
		Close:        percent(closes, impressions),
	}
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}

func visitorKey(e Event) string {
	if e.VisitorHash != "" {
		return "v:" + e.VisitorHash
	}
	if e.SessionID != "" {
		return "s:" + e.SessionID
	}
	return ""
}

func popupName(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return "Deleted popup"
}
