package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Route tags name a rate-limit budget and prefix the limiter identifier.
const (
	TagPopups           = "popups"
	TagTrack            = "track"
	TagPixel            = "pixel"
	TagEmbed            = "embed"
	TagPricing          = "pricing"
	TagPopupWrite       = "popup_write"
	TagSubscriptionRead = "subscription_read"
	TagAnalytics        = "analytics"
	TagSubscription     = "subscription"
	TagUpgrade          = "upgrade"
	TagCancel           = "cancel"
	TagAddons           = "addons"
)

// RateBudget is the number of requests a client may make per window on one route.
type RateBudget struct {
	Limit  int
	Window time.Duration
}

var defaultRateBudgets = map[string]RateBudget{
	TagPopups:           {Limit: 100, Window: time.Minute},
	TagTrack:            {Limit: 120, Window: time.Minute},
	TagPixel:            {Limit: 120, Window: time.Minute},
	TagEmbed:            {Limit: 60, Window: time.Minute},
	TagPricing:          {Limit: 60, Window: time.Minute},
	TagPopupWrite:       {Limit: 30, Window: time.Minute},
	TagSubscriptionRead: {Limit: 30, Window: time.Minute},
	TagAnalytics:        {Limit: 30, Window: time.Minute},
	TagSubscription:     {Limit: 10, Window: time.Hour},
	TagUpgrade:          {Limit: 10, Window: time.Hour},
	TagCancel:           {Limit: 5, Window: time.Hour},
	TagAddons:           {Limit: 10, Window: time.Hour},
}

// RateBudget returns the budget for a route tag. POPLIFT_RATELIMIT_<TAG>
// overrides the request count; the window is fixed per tag.
// Unknown tags get a zero budget, which the limiter treats as unlimited.
func (c *Config) RateBudget(tag string) RateBudget {
	budget, ok := defaultRateBudgets[tag]
	if !ok {
		log.Printf("config: no rate limit budget for tag %q", tag)
		return RateBudget{}
	}
	budget.Limit = parseEnvInt("POPLIFT_RATELIMIT_"+strings.ToUpper(tag), budget.Limit)
	return budget
}

// RateBudgetTags lists every known route tag.
func RateBudgetTags() []string {
	return []string{
		TagPopups, TagTrack, TagPixel, TagEmbed, TagPricing,
		TagPopupWrite, TagSubscriptionRead, TagAnalytics,
		TagSubscription, TagUpgrade, TagCancel, TagAddons,
	}
}

func parseEnvInt(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		log.Printf("config: invalid value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return parsed
}
