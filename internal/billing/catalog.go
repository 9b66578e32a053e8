package billing

import "poplift/internal/popups"

// Plan types in ascending rank.
const (
	PlanFree     = "free"
	PlanStarter  = "starter"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// Addon types.
const (
	AddonRemoveBranding    = "remove_branding"
	AddonExtraPopups       = "extra_popups"
	AddonAdvancedAnalytics = "advanced_analytics"
	AddonPrioritySupport   = "priority_support"
)

// Unlimited marks a plan limit with no cap.
const Unlimited = popups.Unlimited

// extraPopupsPerAddon is what the extra_popups addon adds to a capped plan.
const extraPopupsPerAddon = 10

// Plan is a catalog entry.
type Plan struct {
	Type         string   `json:"type"`
	Name         string   `json:"name"`
	Rank         int      `json:"-"`
	PriceCents   int      `json:"price_cents"`
	PopupLimit   int      `json:"popup_limit"`
	MonthlyViews int      `json:"monthly_views"`
	Features     []string `json:"features"`
}

// Addon is a paid extra on top of a plan.
type Addon struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
}

var plans = []Plan{
	{
		Type: PlanFree, Name: "Free", Rank: 0, PriceCents: 0, PopupLimit: 1, MonthlyViews: 1_000,
		Features: []string{"1 popup", "1,000 views per month", "Basic analytics"},
	},
	{
		Type: PlanStarter, Name: "Starter", Rank: 1, PriceCents: 900, PopupLimit: 5, MonthlyViews: 10_000,
		Features: []string{"5 popups", "10,000 views per month", "All popup types", "Email support"},
	},
	{
		Type: PlanPro, Name: "Pro", Rank: 2, PriceCents: 2900, PopupLimit: 25, MonthlyViews: 100_000,
		Features: []string{"25 popups", "100,000 views per month", "Exit-intent triggers", "Conversion tracking"},
	},
	{
		Type: PlanBusiness, Name: "Business", Rank: 3, PriceCents: 7900, PopupLimit: Unlimited, MonthlyViews: 1_000_000,
		Features: []string{"Unlimited popups", "1,000,000 views per month", "Team seats", "Dedicated support"},
	},
}

var addons = []Addon{
	{Type: AddonRemoveBranding, Name: "Remove branding", PriceCents: 500},
	{Type: AddonExtraPopups, Name: "10 extra popups", PriceCents: 700},
	{Type: AddonAdvancedAnalytics, Name: "Advanced analytics", PriceCents: 900},
	{Type: AddonPrioritySupport, Name: "Priority support", PriceCents: 1500},
}

// Plans returns the catalog in rank order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// Addons returns every purchasable addon.
func Addons() []Addon {
	out := make([]Addon, len(addons))
	copy(out, addons)
	return out
}

// PlanTypes lists plan type names in rank order.
func PlanTypes() []string {
	out := make([]string, len(plans))
	for i, p := range plans {
		out[i] = p.Type
	}
	return out
}

// AddonTypes lists addon type names.
func AddonTypes() []string {
	out := make([]string, len(addons))
	for i, a := range addons {
		out[i] = a.Type
	}
	return out
}

// LookupPlan finds a plan by type.
func LookupPlan(planType string) (Plan, bool) {
	for _, p := range plans {
		if p.Type == planType {
			return p, true
		}
	}
	return Plan{}, false
}

// Limits are the effective quotas of an account.
type Limits struct {
	Popups       int `json:"popups"`
	MonthlyViews int `json:"monthly_views"`
}

// EffectiveLimits applies active addons to the plan's quotas.
func EffectiveLimits(planType string, active []string) Limits {
	plan, ok := LookupPlan(planType)
	if !ok {
		plan, _ = LookupPlan(PlanFree)
	}
	limits := Limits{Popups: plan.PopupLimit, MonthlyViews: plan.MonthlyViews}
	for _, a := range active {
		if a == AddonExtraPopups && limits.Popups != Unlimited {
			limits.Popups += extraPopupsPerAddon
		}
	}
	return limits
}
