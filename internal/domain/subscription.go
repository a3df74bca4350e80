package domain

import "time"

// Tier is the subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Entitlement is the result of a subscription check.
type Entitlement struct {
	IsActive  bool
	Tier      Tier
	ExpiresAt time.Time
}

// Premium reports whether premium features are currently unlocked.
func (e Entitlement) Premium() bool {
	return e.IsActive && e.Tier == TierPremium
}

// ActionClass groups state-changing or resource-consuming actions for quota
// accounting.
type ActionClass string

const (
	ActionAddProduct    ActionClass = "add_product"
	ActionRemoveProduct ActionClass = "remove_product"
	ActionRecipe        ActionClass = "recipe"
)

// Window is a quota accounting period.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// UsageWindow reports consumption of one action class in one window.
// Limit 0 means unlimited.
type UsageWindow struct {
	Class  ActionClass
	Window Window
	Used   int
	Limit  int
}

// Ratio is Used/Limit, or 0 for unlimited windows.
func (u UsageWindow) Ratio() float64 {
	if u.Limit <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit)
}
