package usecase

import (
	"math"
	"time"

	"pantry-assistant/internal/domain"
)

// Bucket is how soon a product expires, in whole days.
type Bucket string

const (
	BucketToday    Bucket = "today"
	BucketTomorrow Bucket = "tomorrow"
	BucketThisWeek Bucket = "this_week"
	BucketLater    Bucket = "later"
)

// Variant names which shape of response to produce. The copy for each lives
// in messages.go.
type Variant string

const (
	VariantEmpty         Variant = "empty"
	VariantHasUrgent     Variant = "has_urgent"
	VariantHasUpcoming   Variant = "has_upcoming"
	VariantAllFresh      Variant = "all_fresh"
	VariantPremiumActive Variant = "premium_active"
	VariantFree          Variant = "free"
)

// upsellThreshold is the used/limit ratio above which a nudge is appended.
const upsellThreshold = 0.8

// UrgencyBucket rounds the time left up to whole days. Anything already
// expired is today.
func UrgencyBucket(now, expiresAt time.Time) Bucket {
	days := int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
	switch {
	case days <= 0:
		return BucketToday
	case days == 1:
		return BucketTomorrow
	case days <= 7:
		return BucketThisWeek
	default:
		return BucketLater
	}
}

func urgent(b Bucket) bool {
	return b == BucketToday || b == BucketTomorrow
}

// InventoryVariant picks the list response shape from the most pressing
// bucket present.
func InventoryVariant(now time.Time, products []domain.Product) Variant {
	if len(products) == 0 {
		return VariantEmpty
	}
	upcoming := false
	for _, p := range products {
		b := UrgencyBucket(now, p.ExpiresAt)
		if urgent(b) {
			return VariantHasUrgent
		}
		if b == BucketThisWeek {
			upcoming = true
		}
	}
	if upcoming {
		return VariantHasUpcoming
	}
	return VariantAllFresh
}

// TierVariant selects greeting and premium-info copy.
func TierVariant(ent domain.Entitlement) Variant {
	if ent.Premium() {
		return VariantPremiumActive
	}
	return VariantFree
}

// Upsell reports whether any limited window is above the nudge threshold.
func Upsell(windows []domain.UsageWindow) bool {
	for _, w := range windows {
		if w.Limit > 0 && w.Ratio() > upsellThreshold {
			return true
		}
	}
	return false
}

// upsellIntents are the responses a nudge may be appended to.
var upsellIntents = map[domain.IntentType]bool{
	domain.IntentListProducts:   true,
	domain.IntentUrgentProducts: true,
	domain.IntentAddProduct:     true,
	domain.IntentRecipeRequest:  true,
	domain.IntentUsageStats:     true,
}
