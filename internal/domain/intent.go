package domain

// IntentType is the fixed repertoire a message can be classified into.
type IntentType string

const (
	IntentGreeting       IntentType = "greeting"
	IntentAddProduct     IntentType = "add_product"
	IntentListProducts   IntentType = "list_products"
	IntentRemoveProduct  IntentType = "remove_product"
	IntentUrgentProducts IntentType = "urgent_products"
	IntentRecipeRequest  IntentType = "recipe_request"
	IntentPremiumInfo    IntentType = "premium_info"
	IntentUsageStats     IntentType = "usage_stats"
	IntentStats          IntentType = "stats"
	IntentHelp           IntentType = "help"
	IntentUnknown        IntentType = "unknown"
)

// IntentTypes lists the repertoire in a stable order.
func IntentTypes() []IntentType {
	return []IntentType{
		IntentGreeting,
		IntentAddProduct,
		IntentListProducts,
		IntentRemoveProduct,
		IntentUrgentProducts,
		IntentRecipeRequest,
		IntentPremiumInfo,
		IntentUsageStats,
		IntentStats,
		IntentHelp,
		IntentUnknown,
	}
}

// ParseIntentType maps a raw label onto the repertoire; anything else is
// IntentUnknown.
func ParseIntentType(raw string) IntentType {
	for _, t := range IntentTypes() {
		if string(t) == raw {
			return t
		}
	}
	return IntentUnknown
}

// Slot keys the classifier may fill.
const (
	SlotProduct = "product"
)

// Intent is the classified purpose of a message plus whatever slots the
// classifier could extract.
type Intent struct {
	Type      IntentType
	Extracted map[string]string
}

// Slot returns an extracted value or "".
func (i Intent) Slot(key string) string {
	if i.Extracted == nil {
		return ""
	}
	return i.Extracted[key]
}
