package domain

import "time"

// PendingAction names the unfinished multi-turn exchange a context resumes.
type PendingAction string

const (
	PendingNone           PendingAction = ""
	PendingClarifyProduct PendingAction = "clarify_product"
	PendingConfirmRemoval PendingAction = "confirm_removal"
	PendingRecipeFollowup PendingAction = "recipe_followup"
)

// Candidate is one entry of a presented disambiguation list. Fields are
// captured when the list is shown and are not re-fetched on resolution.
type Candidate struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Meta        string    `json:"meta,omitempty"`
	Name        string    `json:"name,omitempty"`
	AddedAt     time.Time `json:"addedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Product returns the product as it was when the candidate was presented.
func (c Candidate) Product() Product {
	return Product{ID: c.ID, Name: c.Name, AddedAt: c.AddedAt, ExpiresAt: c.ExpiresAt}
}

// ContextPayload carries the variant data for a pending action. Only the
// fields matching ConversationContext.PendingAction are populated.
type ContextPayload struct {
	// ClarifyProduct
	OriginalText string `json:"originalText,omitempty"`
	// ConfirmRemoval, in presented order.
	Candidates []Candidate `json:"candidates,omitempty"`
	// RecipeFollowup
	Products []Product `json:"products,omitempty"`
}

// ConversationContext is the ephemeral state for one identity's unfinished
// exchange. At most one exists per identity.
type ConversationContext struct {
	OwnerID       string
	PendingAction PendingAction
	Payload       ContextPayload
	ExpiresAt     time.Time
}

// Live reports whether the context can be resumed at now. Expired contexts
// behave exactly like absent ones.
func (c *ConversationContext) Live(now time.Time) bool {
	if c == nil || c.PendingAction == PendingNone {
		return false
	}
	return !now.After(c.ExpiresAt)
}
