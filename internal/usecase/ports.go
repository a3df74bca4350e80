package usecase

import (
	"context"

	"pantry-assistant/internal/domain"
)

type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, channelAddress string) (domain.Identity, error)
}

// ActivityToucher records the last time an identity wrote in. Best effort.
type ActivityToucher interface {
	TouchActivity(ctx context.Context, identityID string) error
}

// ContextStore holds at most one ConversationContext per identity. Take
// removes and returns it atomically; of concurrent takers at most one gets
// it. Take may return an expired context; callers decide liveness.
type ContextStore interface {
	TakeContext(ctx context.Context, identityID string) (*domain.ConversationContext, error)
	SetContext(ctx context.Context, identityID string, cc domain.ConversationContext) error
}

type RateLimiter interface {
	Allow(ctx context.Context, channelAddress string) (bool, error)
}

// UsageLimiter meters action classes. When Allow returns false it has already
// told the user why.
type UsageLimiter interface {
	Allow(ctx context.Context, ident domain.Identity, class domain.ActionClass) (bool, error)
	Usage(ctx context.Context, identityID string) ([]domain.UsageWindow, error)
}

type IntentClassifier interface {
	Classify(ctx context.Context, text string) (domain.Intent, error)
}

// Reclassifier answers the yes/no questions tried when classification
// returns unknown.
type Reclassifier interface {
	CouldBeProduct(ctx context.Context, text string) (bool, error)
	CouldBeRecipe(ctx context.Context, text string) (bool, error)
}

type Inventory interface {
	AddByText(ctx context.Context, ownerID, text string) (domain.Product, error)
	List(ctx context.Context, ownerID string) ([]domain.Product, error)
	FindMatches(ctx context.Context, ownerID, name string) ([]domain.Product, error)
	RemoveByID(ctx context.Context, ownerID string, captured domain.Product) (domain.RemovalRecord, error)
	WeeklyTrend(ctx context.Context, ownerID string) (domain.WeeklyTrend, error)
	WasteEstimate(ctx context.Context, ownerID string) (domain.WasteEstimate, error)
}

type EntitlementChecker interface {
	Entitlement(ctx context.Context, identityID string) (domain.Entitlement, error)
}

type RecipeGenerator interface {
	QuickRecipe(ctx context.Context, names []string) (string, error)
	DetailedRecipe(ctx context.Context, products []domain.Product) (string, error)
}

type Sender interface {
	Send(ctx context.Context, channelAddress, text string) error
}

type Telemetry interface {
	TrackMessage(ctx context.Context, identityID, intent string)
	TrackEvent(ctx context.Context, name string, props map[string]string)
	TrackError(ctx context.Context, err error, props map[string]string)
}
