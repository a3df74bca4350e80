package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/textnorm"
)

const (
	defaultContextTTL    = 10 * time.Minute
	defaultMaxMessageLen = 1000
)

// Deps are the collaborators a Dispatcher needs. All are required.
type Deps struct {
	Rate         RateLimiter
	Identities   IdentityResolver
	Activity     ActivityToucher
	Contexts     ContextStore
	Usage        UsageLimiter
	Classifier   IntentClassifier
	Reclassifier Reclassifier
	Inventory    Inventory
	Entitlements EntitlementChecker
	Recipes      RecipeGenerator
	Sender       Sender
	Telemetry    Telemetry
}

func (d Deps) validate() error {
	checks := []struct {
		ok   bool
		name string
	}{
		{d.Rate != nil, "rate limiter"},
		{d.Identities != nil, "identity resolver"},
		{d.Activity != nil, "activity toucher"},
		{d.Contexts != nil, "context store"},
		{d.Usage != nil, "usage limiter"},
		{d.Classifier != nil, "intent classifier"},
		{d.Reclassifier != nil, "reclassifier"},
		{d.Inventory != nil, "inventory"},
		{d.Entitlements != nil, "entitlement checker"},
		{d.Recipes != nil, "recipe generator"},
		{d.Sender != nil, "sender"},
		{d.Telemetry != nil, "telemetry"},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("usecase: %s must not be nil", c.name)
		}
	}
	return nil
}

// Dispatcher turns one inbound chat message into replies. Turns of the same
// identity run one at a time; different identities never wait on each other.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
	maxLen int
	locks  *turnLocks
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithContextTTL sets how long a pending action stays resumable.
func WithContextTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithMaxMessageLength truncates longer inbound text, in runes.
func WithMaxMessageLength(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxLen = n
		}
	}
}

func NewDispatcher(deps Deps, opts ...Option) (*Dispatcher, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		deps:   deps,
		logger: slog.Default(),
		now:    time.Now,
		ttl:    defaultContextTTL,
		maxLen: defaultMaxMessageLen,
		locks:  newTurnLocks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// turn is the per-message state threaded through handlers.
type turn struct {
	ident  domain.Identity
	text   string
	intent domain.Intent
	now    time.Time
}

// reply is what a handler produced. denied means the usage limiter already
// answered and nothing else may happen this turn.
type reply struct {
	text   string
	next   *domain.ConversationContext
	usage  []domain.UsageWindow
	denied bool
}

var deniedReply = reply{denied: true}

// Handle processes one inbound message. It never returns an error or panics;
// failures become an apology to the user and an error telemetry record.
func (d *Dispatcher) Handle(ctx context.Context, channelAddress, text string) {
	channelAddress = strings.TrimSpace(channelAddress)
	ident := domain.Identity{ChannelAddress: channelAddress}
	tag := "none"
	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, ident, newError(ErrorPanic, "handler_panic", fmt.Errorf("%v", r)), tag)
		}
	}()

	allowed, err := d.deps.Rate.Allow(ctx, channelAddress)
	if err != nil {
		d.logger.Warn("rate limiter unavailable, allowing message", "err", err)
		allowed = true
	}
	if !allowed {
		d.send(ctx, channelAddress, msgThrottled)
		return
	}

	resolved, err := d.resolveIdentity(ctx, channelAddress)
	if err != nil {
		d.logger.Error("failed to resolve identity", "err", err)
		d.send(ctx, channelAddress, msgConnectivity)
		return
	}
	ident = resolved

	release := d.locks.lock(ident.ID)
	defer release()

	if err := d.deps.Activity.TouchActivity(ctx, ident.ID); err != nil {
		d.logger.Warn("failed to touch activity", "identity", ident.ID, "err", err)
	}

	t := &turn{ident: ident, text: textnorm.Clean(text, d.maxLen), now: d.now()}

	// Take, not get: the turn lock only covers this process, and a context
	// must be resumed by one turn at most.
	cc, err := d.deps.Contexts.TakeContext(ctx, ident.ID)
	if err != nil {
		d.fail(ctx, ident, newError(ErrorContextStore, "context_load_error", err), tag)
		return
	}
	if cc.Live(t.now) {
		tag = "resume_" + string(cc.PendingAction)
		r, err := d.resume(ctx, t, cc)
		if err != nil {
			d.fail(ctx, ident, asError(err, "resume_error"), tag)
			return
		}
		if r.denied {
			return
		}
		d.send(ctx, ident.ChannelAddress, r.text)
		d.deps.Telemetry.TrackMessage(ctx, ident.ID, tag)
		return
	}

	dispatched, r, err := d.classifyAndRoute(ctx, t)
	tag = string(dispatched)
	if err != nil {
		d.fail(ctx, ident, asError(err, "handler_error"), tag)
		return
	}
	if r.denied {
		return
	}
	if r.next != nil {
		if err := d.deps.Contexts.SetContext(ctx, ident.ID, *r.next); err != nil {
			d.fail(ctx, ident, newError(ErrorContextStore, "context_save_error", err), tag)
			return
		}
	}
	if upsellIntents[dispatched] && d.shouldUpsell(ctx, ident.ID, r.usage) {
		r.text += "\n\n" + msgUpsell
	}
	d.send(ctx, ident.ChannelAddress, r.text)
	d.deps.Telemetry.TrackMessage(ctx, ident.ID, tag)
}

func (d *Dispatcher) resolveIdentity(ctx context.Context, channelAddress string) (domain.Identity, error) {
	if channelAddress == "" {
		return domain.Identity{}, newError(ErrorIdentityUnavailable, "empty_channel_address", nil)
	}
	ident, err := d.deps.Identities.ResolveIdentity(ctx, channelAddress)
	if err != nil {
		return domain.Identity{}, newError(ErrorIdentityUnavailable, "identity_resolve_error", err)
	}
	if ident.ChannelAddress == "" {
		ident.ChannelAddress = channelAddress
	}
	return ident, nil
}

// classifyAndRoute classifies the text and runs the matching handler. It
// returns the intent actually dispatched to, which differs from the
// classifier's answer when the unknown fallback re-routes.
func (d *Dispatcher) classifyAndRoute(ctx context.Context, t *turn) (domain.IntentType, reply, error) {
	if t.text == "" {
		t.intent = domain.Intent{Type: domain.IntentHelp}
		return domain.IntentHelp, reply{text: msgHelp}, nil
	}
	intent, err := d.deps.Classifier.Classify(ctx, t.text)
	if err != nil {
		return domain.IntentUnknown, reply{}, newError(ErrorClassification, "classify_error", err)
	}
	t.intent = intent

	typ := intent.Type
	if typ == domain.IntentUnknown {
		typ = d.reclassify(ctx, t.text)
	}
	r, err := d.route(ctx, t, typ)
	return typ, r, err
}

// reclassify asks the product question first and then the recipe question.
// The first yes wins; otherwise the message gets help.
func (d *Dispatcher) reclassify(ctx context.Context, text string) domain.IntentType {
	ok, err := d.deps.Reclassifier.CouldBeProduct(ctx, text)
	if err != nil {
		d.logger.Warn("product reclassification failed", "err", err)
	}
	if ok {
		return domain.IntentAddProduct
	}
	ok, err = d.deps.Reclassifier.CouldBeRecipe(ctx, text)
	if err != nil {
		d.logger.Warn("recipe reclassification failed", "err", err)
	}
	if ok {
		return domain.IntentRecipeRequest
	}
	return domain.IntentHelp
}

func (d *Dispatcher) route(ctx context.Context, t *turn, typ domain.IntentType) (reply, error) {
	switch typ {
	case domain.IntentGreeting:
		return d.greeting(ctx, t)
	case domain.IntentAddProduct:
		return d.addProduct(ctx, t)
	case domain.IntentListProducts:
		return d.listProducts(ctx, t)
	case domain.IntentRemoveProduct:
		return d.removeProduct(ctx, t)
	case domain.IntentUrgentProducts:
		return d.urgentProducts(ctx, t)
	case domain.IntentRecipeRequest:
		return d.recipeRequest(ctx, t)
	case domain.IntentPremiumInfo:
		return d.premiumInfo(ctx, t)
	case domain.IntentUsageStats:
		return d.usageStats(ctx, t)
	case domain.IntentStats:
		return d.stats(ctx, t)
	case domain.IntentHelp, domain.IntentUnknown:
		return reply{text: msgHelp}, nil
	default:
		d.logger.Warn("unhandled intent type", "intent", string(typ))
		return reply{text: msgHelp}, nil
	}
}

func (d *Dispatcher) shouldUpsell(ctx context.Context, identityID string, windows []domain.UsageWindow) bool {
	if windows == nil {
		var err error
		windows, err = d.deps.Usage.Usage(ctx, identityID)
		if err != nil {
			d.logger.Warn("failed to read usage for upsell", "identity", identityID, "err", err)
			return false
		}
	}
	return Upsell(windows)
}

func (d *Dispatcher) newContext(t *turn, action domain.PendingAction, payload domain.ContextPayload) *domain.ConversationContext {
	return &domain.ConversationContext{
		OwnerID:       t.ident.ID,
		PendingAction: action,
		Payload:       payload,
		ExpiresAt:     t.now.Add(d.ttl),
	}
}

func (d *Dispatcher) send(ctx context.Context, channelAddress, text string) {
	if err := d.deps.Sender.Send(ctx, channelAddress, text); err != nil {
		d.logger.Error("failed to send message", "err", err)
	}
}

func (d *Dispatcher) fail(ctx context.Context, ident domain.Identity, err *Error, intent string) {
	d.logger.Error("failed to handle message",
		"identity", ident.ID,
		"code", string(err.Code),
		"reason", err.Reason,
		"intent", intent,
		"err", err,
	)
	d.send(ctx, ident.ChannelAddress, msgApology)
	d.deps.Telemetry.TrackError(ctx, err, map[string]string{
		"identity": ident.ID,
		"code":     string(err.Code),
		"reason":   err.Reason,
		"intent":   intent,
	})
}
