package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/inventory"
	"pantry-assistant/internal/textnorm"
)

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

const testAddr = "34600111222"

type fakeRate struct {
	mu    sync.Mutex
	allow bool
	err   error
	calls int
}

func (f *fakeRate) Allow(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.allow, f.err
}

type fakeIdentities struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeIdentities) ResolveIdentity(_ context.Context, addr string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Identity{}, f.err
	}
	id := "u1"
	if addr != testAddr {
		id = "u-" + addr
	}
	return domain.Identity{ID: id, ChannelAddress: addr}, nil
}

type fakeActivity struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeActivity) TouchActivity(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeContexts struct {
	mu      sync.Mutex
	items   map[string]domain.ConversationContext
	takeErr error
	setErr  error
	takes   int
	sets    int
}

func (f *fakeContexts) TakeContext(_ context.Context, id string) (*domain.ConversationContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.takes++
	if f.takeErr != nil {
		return nil, f.takeErr
	}
	cc, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	delete(f.items, id)
	return &cc, nil
}

func (f *fakeContexts) SetContext(_ context.Context, id string, cc domain.ConversationContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.items[id] = cc
	return nil
}

// fakeUsage sends its own denial, as the real limiter does.
type fakeUsage struct {
	sender     *fakeSender
	deny       map[domain.ActionClass]bool
	err        error
	allowed    []domain.ActionClass
	windows    []domain.UsageWindow
	usageErr   error
	usageCalls int
}

func (f *fakeUsage) Allow(ctx context.Context, ident domain.Identity, class domain.ActionClass) (bool, error) {
	f.allowed = append(f.allowed, class)
	if f.err != nil {
		return false, f.err
	}
	if f.deny[class] {
		_ = f.sender.Send(ctx, ident.ChannelAddress, "limite alcanzado")
		return false, nil
	}
	return true, nil
}

func (f *fakeUsage) Usage(_ context.Context, _ string) ([]domain.UsageWindow, error) {
	f.usageCalls++
	return f.windows, f.usageErr
}

type fakeClassifier struct {
	mu     sync.Mutex
	intent domain.Intent
	byText map[string]domain.Intent
	err    error
	panicV any
	texts  []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (domain.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.panicV != nil {
		panic(f.panicV)
	}
	if in, ok := f.byText[text]; ok {
		return in, nil
	}
	return f.intent, f.err
}

type fakeReclassifier struct {
	product bool
	recipe  bool
	err     error
	asked   []string
}

func (f *fakeReclassifier) CouldBeProduct(_ context.Context, _ string) (bool, error) {
	f.asked = append(f.asked, "product")
	return f.product, f.err
}

func (f *fakeReclassifier) CouldBeRecipe(_ context.Context, _ string) (bool, error) {
	f.asked = append(f.asked, "recipe")
	return f.recipe, f.err
}

type fakeInventory struct {
	mu sync.Mutex

	products  []domain.Product
	addResult domain.Product
	addErrs   []error
	addTexts  []string
	listErr   error
	removed   []string
	captured  []domain.Product
	removeErr error
	trend     domain.WeeklyTrend
	waste     domain.WasteEstimate
	statsErr  error
	calls     int
}

func (f *fakeInventory) AddByText(_ context.Context, _ string, text string) (domain.Product, error) {
	f.calls++
	f.addTexts = append(f.addTexts, text)
	if len(f.addErrs) > 0 {
		err := f.addErrs[0]
		f.addErrs = f.addErrs[1:]
		if err != nil {
			return domain.Product{}, err
		}
	}
	return f.addResult, nil
}

func (f *fakeInventory) List(_ context.Context, _ string) ([]domain.Product, error) {
	f.calls++
	return append([]domain.Product(nil), f.products...), f.listErr
}

func (f *fakeInventory) FindMatches(_ context.Context, _ string, name string) ([]domain.Product, error) {
	f.calls++
	var out []domain.Product
	for _, p := range f.products {
		if textnorm.Contains(p.Name, name) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeInventory) RemoveByID(_ context.Context, _ string, captured domain.Product) (domain.RemovalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.removeErr != nil {
		return domain.RemovalRecord{}, f.removeErr
	}
	f.removed = append(f.removed, captured.ID)
	f.captured = append(f.captured, captured)
	return domain.RemovalRecord{
		ProductID: captured.ID,
		Name:      captured.Name,
		ExpiresAt: captured.ExpiresAt,
		RemovedAt: fixedNow,
		Wasted:    fixedNow.After(captured.ExpiresAt),
	}, nil
}

func (f *fakeInventory) WeeklyTrend(_ context.Context, _ string) (domain.WeeklyTrend, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.trend, f.statsErr
}

func (f *fakeInventory) WasteEstimate(_ context.Context, _ string) (domain.WasteEstimate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.waste, nil
}

type fakeEntitlements struct {
	ent   domain.Entitlement
	err   error
	calls int
}

func (f *fakeEntitlements) Entitlement(_ context.Context, _ string) (domain.Entitlement, error) {
	f.calls++
	return f.ent, f.err
}

type fakeRecipes struct {
	quick            string
	detailed         string
	err              error
	quickNames       []string
	detailedProducts []domain.Product
	calls            int
}

func (f *fakeRecipes) QuickRecipe(_ context.Context, names []string) (string, error) {
	f.calls++
	f.quickNames = names
	return f.quick, f.err
}

func (f *fakeRecipes) DetailedRecipe(_ context.Context, products []domain.Product) (string, error) {
	f.calls++
	f.detailedProducts = products
	return f.detailed, f.err
}

type sent struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) Send(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text})
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return ""
	}
	return f.msgs[len(f.msgs)-1].text
}

type fakeTelemetry struct {
	mu       sync.Mutex
	messages []string
	events   []string
	errors   []map[string]string
}

func (f *fakeTelemetry) TrackMessage(_ context.Context, _ string, intent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, intent)
}

func (f *fakeTelemetry) TrackEvent(_ context.Context, name string, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, name)
}

func (f *fakeTelemetry) TrackError(_ context.Context, _ error, props map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, props)
}

type harness struct {
	rate         *fakeRate
	identities   *fakeIdentities
	activity     *fakeActivity
	contexts     *fakeContexts
	usage        *fakeUsage
	classifier   *fakeClassifier
	reclassifier *fakeReclassifier
	inventory    *fakeInventory
	entitlements *fakeEntitlements
	recipes      *fakeRecipes
	sender       *fakeSender
	telemetry    *fakeTelemetry

	now time.Time
	d   *Dispatcher
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	sender := &fakeSender{}
	h := &harness{
		rate:         &fakeRate{allow: true},
		identities:   &fakeIdentities{},
		activity:     &fakeActivity{},
		contexts:     &fakeContexts{items: map[string]domain.ConversationContext{}},
		usage:        &fakeUsage{sender: sender},
		classifier:   &fakeClassifier{intent: domain.Intent{Type: domain.IntentUnknown}},
		reclassifier: &fakeReclassifier{},
		inventory:    &fakeInventory{},
		entitlements: &fakeEntitlements{ent: domain.Entitlement{Tier: domain.TierFree}},
		recipes:      &fakeRecipes{quick: "Tortilla de patatas", detailed: "Paso 1: ..."},
		sender:       sender,
		telemetry:    &fakeTelemetry{},
		now:          fixedNow,
	}
	opts = append([]Option{WithClock(func() time.Time { return h.now })}, opts...)
	d, err := NewDispatcher(h.deps(), opts...)
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Rate:         h.rate,
		Identities:   h.identities,
		Activity:     h.activity,
		Contexts:     h.contexts,
		Usage:        h.usage,
		Classifier:   h.classifier,
		Reclassifier: h.reclassifier,
		Inventory:    h.inventory,
		Entitlements: h.entitlements,
		Recipes:      h.recipes,
		Sender:       h.sender,
		Telemetry:    h.telemetry,
	}
}

// rebuild swaps collaborators on a fresh dispatcher that keeps the harness
// clock.
func (h *harness) rebuild(t *testing.T, edit func(*Deps)) {
	t.Helper()
	deps := h.deps()
	edit(&deps)
	d, err := NewDispatcher(deps, WithClock(func() time.Time { return h.now }))
	require.NoError(t, err)
	h.d = d
}

func (h *harness) handle(text string) {
	h.d.Handle(context.Background(), testAddr, text)
}

func (h *harness) pending() *domain.ConversationContext {
	cc, ok := h.contexts.items["u1"]
	if !ok {
		return nil
	}
	return &cc
}

func intent(typ domain.IntentType, slots ...string) domain.Intent {
	in := domain.Intent{Type: typ, Extracted: map[string]string{}}
	for i := 0; i+1 < len(slots); i += 2 {
		in.Extracted[slots[i]] = slots[i+1]
	}
	return in
}

func product(id, name string, expiresIn time.Duration) domain.Product {
	return domain.Product{ID: id, Name: name, ExpiresAt: fixedNow.Add(expiresIn), AddedAt: fixedNow.Add(-time.Hour)}
}

var _ Inventory = (*inventory.Service)(nil)
