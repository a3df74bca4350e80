package quota

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/repository"
)

type fakeStore struct {
	mu sync.Mutex

	ent    domain.Entitlement
	entErr error

	exhausted  domain.Window
	consumeOK  bool
	consumeErr error
	consumed   []repository.WindowLimit

	counts    map[domain.ActionClass][]domain.UsageWindow
	countsErr error
	asked     []domain.ActionClass
}

func (f *fakeStore) Entitlement(_ context.Context, _ string) (domain.Entitlement, error) {
	return f.ent, f.entErr
}

func (f *fakeStore) ConsumeUsage(_ context.Context, _ string, _ domain.ActionClass, limits []repository.WindowLimit) (domain.Window, bool, error) {
	f.consumed = limits
	return f.exhausted, f.consumeOK, f.consumeErr
}

func (f *fakeStore) UsageCounts(_ context.Context, _ string, class domain.ActionClass, _ []repository.WindowLimit) ([]domain.UsageWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, class)
	return f.counts[class], f.countsErr
}

type fakeSender struct {
	to    []string
	texts []string
	err   error
}

func (f *fakeSender) Send(_ context.Context, to, text string) error {
	f.to = append(f.to, to)
	f.texts = append(f.texts, text)
	return f.err
}

var ident = domain.Identity{ID: "u1", ChannelAddress: "34600111222"}

func newTestLimiter(t *testing.T, store Store, sender Sender, opts ...Option) *Limiter {
	t.Helper()
	l, err := NewLimiter(store, sender, opts...)
	require.NoError(t, err)
	return l
}

func TestNewLimiter_NilDeps(t *testing.T) {
	_, err := NewLimiter(nil, &fakeSender{})
	require.Error(t, err)
	_, err = NewLimiter(&fakeStore{}, nil)
	require.Error(t, err)
}

func TestAllow_WithinLimits(t *testing.T) {
	store := &fakeStore{consumeOK: true}
	sender := &fakeSender{}
	ok, err := newTestLimiter(t, store, sender).Allow(context.Background(), ident, domain.ActionRecipe)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, sender.texts)
	require.Equal(t, DefaultLimits()[domain.TierFree][domain.ActionRecipe], store.consumed)
}

func TestAllow_PremiumUsesPremiumLimits(t *testing.T) {
	store := &fakeStore{consumeOK: true, ent: domain.Entitlement{IsActive: true, Tier: domain.TierPremium}}
	_, err := newTestLimiter(t, store, &fakeSender{}).Allow(context.Background(), ident, domain.ActionAddProduct)
	require.NoError(t, err)
	require.Empty(t, store.consumed)
}

func TestAllow_DenialSendsOwnMessage(t *testing.T) {
	store := &fakeStore{exhausted: domain.WindowWeekly}
	sender := &fakeSender{}
	ok, err := newTestLimiter(t, store, sender).Allow(context.Background(), ident, domain.ActionAddProduct)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{"34600111222"}, sender.to)
	require.Contains(t, sender.texts[0], "esta semana")
	require.Contains(t, sender.texts[0], "añadir productos")
	require.Contains(t, sender.texts[0], "premium")
}

func TestAllow_DenialSendFailureStillDenies(t *testing.T) {
	store := &fakeStore{exhausted: domain.WindowDaily}
	ok, err := newTestLimiter(t, store, &fakeSender{err: errors.New("wa down")}).Allow(context.Background(), ident, domain.ActionRecipe)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAllow_Errors(t *testing.T) {
	_, err := newTestLimiter(t, &fakeStore{}, &fakeSender{}).Allow(context.Background(), ident, "teleport")
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = newTestLimiter(t, &fakeStore{entErr: errors.New("ddb")}, &fakeSender{}).Allow(context.Background(), ident, domain.ActionRecipe)
	require.ErrorContains(t, err, "entitlement")

	sender := &fakeSender{}
	_, err = newTestLimiter(t, &fakeStore{consumeErr: errors.New("ddb")}, sender).Allow(context.Background(), ident, domain.ActionRecipe)
	require.ErrorContains(t, err, "consume")
	require.Empty(t, sender.texts)
}

func TestUsage_CollectsLimitedWindows(t *testing.T) {
	store := &fakeStore{counts: map[domain.ActionClass][]domain.UsageWindow{
		domain.ActionAddProduct: {
			{Class: domain.ActionAddProduct, Window: domain.WindowDaily, Used: 9, Limit: 10},
		},
		domain.ActionRecipe: {
			{Class: domain.ActionRecipe, Window: domain.WindowDaily, Used: 1, Limit: 2},
			{Class: domain.ActionRecipe, Window: domain.WindowWeekly, Used: 0, Limit: 0},
		},
	}}
	got, err := newTestLimiter(t, store, &fakeSender{}).Usage(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.UsageWindow{
		{Class: domain.ActionAddProduct, Window: domain.WindowDaily, Used: 9, Limit: 10},
		{Class: domain.ActionRecipe, Window: domain.WindowDaily, Used: 1, Limit: 2},
	}, got)
	require.ElementsMatch(t, actionClasses(), store.asked)
}

func TestUsage_SkipsUnlimitedClasses(t *testing.T) {
	store := &fakeStore{ent: domain.Entitlement{IsActive: true, Tier: domain.TierPremium}}
	_, err := newTestLimiter(t, store, &fakeSender{}).Usage(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.ActionClass{domain.ActionRecipe}, store.asked)
}

func TestUsage_Error(t *testing.T) {
	store := &fakeStore{countsErr: errors.New("ddb")}
	_, err := newTestLimiter(t, store, &fakeSender{}).Usage(context.Background(), "u1")
	require.Error(t, err)
}

func TestWithLimits(t *testing.T) {
	custom := Limits{domain.TierFree: {domain.ActionRecipe: {{Window: domain.WindowMonthly, Limit: 1}}}}
	store := &fakeStore{consumeOK: true}
	_, err := newTestLimiter(t, store, &fakeSender{}, WithLimits(custom)).Allow(context.Background(), ident, domain.ActionRecipe)
	require.NoError(t, err)
	require.Equal(t, []repository.WindowLimit{{Window: domain.WindowMonthly, Limit: 1}}, store.consumed)
}
