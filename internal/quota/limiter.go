// Package quota meters state-changing actions per identity over daily, weekly
// and monthly windows. The limiter owns the message a user sees on denial.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/repository"
)

var ErrUnknownAction = errors.New("quota: unknown action class")

type Store interface {
	Entitlement(ctx context.Context, identityID string) (domain.Entitlement, error)
	ConsumeUsage(ctx context.Context, ownerID string, class domain.ActionClass, limits []repository.WindowLimit) (domain.Window, bool, error)
	UsageCounts(ctx context.Context, ownerID string, class domain.ActionClass, limits []repository.WindowLimit) ([]domain.UsageWindow, error)
}

type Sender interface {
	Send(ctx context.Context, channelAddress, text string) error
}

// Limits maps tier and action class to per-window caps. A zero or missing
// cap is unlimited.
type Limits map[domain.Tier]map[domain.ActionClass][]repository.WindowLimit

// DefaultLimits are the caps applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		domain.TierFree: {
			domain.ActionAddProduct: {
				{Window: domain.WindowDaily, Limit: 10},
				{Window: domain.WindowWeekly, Limit: 40},
				{Window: domain.WindowMonthly, Limit: 120},
			},
			domain.ActionRemoveProduct: {
				{Window: domain.WindowDaily, Limit: 20},
			},
			domain.ActionRecipe: {
				{Window: domain.WindowDaily, Limit: 2},
				{Window: domain.WindowWeekly, Limit: 7},
				{Window: domain.WindowMonthly, Limit: 20},
			},
		},
		domain.TierPremium: {
			domain.ActionRecipe: {
				{Window: domain.WindowDaily, Limit: 20},
			},
		},
	}
}

func actionClasses() []domain.ActionClass {
	return []domain.ActionClass{domain.ActionAddProduct, domain.ActionRemoveProduct, domain.ActionRecipe}
}

type Limiter struct {
	store  Store
	sender Sender
	limits Limits
	logger *slog.Logger
}

type Option func(*Limiter)

func WithLimits(l Limits) Option {
	return func(q *Limiter) {
		if l != nil {
			q.limits = l
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Limiter) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewLimiter(store Store, sender Sender, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("quota: store must not be nil")
	}
	if sender == nil {
		return nil, errors.New("quota: sender must not be nil")
	}
	l := &Limiter{
		store:  store,
		sender: sender,
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow consumes one unit of class for ident. On denial the user is told
// which window ran out and false is returned; the caller must send nothing.
func (l *Limiter) Allow(ctx context.Context, ident domain.Identity, class domain.ActionClass) (bool, error) {
	if !knownClass(class) {
		return false, fmt.Errorf("%w: %q", ErrUnknownAction, class)
	}
	ent, err := l.store.Entitlement(ctx, ident.ID)
	if err != nil {
		return false, fmt.Errorf("quota: entitlement: %w", err)
	}
	tier := tierOf(ent)

	exhausted, ok, err := l.store.ConsumeUsage(ctx, ident.ID, class, l.limits[tier][class])
	if err != nil {
		return false, fmt.Errorf("quota: consume: %w", err)
	}
	if ok {
		return true, nil
	}

	l.logger.Info("usage limit reached", "identity", ident.ID, "class", string(class), "window", string(exhausted), "tier", string(tier))
	if err := l.sender.Send(ctx, ident.ChannelAddress, denialText(class, exhausted, tier)); err != nil {
		l.logger.Error("failed to send usage denial", "identity", ident.ID, "err", err)
	}
	return false, nil
}

// Usage reports every limited window of every action class for identityID.
func (l *Limiter) Usage(ctx context.Context, identityID string) ([]domain.UsageWindow, error) {
	ent, err := l.store.Entitlement(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("quota: entitlement: %w", err)
	}
	tier := tierOf(ent)

	classes := actionClasses()
	results := make([][]domain.UsageWindow, len(classes))
	g, gctx := errgroup.WithContext(ctx)
	for i, class := range classes {
		limits := l.limits[tier][class]
		if len(limits) == 0 {
			continue
		}
		g.Go(func() error {
			w, err := l.store.UsageCounts(gctx, identityID, class, limits)
			if err != nil {
				return fmt.Errorf("quota: usage %s: %w", class, err)
			}
			results[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.UsageWindow
	for _, w := range results {
		for _, u := range w {
			if u.Limit > 0 {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func knownClass(class domain.ActionClass) bool {
	for _, c := range actionClasses() {
		if c == class {
			return true
		}
	}
	return false
}

func tierOf(ent domain.Entitlement) domain.Tier {
	if ent.Premium() {
		return domain.TierPremium
	}
	return domain.TierFree
}

func denialText(class domain.ActionClass, w domain.Window, tier domain.Tier) string {
	what := map[domain.ActionClass]string{
		domain.ActionAddProduct:    "añadir productos",
		domain.ActionRemoveProduct: "eliminar productos",
		domain.ActionRecipe:        "pedir recetas",
	}[class]
	when := map[domain.Window]string{
		domain.WindowDaily:   "de hoy",
		domain.WindowWeekly:  "de esta semana",
		domain.WindowMonthly: "de este mes",
	}[w]
	msg := fmt.Sprintf("Has alcanzado el límite %s para %s.", when, what)
	if tier == domain.TierFree {
		msg += " Con Premium tendrás límites mucho más amplios. Escribe \"premium\" para saber más."
	}
	return msg
}
