// Package inventory implements the product operations the dispatcher calls:
// add-by-text, list, find-matches, remove-by-id, weekly trend and waste
// estimate.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/repository"
	"pantry-assistant/internal/textnorm"
)

// ErrUnparsable is returned by AddByText when no product name and expiry date
// can be read from the text.
var ErrUnparsable = errors.New("inventory: product text could not be parsed")

// ErrNotFound is returned by RemoveByID when the product is no longer stored.
var ErrNotFound = errors.New("inventory: product not found")

const (
	trendWindow = 7 * 24 * time.Hour
	wasteWindow = 30 * 24 * time.Hour
)

type Store interface {
	PutProduct(ctx context.Context, ownerID string, p domain.Product) error
	ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error)
	RemoveProduct(ctx context.Context, ownerID string, rec domain.RemovalRecord) error
	ListRemovals(ctx context.Context, ownerID string, since time.Time) ([]domain.RemovalRecord, error)
}

type Extractor interface {
	ExtractProduct(ctx context.Context, text string) (domain.ProductDraft, bool, error)
}

type Service struct {
	store     Store
	extractor Extractor
	now       func() time.Time
}

func NewService(store Store, extractor Extractor) (*Service, error) {
	if store == nil {
		return nil, errors.New("inventory: store must not be nil")
	}
	if extractor == nil {
		return nil, errors.New("inventory: extractor must not be nil")
	}
	return &Service{store: store, extractor: extractor, now: time.Now}, nil
}

// AddByText extracts a product from free text and stores it.
func (s *Service) AddByText(ctx context.Context, ownerID, text string) (domain.Product, error) {
	draft, ok, err := s.extractor.ExtractProduct(ctx, text)
	if err != nil {
		return domain.Product{}, fmt.Errorf("inventory: extract: %w", err)
	}
	name := strings.TrimSpace(draft.Name)
	if !ok || name == "" || draft.ExpiresAt.IsZero() {
		return domain.Product{}, ErrUnparsable
	}

	p := domain.Product{
		ID:        newUUID(),
		Name:      name,
		Quantity:  draft.Quantity,
		Unit:      strings.TrimSpace(draft.Unit),
		ExpiresAt: draft.ExpiresAt.UTC(),
		AddedAt:   s.now().UTC(),
	}
	if err := s.store.PutProduct(ctx, ownerID, p); err != nil {
		return domain.Product{}, fmt.Errorf("inventory: store product: %w", err)
	}
	return p, nil
}

// List returns the inventory ordered by expiry, soonest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Product, error) {
	products, err := s.store.ListProducts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	SortByExpiry(products)
	return products, nil
}

// FindMatches returns the products whose name contains name, ignoring case
// and accents. The order is stable across calls for the same inventory.
func (s *Service) FindMatches(ctx context.Context, ownerID, name string) ([]domain.Product, error) {
	if textnorm.Fold(name) == "" {
		return nil, nil
	}
	products, err := s.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []domain.Product
	for _, p := range products {
		if textnorm.Contains(p.Name, name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// RemoveByID deletes the stored product with captured.ID. The history record
// is built from captured, the product as the user last saw it, and records
// whether it had expired before removal.
func (s *Service) RemoveByID(ctx context.Context, ownerID string, captured domain.Product) (domain.RemovalRecord, error) {
	if captured.ID == "" {
		return domain.RemovalRecord{}, ErrNotFound
	}
	now := s.now().UTC()
	rec := domain.RemovalRecord{
		ProductID: captured.ID,
		Name:      captured.Name,
		AddedAt:   captured.AddedAt,
		ExpiresAt: captured.ExpiresAt,
		RemovedAt: now,
		Wasted:    now.After(captured.ExpiresAt),
	}
	err := s.store.RemoveProduct(ctx, ownerID, rec)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.RemovalRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.RemovalRecord{}, fmt.Errorf("inventory: remove product: %w", err)
	}
	return rec, nil
}

// WeeklyTrend counts products added during the last 7 days against the 7
// days before. Removed products still count towards the week they were added.
func (s *Service) WeeklyTrend(ctx context.Context, ownerID string) (domain.WeeklyTrend, error) {
	now := s.now().UTC()
	lastStart := now.Add(-2 * trendWindow)
	thisStart := now.Add(-trendWindow)

	products, err := s.store.ListProducts(ctx, ownerID)
	if err != nil {
		return domain.WeeklyTrend{}, fmt.Errorf("inventory: list: %w", err)
	}
	removals, err := s.store.ListRemovals(ctx, ownerID, lastStart)
	if err != nil {
		return domain.WeeklyTrend{}, fmt.Errorf("inventory: list removals: %w", err)
	}

	added := make([]time.Time, 0, len(products)+len(removals))
	for _, p := range products {
		added = append(added, p.AddedAt)
	}
	for _, r := range removals {
		added = append(added, r.AddedAt)
	}

	var trend domain.WeeklyTrend
	for _, ts := range added {
		switch {
		case ts.After(now):
		case !ts.Before(thisStart):
			trend.ThisWeek++
		case !ts.Before(lastStart):
			trend.LastWeek++
		}
	}
	return trend, nil
}

// WasteEstimate reports the wasted share of the last 30 days of removals.
// Products still in stock past their expiry count as wasted too.
func (s *Service) WasteEstimate(ctx context.Context, ownerID string) (domain.WasteEstimate, error) {
	now := s.now().UTC()

	removals, err := s.store.ListRemovals(ctx, ownerID, now.Add(-wasteWindow))
	if err != nil {
		return domain.WasteEstimate{}, fmt.Errorf("inventory: list removals: %w", err)
	}
	products, err := s.store.ListProducts(ctx, ownerID)
	if err != nil {
		return domain.WasteEstimate{}, fmt.Errorf("inventory: list: %w", err)
	}

	est := domain.WasteEstimate{Removed: len(removals)}
	for _, r := range removals {
		if r.Wasted {
			est.Wasted++
		}
	}
	for _, p := range products {
		if now.After(p.ExpiresAt) {
			est.ExpiredInStock++
		}
	}
	if total := est.Removed + est.ExpiredInStock; total > 0 {
		est.Percent = (est.Wasted + est.ExpiredInStock) * 100 / total
	}
	return est, nil
}

// SortByExpiry orders products by expiry, then name, then id.
func SortByExpiry(products []domain.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if !a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.ExpiresAt.Before(b.ExpiresAt)
		}
		if an, bn := textnorm.Fold(a.Name), textnorm.Fold(b.Name); an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
}

var newUUID = func() string {
	return uuid.NewString()
}
