package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/inventory"
)

// maxNotFoundSample caps the inventory names listed when nothing matches.
const maxNotFoundSample = 5

// presentRemoval resolves a product name against the inventory. One match is
// removed at once; several are listed and stored as ConfirmRemoval so the
// next reply can pick one by its position in this exact list.
func (d *Dispatcher) presentRemoval(ctx context.Context, t *turn, name string) (reply, error) {
	matches, err := d.deps.Inventory.FindMatches(ctx, t.ident.ID, name)
	if err != nil {
		return reply{}, newError(ErrorHandler, "find_matches_error", err)
	}

	switch len(matches) {
	case 0:
		all, err := d.deps.Inventory.List(ctx, t.ident.ID)
		if err != nil {
			return reply{}, newError(ErrorHandler, "list_products_error", err)
		}
		sample := make([]string, 0, maxNotFoundSample)
		for _, p := range all {
			if len(sample) == maxNotFoundSample {
				break
			}
			sample = append(sample, p.Name)
		}
		return reply{text: notFoundText(name, sample)}, nil
	case 1:
		return d.removeCandidate(ctx, t, d.candidate(t, matches[0]))
	}

	cands := make([]domain.Candidate, len(matches))
	for i, p := range matches {
		cands[i] = d.candidate(t, p)
	}
	return reply{
		text: candidatesText(name, cands),
		next: d.newContext(t, domain.PendingConfirmRemoval, domain.ContextPayload{Candidates: cands}),
	}, nil
}

func (d *Dispatcher) candidate(t *turn, p domain.Product) domain.Candidate {
	return domain.Candidate{
		ID:          p.ID,
		DisplayName: productLabel(p),
		Meta:        expiryLabel(t.now, p.ExpiresAt),
		Name:        p.Name,
		AddedAt:     p.AddedAt,
		ExpiresAt:   p.ExpiresAt,
	}
}

// parseChoice reads a 1-based position out of a reply such as "2", "2." or
// "#2". It returns 0 when the reply is not a number.
func parseChoice(text string) int {
	s := strings.Trim(strings.TrimSpace(text), "#.)")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// resolveRemoval applies a numeric reply to the stored candidate list. The
// removal uses the candidate as it was presented; nothing is re-fetched.
func (d *Dispatcher) resolveRemoval(ctx context.Context, t *turn, cands []domain.Candidate) (reply, error) {
	n := parseChoice(t.text)
	if n < 1 || n > len(cands) {
		return reply{text: invalidChoiceText(len(cands))}, nil
	}
	return d.removeCandidate(ctx, t, cands[n-1])
}

func (d *Dispatcher) removeCandidate(ctx context.Context, t *turn, c domain.Candidate) (reply, error) {
	rec, err := d.deps.Inventory.RemoveByID(ctx, t.ident.ID, c.Product())
	if errors.Is(err, inventory.ErrNotFound) {
		return reply{text: alreadyGoneText(c.DisplayName)}, nil
	}
	if err != nil {
		return reply{}, newError(ErrorHandler, "remove_product_error", err)
	}
	d.deps.Telemetry.TrackEvent(ctx, "product_removed", map[string]string{
		"identity": t.ident.ID,
		"wasted":   strconv.FormatBool(rec.Wasted),
	})
	return reply{text: removedText(c.DisplayName, rec.Wasted)}, nil
}
