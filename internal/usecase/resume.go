package usecase

import (
	"context"
	"errors"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/inventory"
	"pantry-assistant/internal/textnorm"
)

var (
	affirmativeWords = []string{"si", "vale", "ok", "okay", "claro", "dale", "venga", "porfa", "perfecto", "yes", "bueno"}
	negativeWords    = []string{"no", "nah", "paso", "nada", "luego"}
)

// resume continues the pending action in cc with the new reply. cc has
// already been taken out of the store, so every branch is single-shot and
// none of them stores a new context.
func (d *Dispatcher) resume(ctx context.Context, t *turn, cc *domain.ConversationContext) (reply, error) {
	switch cc.PendingAction {
	case domain.PendingClarifyProduct:
		return d.resumeClarify(ctx, t)
	case domain.PendingConfirmRemoval:
		return d.resolveRemoval(ctx, t, cc.Payload.Candidates)
	case domain.PendingRecipeFollowup:
		return d.resumeRecipe(ctx, t, cc.Payload.Products)
	default:
		d.logger.Warn("unknown pending action", "identity", t.ident.ID, "action", string(cc.PendingAction))
		return reply{text: msgHelp}, nil
	}
}

// resumeClarify treats the reply as a fresh add attempt. A second failure
// is reported but not retried again.
func (d *Dispatcher) resumeClarify(ctx context.Context, t *turn) (reply, error) {
	ok, err := d.gate(ctx, t.ident, domain.ActionAddProduct)
	if err != nil || !ok {
		return deniedReply, err
	}
	p, err := d.deps.Inventory.AddByText(ctx, t.ident.ID, t.text)
	if errors.Is(err, inventory.ErrUnparsable) {
		return reply{text: stillUnreadableText()}, nil
	}
	if err != nil {
		return reply{}, newError(ErrorHandler, "add_product_error", err)
	}
	d.deps.Telemetry.TrackEvent(ctx, "product_added", map[string]string{"identity": t.ident.ID})
	return reply{text: addedText(t.now, p)}, nil
}

func (d *Dispatcher) resumeRecipe(ctx context.Context, t *turn, products []domain.Product) (reply, error) {
	if !affirmative(t.text) {
		return reply{text: msgRecipeDeclined}, nil
	}
	ent, err := d.deps.Entitlements.Entitlement(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "entitlement_error", err)
	}
	if !ent.Premium() {
		return reply{text: premiumText(TierVariant(ent), ent)}, nil
	}
	ok, err := d.gate(ctx, t.ident, domain.ActionRecipe)
	if err != nil || !ok {
		return deniedReply, err
	}
	detailed, err := d.deps.Recipes.DetailedRecipe(ctx, products)
	if err != nil {
		return reply{}, newError(ErrorHandler, "detailed_recipe_error", err)
	}
	return reply{text: detailed}, nil
}

// affirmative checks negatives first so "no, claro que no" reads as a no.
func affirmative(text string) bool {
	if textnorm.ContainsAnyWord(text, negativeWords) {
		return false
	}
	return textnorm.ContainsAnyWord(text, affirmativeWords)
}
