package usecase

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"pantry-assistant/internal/domain"
	"pantry-assistant/internal/inventory"
)

// maxRecipeProducts caps how many products seed a recipe.
const maxRecipeProducts = 5

func (d *Dispatcher) greeting(ctx context.Context, t *turn) (reply, error) {
	ent, err := d.deps.Entitlements.Entitlement(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "entitlement_error", err)
	}
	return reply{text: greetingText(TierVariant(ent))}, nil
}

func (d *Dispatcher) addProduct(ctx context.Context, t *turn) (reply, error) {
	ok, err := d.gate(ctx, t.ident, domain.ActionAddProduct)
	if err != nil || !ok {
		return deniedReply, err
	}
	p, err := d.deps.Inventory.AddByText(ctx, t.ident.ID, t.text)
	if errors.Is(err, inventory.ErrUnparsable) {
		return reply{
			text: clarifyText(),
			next: d.newContext(t, domain.PendingClarifyProduct, domain.ContextPayload{OriginalText: t.text}),
		}, nil
	}
	if err != nil {
		return reply{}, newError(ErrorHandler, "add_product_error", err)
	}
	d.deps.Telemetry.TrackEvent(ctx, "product_added", map[string]string{"identity": t.ident.ID})
	return reply{text: addedText(t.now, p)}, nil
}

func (d *Dispatcher) listProducts(ctx context.Context, t *turn) (reply, error) {
	products, err := d.deps.Inventory.List(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "list_products_error", err)
	}
	return reply{text: inventoryText(t.now, InventoryVariant(t.now, products), products)}, nil
}

func (d *Dispatcher) urgentProducts(ctx context.Context, t *turn) (reply, error) {
	products, err := d.deps.Inventory.List(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "list_products_error", err)
	}
	return reply{text: urgentText(t.now, products)}, nil
}

func (d *Dispatcher) removeProduct(ctx context.Context, t *turn) (reply, error) {
	name := t.intent.Slot(domain.SlotProduct)
	if name == "" {
		return reply{text: msgAskRemoveWhich}, nil
	}
	ok, err := d.gate(ctx, t.ident, domain.ActionRemoveProduct)
	if err != nil || !ok {
		return deniedReply, err
	}
	return d.presentRemoval(ctx, t, name)
}

func (d *Dispatcher) recipeRequest(ctx context.Context, t *turn) (reply, error) {
	ok, err := d.gate(ctx, t.ident, domain.ActionRecipe)
	if err != nil || !ok {
		return deniedReply, err
	}
	products, err := d.deps.Inventory.List(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "list_products_error", err)
	}
	if len(products) == 0 {
		return reply{text: msgRecipeNoStock}, nil
	}
	if len(products) > maxRecipeProducts {
		products = products[:maxRecipeProducts]
	}
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}

	quick, err := d.deps.Recipes.QuickRecipe(ctx, names)
	if err != nil {
		return reply{}, newError(ErrorHandler, "quick_recipe_error", err)
	}
	return reply{
		text: recipeText(quick),
		next: d.newContext(t, domain.PendingRecipeFollowup, domain.ContextPayload{Products: products}),
	}, nil
}

func (d *Dispatcher) premiumInfo(ctx context.Context, t *turn) (reply, error) {
	ent, err := d.deps.Entitlements.Entitlement(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "entitlement_error", err)
	}
	return reply{text: premiumText(TierVariant(ent), ent)}, nil
}

func (d *Dispatcher) usageStats(ctx context.Context, t *turn) (reply, error) {
	windows, err := d.deps.Usage.Usage(ctx, t.ident.ID)
	if err != nil {
		return reply{}, newError(ErrorHandler, "usage_error", err)
	}
	if windows == nil {
		windows = []domain.UsageWindow{}
	}
	return reply{text: usageText(windows), usage: windows}, nil
}

// stats reads the weekly trend and the waste estimate concurrently.
func (d *Dispatcher) stats(ctx context.Context, t *turn) (reply, error) {
	var (
		trend domain.WeeklyTrend
		waste domain.WasteEstimate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		trend, err = d.deps.Inventory.WeeklyTrend(gctx, t.ident.ID)
		return err
	})
	g.Go(func() error {
		var err error
		waste, err = d.deps.Inventory.WasteEstimate(gctx, t.ident.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return reply{}, newError(ErrorHandler, "stats_error", err)
	}
	return reply{text: statsText(trend, waste)}, nil
}

// gate consults the usage limiter before a metered action. A false result
// means the limiter already replied and the handler must stop.
func (d *Dispatcher) gate(ctx context.Context, ident domain.Identity, class domain.ActionClass) (bool, error) {
	ok, err := d.deps.Usage.Allow(ctx, ident, class)
	if err != nil {
		return false, newError(ErrorHandler, "usage_limiter_error", err)
	}
	return ok, nil
}
