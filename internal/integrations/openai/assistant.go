package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pantry-assistant/internal/domain"
)

type classification struct {
	Intent  string `json:"intent"`
	Product string `json:"product"`
}

type yesNo struct {
	Answer bool `json:"answer"`
}

type extraction struct {
	OK        bool    `json:"ok"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	Unit      string  `json:"unit"`
	ExpiresOn string  `json:"expires_on"`
}

// Classify maps normalized text onto the intent repertoire. Labels outside
// the repertoire become unknown.
func (c *Client) Classify(ctx context.Context, text string) (domain.Intent, error) {
	var out classification
	err := c.completeJSON(ctx, []domain.ChatMessage{
		{Role: "system", Content: classifierPrompt()},
		{Role: "user", Content: text},
	}, classificationFormat(), &out)
	if err != nil {
		return domain.Intent{}, err
	}
	intent := domain.Intent{Type: domain.ParseIntentType(out.Intent)}
	if p := strings.TrimSpace(out.Product); p != "" {
		intent.Extracted = map[string]string{domain.SlotProduct: p}
	}
	return intent, nil
}

// CouldBeProduct asks whether text reads like someone registering food.
func (c *Client) CouldBeProduct(ctx context.Context, text string) (bool, error) {
	return c.ask(ctx, "Does this message describe a food item the user has, bought or wants to store, "+
		"possibly with a quantity or expiry date?", text)
}

// CouldBeRecipe asks whether text reads like a request for cooking ideas.
func (c *Client) CouldBeRecipe(ctx context.Context, text string) (bool, error) {
	return c.ask(ctx, "Is this message asking what to cook, for a recipe, or for ideas to use up food?", text)
}

func (c *Client) ask(ctx context.Context, question, text string) (bool, error) {
	var out yesNo
	err := c.completeJSON(ctx, []domain.ChatMessage{
		{Role: "system", Content: "Answer the question about the user's message with a JSON boolean. " + question},
		{Role: "user", Content: text},
	}, yesNoFormat(), &out)
	if err != nil {
		return false, err
	}
	return out.Answer, nil
}

// ExtractProduct reads a product, quantity and expiry date from text.
// ok=false means the text could not be read as a product.
func (c *Client) ExtractProduct(ctx context.Context, text string) (domain.ProductDraft, bool, error) {
	today := c.now().UTC()
	var out extraction
	err := c.completeJSON(ctx, []domain.ChatMessage{
		{Role: "system", Content: extractionPrompt(today)},
		{Role: "user", Content: text},
	}, extractionFormat(), &out)
	if err != nil {
		return domain.ProductDraft{}, false, err
	}
	name := strings.TrimSpace(out.Name)
	if !out.OK || name == "" {
		return domain.ProductDraft{}, false, nil
	}
	expires, err := time.Parse("2006-01-02", strings.TrimSpace(out.ExpiresOn))
	if err != nil {
		return domain.ProductDraft{}, false, nil
	}
	return domain.ProductDraft{
		Name:      name,
		Quantity:  out.Quantity,
		Unit:      strings.TrimSpace(out.Unit),
		ExpiresAt: expires,
	}, true, nil
}

// QuickRecipe returns a short recipe idea using the named products.
func (c *Client) QuickRecipe(ctx context.Context, names []string) (string, error) {
	raw, err := c.complete(ctx, []domain.ChatMessage{
		{Role: "system", Content: "You are a home cooking assistant. Reply in Spanish with one quick recipe " +
			"(title, 3-5 steps) that uses as many of the listed ingredients as possible. Plain text, no markdown headers."},
		{Role: "user", Content: "Ingredientes: " + strings.Join(names, ", ")},
	}, nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// DetailedRecipe returns a full recipe for products, most urgent first.
func (c *Client) DetailedRecipe(ctx context.Context, products []domain.Product) (string, error) {
	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "- %s (caduca %s)\n", p.Name, p.ExpiresAt.Format("2006-01-02"))
	}
	raw, err := c.complete(ctx, []domain.ChatMessage{
		{Role: "system", Content: "You are a home cooking assistant. Reply in Spanish with a detailed recipe: " +
			"ingredients with quantities, numbered steps, timing and a storage tip for leftovers. " +
			"Prioritise the ingredients that expire first. Plain text."},
		{Role: "user", Content: b.String()},
	}, nil, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func classifierPrompt() string {
	labels := make([]string, 0, len(domain.IntentTypes()))
	for _, t := range domain.IntentTypes() {
		labels = append(labels, string(t))
	}
	return strings.Join([]string{
		"Classify a WhatsApp message sent to a food-inventory assistant.",
		"Intents: " + strings.Join(labels, ", ") + ".",
		"add_product: the user registers food they have, usually with an expiry date.",
		"remove_product: the user used up, ate or threw away something; put its name in product.",
		"urgent_products: what expires soon. list_products: everything stored.",
		"recipe_request: what to cook. premium_info: plans, prices, subscription.",
		"usage_stats: remaining quota. stats: waste and consumption statistics.",
		"Use unknown when none fits. product is empty unless the message names one item.",
	}, "\n")
}

func extractionPrompt(today time.Time) string {
	return strings.Join([]string{
		"Extract one food product from the message.",
		"Today is " + today.Format("2006-01-02") + " (" + today.Weekday().String() + ").",
		"Resolve relative dates (\"el viernes\", \"mañana\", \"en 3 días\") to an absolute date.",
		"expires_on is YYYY-MM-DD. quantity is 0 and unit empty when not stated.",
		"Set ok=false when there is no product name or no expiry date can be determined.",
	}, "\n")
}

func classificationFormat() *responseFormat {
	labels, _ := json.Marshal(domain.IntentTypes())
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   "intent",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"intent":{"type":"string","enum":` + string(labels) + `},
					"product":{"type":"string"}
				},
				"required":["intent","product"]
			}`),
		},
	}
}

func yesNoFormat() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   "yes_no",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{"answer":{"type":"boolean"}},
				"required":["answer"]
			}`),
		},
	}
}

func extractionFormat() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   "product",
			Strict: true,
			Schema: json.RawMessage(`{
				"type":"object",
				"additionalProperties":false,
				"properties":{
					"ok":{"type":"boolean"},
					"name":{"type":"string"},
					"quantity":{"type":"number"},
					"unit":{"type":"string"},
					"expires_on":{"type":"string"}
				},
				"required":["ok","name","quantity","unit","expires_on"]
			}`),
		},
	}
}
