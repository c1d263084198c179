package generate

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"taskpilot/app/core/classify"
	"taskpilot/app/core/model"
)

var knownIntents = map[string]bool{
	classify.IntentTaskCompletion:    true,
	classify.IntentProductivityQuery: true,
	classify.IntentEmailGeneration:   true,
	classify.IntentCommentGeneration: true,
}

// ClassifyIntent asks the fast model to label an input the rule-based
// classifier was unsure about. Results are cached under their own,
// shorter retention since routing decisions go stale faster than
// generated text.
func (g *Generator) ClassifyIntent(ctx context.Context, text string) (string, float64, error) {
	if cached, _, ok := g.cache.Lookup(ctx, RouteIntent, text); ok {
		intent := gjson.Get(cached, "intent").String()
		if knownIntents[intent] {
			return intent, gjson.Get(cached, "confidence").Float(), nil
		}
	}

	comp, err := g.caller.Invoke(ctx, model.Params{
		Model:       g.cfg.FastModel,
		System:      classifySystemPrompt,
		User:        text,
		Temperature: 0.1,
		MaxTokens:   g.cfg.MaxTokensFast,
	})
	if err != nil {
		return "", 0, err
	}

	raw := extractJSON(comp.Text)
	if raw == "" {
		return "", 0, fmt.Errorf("classification reply had no JSON: %q", comp.Text)
	}

	intent := gjson.Get(raw, "intent").String()
	if !knownIntents[intent] {
		return "", 0, fmt.Errorf("classification returned unknown intent %q", intent)
	}
	confidence := gjson.Get(raw, "confidence").Float()
	if confidence < 0 || confidence > 1 {
		confidence = 0.5
	}

	payload, _ := sjson.Set("", "intent", intent)
	payload, _ = sjson.Set(payload, "confidence", confidence)
	g.cache.Store(ctx, RouteIntent, text, payload, g.cfg.RoutingTTL)

	return intent, confidence, nil
}
