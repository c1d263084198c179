package generate

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode"

	"taskpilot/app/core/model"
	"taskpilot/app/pkg/types"
)

// Comment rewrites a raw task update as a professional ticket comment.
// Cache hits skip the model entirely; transient model failures fall
// back to a deterministic local rephrase so the flow never dead-ends.
func (g *Generator) Comment(ctx context.Context, text string, uctx types.UserContext) (Output, error) {
	if strings.TrimSpace(text) == "" {
		return Output{}, errors.New("empty update text")
	}

	if content, tier, ok := g.cache.Lookup(ctx, RouteComment, text); ok {
		return Output{Content: content, CacheTier: tier}, nil
	}

	comp, err := g.caller.Invoke(ctx, model.Params{
		Model:       g.cfg.PrimaryModel,
		System:      commentSystemPrompt,
		User:        commentUserPrompt(text, uctx),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokensPrimary,
	})
	if err != nil {
		if model.Retryable(err) || errors.Is(err, model.ErrCostLimitExceeded) {
			log.Printf("[Generate] comment generation degraded to local rephrase: %v", err)
			return Output{Content: simpleRephrase(text), FallbackUsed: true}, nil
		}
		return Output{}, err
	}

	g.cache.Store(ctx, RouteComment, text, comp.Text, g.cfg.CommentTTL)
	return Output{
		Content:          comp.Text,
		Model:            g.cfg.PrimaryModel,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
	}, nil
}

var contractionFixes = map[string]string{
	"dont":   "don't",
	"cant":   "can't",
	"wont":   "won't",
	"didnt":  "didn't",
	"doesnt": "doesn't",
	"isnt":   "isn't",
	"wasnt":  "wasn't",
	"im":     "I'm",
	"ive":    "I've",
	"thats":  "that's",
}

// simpleRephrase is the no-model fallback: tidy casing, punctuation and
// common dropped-apostrophe contractions without changing any facts.
func simpleRephrase(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	for i, w := range words {
		bare := strings.ToLower(strings.Trim(w, ".,!?;:"))
		if fixed, ok := contractionFixes[bare]; ok {
			words[i] = strings.Replace(w, strings.Trim(w, ".,!?;:"), fixed, 1)
		}
	}
	s = strings.Join(words, " ")
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	s = string(r)
	if !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}
