package generate

import (
	"context"
	"errors"
	"strings"

	"taskpilot/app/core/model"
	"taskpilot/app/pkg/types"
)

// Email drafts a status email from a task update. Emails always go
// through human approval downstream, so there is no local fallback
// here: a failed generation surfaces as an error.
func (g *Generator) Email(ctx context.Context, text string, uctx types.UserContext) (Output, error) {
	if strings.TrimSpace(text) == "" {
		return Output{}, errors.New("empty update text")
	}

	if content, tier, ok := g.cache.Lookup(ctx, RouteEmail, text); ok {
		return Output{Content: content, CacheTier: tier}, nil
	}

	comp, err := g.caller.Invoke(ctx, model.Params{
		Model:       g.cfg.PrimaryModel,
		System:      emailSystemPrompt,
		User:        emailUserPrompt(text, uctx),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokensPrimary,
	})
	if err != nil {
		return Output{}, err
	}

	g.cache.Store(ctx, RouteEmail, text, comp.Text, g.cfg.EmailTTL)
	return Output{
		Content:          comp.Text,
		Model:            g.cfg.PrimaryModel,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
	}, nil
}
