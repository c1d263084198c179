package generate

import (
	"context"
	"errors"
	"strings"

	"taskpilot/app/core/model"
)

// ApplyEdits revises an existing draft per the user's request. Results
// are draft-specific so they bypass the cache.
func (g *Generator) ApplyEdits(ctx context.Context, draft, request string) (Output, error) {
	if strings.TrimSpace(draft) == "" {
		return Output{}, errors.New("empty draft")
	}
	if strings.TrimSpace(request) == "" {
		return Output{Content: draft}, nil
	}

	comp, err := g.caller.Invoke(ctx, model.Params{
		Model:       g.cfg.PrimaryModel,
		System:      editSystemPrompt,
		User:        editUserPrompt(draft, request),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokensPrimary,
	})
	if err != nil {
		return Output{}, err
	}

	return Output{
		Content:          comp.Text,
		Model:            g.cfg.PrimaryModel,
		PromptTokens:     comp.PromptTokens,
		CompletionTokens: comp.CompletionTokens,
	}, nil
}
