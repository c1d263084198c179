package generate

import (
	"context"
	"log"

	"github.com/tidwall/gjson"

	"taskpilot/app/core/model"
	"taskpilot/app/pkg/types"
)

// AnalyzeUpdate decides how a final summary should be applied to a
// ticket. Any failure, malformed reply, or out-of-enum answer degrades
// to comment_only, never to a status change.
func (g *Generator) AnalyzeUpdate(ctx context.Context, summary string, uctx types.UserContext) string {
	comp, err := g.caller.Invoke(ctx, model.Params{
		Model:       g.cfg.FastModel,
		System:      analyzeSystemPrompt,
		User:        analyzeUserPrompt(summary, uctx),
		Temperature: 0.1,
		MaxTokens:   g.cfg.MaxTokensFast,
	})
	if err != nil {
		log.Printf("[Generate] update analysis failed, defaulting to comment_only: %v", err)
		return types.UpdateCommentOnly
	}

	raw := extractJSON(comp.Text)
	if raw == "" {
		log.Printf("[Generate] update analysis reply had no JSON, defaulting to comment_only")
		return types.UpdateCommentOnly
	}

	updateType := gjson.Get(raw, "update_type").String()
	if !types.ValidUpdateType(updateType) {
		log.Printf("[Generate] update analysis returned %q, defaulting to comment_only", updateType)
		return types.UpdateCommentOnly
	}
	return updateType
}
