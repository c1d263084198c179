package generate

import (
	"context"
	"strings"
	"time"

	"taskpilot/app/core/cache"
	"taskpilot/app/core/model"
)

// Route names used for validation bands and cache keys.
const (
	RouteComment = "comment_generation"
	RouteEmail   = "email_generation"
	RouteIntent  = "intent_routing"
)

// Caller is satisfied by model.Invoker; tests plug in fakes.
type Caller interface {
	Invoke(ctx context.Context, p model.Params) (model.Completion, error)
}

// Config carries the model selection and cache retention knobs.
type Config struct {
	PrimaryModel     string
	FastModel        string
	MaxTokensPrimary int64
	MaxTokensFast    int64
	Temperature      float64
	CommentTTL       time.Duration
	EmailTTL         time.Duration
	RoutingTTL       time.Duration
}

// Output is one generated artifact plus how it was produced.
type Output struct {
	Content          string
	CacheTier        string
	FallbackUsed     bool
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// Generator owns all LLM-backed text production. Each route shares the
// cache layer and the guarded invoker.
type Generator struct {
	caller Caller
	cache  *cache.Layer
	cfg    Config
}

func New(caller Caller, cacheLayer *cache.Layer, cfg Config) *Generator {
	if cfg.MaxTokensPrimary <= 0 {
		cfg.MaxTokensPrimary = 2000
	}
	if cfg.MaxTokensFast <= 0 {
		cfg.MaxTokensFast = 1000
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	if cfg.CommentTTL <= 0 {
		cfg.CommentTTL = 24 * time.Hour
	}
	if cfg.EmailTTL <= 0 {
		cfg.EmailTTL = 24 * time.Hour
	}
	if cfg.RoutingTTL <= 0 {
		cfg.RoutingTTL = time.Hour
	}
	return &Generator{caller: caller, cache: cacheLayer, cfg: cfg}
}

// extractJSON pulls the outermost {...} block out of a model reply so
// that surrounding prose or code fences do not break parsing.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
