package pipeline

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"taskpilot/app/core/classify"
	"taskpilot/app/core/generate"
	"taskpilot/app/core/metrics"
	"taskpilot/app/core/model"
	"taskpilot/app/pkg/types"
)

// Agent operations that bypass classification and drive the generator
// directly on behalf of the conversation loop.
const (
	OpDraftSummary  = "draft_summary"
	OpApplyEdits    = "apply_edits"
	OpAnalyzeUpdate = "analyze_update"
)

// Stable error codes surfaced to callers.
const (
	CodeEmptyInput         = "empty_input"
	CodeInputTooLong       = "input_too_long"
	CodeCostLimitExceeded  = "cost_limit_exceeded"
	CodeRateLimited        = "rate_limited"
	CodeUnauthorized       = "unauthorized"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidRequest     = "invalid_request"
	CodeInternalError      = "internal_error"
)

// Pipeline is the single entry point for turning user text into either
// a backend action or generated content. Every invocation emits one
// metrics event and never panics outward.
type Pipeline struct {
	classifier *classify.Classifier
	generator  *generate.Generator
	validator  *generate.Validator
	registry   *metrics.Registry
	sink       metrics.Sink

	confidenceThreshold float64
	maxInputLength      int
}

func New(classifier *classify.Classifier, generator *generate.Generator, validator *generate.Validator,
	registry *metrics.Registry, sink metrics.Sink, confidenceThreshold float64, maxInputLength int) *Pipeline {
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.8
	}
	if maxInputLength <= 0 {
		maxInputLength = 5000
	}
	return &Pipeline{
		classifier:          classifier,
		generator:           generator,
		validator:           validator,
		registry:            registry,
		sink:                sink,
		confidenceThreshold: confidenceThreshold,
		maxInputLength:      maxInputLength,
	}
}

// Process runs one input through the pipeline. The response always has
// Success set; failures carry a stable Error code plus a readable
// message and never propagate panics.
func (p *Pipeline) Process(ctx context.Context, userInput string, uctx types.UserContext) (resp types.PipelineResponse) {
	started := time.Now()
	p.registry.AddExecution()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pipeline] recovered panic: %v\n%s", r, debug.Stack())
			resp = p.failure(CodeInternalError, "internal pipeline error")
		}
		if !resp.Success {
			p.registry.AddFailure()
		}
		p.emit(resp, started)
	}()

	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return p.failure(CodeEmptyInput, "input text is empty")
	}
	if len(userInput) > p.maxInputLength {
		return p.failure(CodeInputTooLong, "input text exceeds the configured limit")
	}

	if uctx.AgentOperation != "" {
		return p.runAgentOperation(ctx, userInput, uctx)
	}

	result := p.classifier.Classify(userInput, uctx)
	p.registry.AddClassification()

	if result.Confidence < p.confidenceThreshold && result.RouteType == types.RouteLLM {
		if intent, confidence, err := p.generator.ClassifyIntent(ctx, userInput); err == nil {
			result = reclassify(result, intent, confidence)
		} else {
			log.Printf("[Pipeline] classification fallback failed, keeping rule result %q: %v", result.Intent, err)
		}
	}

	if result.RouteType == types.RouteBackendAction {
		return types.PipelineResponse{
			Success:       true,
			RouteType:     types.RouteBackendAction,
			BackendAction: result.BackendAction,
			Metadata: map[string]interface{}{
				"intent":          result.Intent,
				"confidence":      result.Confidence,
				"matched_pattern": result.MatchedPattern,
				"entities":        result.Entities,
			},
		}
	}

	return p.runGeneration(ctx, userInput, uctx, result)
}

func (p *Pipeline) runAgentOperation(ctx context.Context, userInput string, uctx types.UserContext) types.PipelineResponse {
	switch uctx.AgentOperation {
	case OpDraftSummary:
		out, err := p.generator.Comment(ctx, userInput, uctx)
		if err != nil {
			return p.modelFailure(err)
		}
		return p.generated(out, RouteOf(classify.IntentCommentGeneration), classify.IntentCommentGeneration)
	case OpApplyEdits:
		out, err := p.generator.ApplyEdits(ctx, uctx.Draft, uctx.EditRequest)
		if err != nil {
			return p.modelFailure(err)
		}
		return p.generated(out, RouteOf(classify.IntentCommentGeneration), classify.IntentCommentGeneration)
	case OpAnalyzeUpdate:
		updateType := p.generator.AnalyzeUpdate(ctx, userInput, uctx)
		return types.PipelineResponse{
			Success:          true,
			RouteType:        types.RouteLLM,
			GeneratedContent: updateType,
			Metadata:         map[string]interface{}{"operation": OpAnalyzeUpdate},
		}
	default:
		return p.failure(CodeInvalidRequest, "unknown agent operation")
	}
}

func (p *Pipeline) runGeneration(ctx context.Context, userInput string, uctx types.UserContext, result classify.Result) types.PipelineResponse {
	var out generate.Output
	var err error
	switch result.Intent {
	case classify.IntentEmailGeneration:
		out, err = p.generator.Email(ctx, userInput, uctx)
	default:
		out, err = p.generator.Comment(ctx, userInput, uctx)
	}
	if err != nil {
		return p.modelFailure(err)
	}

	if out.CacheTier != "" {
		p.registry.AddCacheHit()
	} else {
		p.registry.AddCacheMiss()
	}

	resp := p.generated(out, RouteOf(result.Intent), result.Intent)
	resp.Metadata["confidence"] = result.Confidence
	resp.Metadata["matched_pattern"] = result.MatchedPattern
	return resp
}

func (p *Pipeline) generated(out generate.Output, route, intent string) types.PipelineResponse {
	verdict := p.validator.Validate(out.Content, route)
	resp := types.PipelineResponse{
		Success:          true,
		RouteType:        types.RouteLLM,
		GeneratedContent: out.Content,
		QualityScore:     verdict.Score,
		RequiresApproval: verdict.ApprovalRequired || out.FallbackUsed || route == generate.RouteEmail,
		Metadata: map[string]interface{}{
			"intent":        intent,
			"route":         route,
			"cache_tier":    out.CacheTier,
			"fallback_used": out.FallbackUsed,
			"model":         out.Model,
			"flags":         verdict.Flags,
		},
	}
	return resp
}

func (p *Pipeline) modelFailure(err error) types.PipelineResponse {
	switch {
	case errors.Is(err, model.ErrCostLimitExceeded):
		return p.failure(CodeCostLimitExceeded, "daily model budget exhausted")
	case errors.Is(err, model.ErrRateLimited):
		return p.failure(CodeRateLimited, "model provider is rate limiting requests")
	case errors.Is(err, model.ErrUnauthorized):
		return p.failure(CodeUnauthorized, "model provider rejected the credentials")
	case errors.Is(err, model.ErrServiceUnavailable), errors.Is(err, model.ErrEmptyResponse):
		return p.failure(CodeServiceUnavailable, "model provider is unavailable")
	case errors.Is(err, model.ErrInvalidRequest):
		return p.failure(CodeInvalidRequest, "model provider rejected the request")
	default:
		log.Printf("[Pipeline] generation failed: %v", err)
		return p.failure(CodeInternalError, "content generation failed")
	}
}

func (p *Pipeline) failure(code, message string) types.PipelineResponse {
	return types.PipelineResponse{
		Success:      false,
		Error:        code,
		ErrorMessage: message,
		Metadata:     map[string]interface{}{},
	}
}

func (p *Pipeline) emit(resp types.PipelineResponse, started time.Time) {
	if p.sink == nil {
		return
	}
	ev := metrics.Event{
		Kind:       "pipeline",
		Route:      resp.RouteType,
		Success:    resp.Success,
		DurationMS: time.Since(started).Milliseconds(),
		At:         time.Now(),
	}
	if resp.Metadata != nil {
		if intent, ok := resp.Metadata["intent"].(string); ok {
			ev.Intent = intent
		}
		if tier, ok := resp.Metadata["cache_tier"].(string); ok {
			ev.CacheTier = tier
		}
		if modelName, ok := resp.Metadata["model"].(string); ok {
			ev.Model = modelName
		}
	}
	p.sink.Record(ev)
}

func reclassify(base classify.Result, intent string, confidence float64) classify.Result {
	base.Intent = intent
	base.Confidence = confidence
	base.MatchedPattern = "llm_fallback"
	switch intent {
	case classify.IntentTaskCompletion:
		base.RouteType = types.RouteBackendAction
		base.BackendAction = classify.ActionMarkTaskComplete
	case classify.IntentProductivityQuery:
		base.RouteType = types.RouteBackendAction
		base.BackendAction = classify.ActionProductivityStats
	default:
		base.RouteType = types.RouteLLM
		base.BackendAction = ""
	}
	return base
}

// RouteOf maps an intent onto the validation route name.
func RouteOf(intent string) string {
	if intent == classify.IntentEmailGeneration {
		return generate.RouteEmail
	}
	return generate.RouteComment
}
