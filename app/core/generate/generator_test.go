package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskpilot/app/core/cache"
	"taskpilot/app/core/model"
	"taskpilot/app/pkg/types"
)

// fakeCaller answers by inspecting the system prompt and counts calls.
type fakeCaller struct {
	calls   int
	replies map[string]string
	err     error
}

func (f *fakeCaller) Invoke(ctx context.Context, p model.Params) (model.Completion, error) {
	f.calls++
	if f.err != nil {
		return model.Completion{}, f.err
	}
	for marker, reply := range f.replies {
		if strings.Contains(p.System, marker) {
			return model.Completion{Text: reply, PromptTokens: 20, CompletionTokens: 10}, nil
		}
	}
	return model.Completion{Text: "Generic reply.", PromptTokens: 20, CompletionTokens: 10}, nil
}

func newTestGenerator(caller Caller) *Generator {
	layer := cache.NewLayer(true, cache.NewExact(32), nil)
	return New(caller, layer, Config{
		PrimaryModel: "gpt-4o",
		FastModel:    "gpt-3.5-turbo-0125",
		CommentTTL:   time.Minute,
		EmailTTL:     time.Minute,
	})
}

func TestCommentCachesRepeatedPrompt(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{"ticket comment": "Completed the login refactor."}}
	g := newTestGenerator(caller)
	ctx := context.Background()

	first, err := g.Comment(ctx, "finished login refactor", types.UserContext{})
	if err != nil {
		t.Fatalf("first comment failed: %v", err)
	}
	if first.CacheTier != "" {
		t.Fatalf("first call reported cache tier %q", first.CacheTier)
	}

	second, err := g.Comment(ctx, "finished login refactor", types.UserContext{})
	if err != nil {
		t.Fatalf("second comment failed: %v", err)
	}
	if second.CacheTier != cache.TierExact {
		t.Fatalf("second call tier = %q, want exact", second.CacheTier)
	}
	if second.Content != first.Content {
		t.Fatalf("cached content %q differs from original %q", second.Content, first.Content)
	}
	if caller.calls != 1 {
		t.Fatalf("upstream called %d times, want 1", caller.calls)
	}
}

func TestCommentFallsBackOnTransientFailure(t *testing.T) {
	caller := &fakeCaller{err: model.ErrServiceUnavailable}
	g := newTestGenerator(caller)

	out, err := g.Comment(context.Background(), "finished the migration, all good", types.UserContext{})
	if err != nil {
		t.Fatalf("expected fallback, got error: %v", err)
	}
	if !out.FallbackUsed {
		t.Fatal("fallback not flagged")
	}
	if !strings.HasPrefix(out.Content, "Finished") {
		t.Fatalf("fallback content = %q, want tidied original text", out.Content)
	}
	if !strings.HasSuffix(out.Content, ".") {
		t.Fatalf("fallback content %q missing terminal punctuation", out.Content)
	}
}

func TestCommentPromptCarriesContextFields(t *testing.T) {
	prompt := commentUserPrompt("wrapped up the caching work", types.UserContext{
		TaskTitle:   "Implement response cache",
		Role:        "backend engineer",
		ProjectType: "software",
	})
	for _, want := range []string{"Implement response cache", "backend engineer", "Project type: software"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt %q missing %q", prompt, want)
		}
	}
}

func TestSimpleRephraseFixesContractions(t *testing.T) {
	got := simpleRephrase("im done, dont think anything else is left")
	want := "I'm done, don't think anything else is left."
	if got != want {
		t.Fatalf("rephrase = %q, want %q", got, want)
	}
}

func TestCommentSurfacesNonRetryableFailure(t *testing.T) {
	caller := &fakeCaller{err: model.ErrUnauthorized}
	g := newTestGenerator(caller)

	if _, err := g.Comment(context.Background(), "finished it", types.UserContext{}); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized surfaced", err)
	}
}

func TestEmailErrorsPropagate(t *testing.T) {
	caller := &fakeCaller{err: model.ErrServiceUnavailable}
	g := newTestGenerator(caller)

	if _, err := g.Email(context.Background(), "report the delay", types.UserContext{}); err == nil {
		t.Fatal("expected error from failed email generation")
	}
}

func TestApplyEditsEmptyRequestKeepsDraft(t *testing.T) {
	caller := &fakeCaller{}
	g := newTestGenerator(caller)

	out, err := g.ApplyEdits(context.Background(), "Original draft.", "  ")
	if err != nil {
		t.Fatalf("apply edits failed: %v", err)
	}
	if out.Content != "Original draft." {
		t.Fatalf("content = %q, want unchanged draft", out.Content)
	}
	if caller.calls != 0 {
		t.Fatalf("upstream called %d times for empty edit, want 0", caller.calls)
	}
}

func TestAnalyzeUpdateParsesEnum(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		"update_type": `Sure! {"update_type": "comment_and_status", "reason": "work is finished"}`,
	}}
	g := newTestGenerator(caller)

	got := g.AnalyzeUpdate(context.Background(), "Finished and deployed.", types.UserContext{})
	if got != types.UpdateCommentAndStatus {
		t.Fatalf("update type = %s, want comment_and_status", got)
	}
}

func TestAnalyzeUpdateDefaultsOnFailure(t *testing.T) {
	cases := []struct {
		name   string
		caller *fakeCaller
	}{
		{"upstream error", &fakeCaller{err: model.ErrServiceUnavailable}},
		{"no json", &fakeCaller{replies: map[string]string{"update_type": "comment_and_status"}}},
		{"out of enum", &fakeCaller{replies: map[string]string{"update_type": `{"update_type": "delete_everything"}`}}},
	}
	for _, tc := range cases {
		g := newTestGenerator(tc.caller)
		got := g.AnalyzeUpdate(context.Background(), "Finished the task.", types.UserContext{})
		if got != types.UpdateCommentOnly {
			t.Fatalf("%s: update type = %s, want comment_only", tc.name, got)
		}
	}
}

func TestClassifyIntentParsesReply(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		"classify": `{"intent": "email_generation", "confidence": 0.9}`,
	}}
	g := newTestGenerator(caller)

	intent, confidence, err := g.ClassifyIntent(context.Background(), "can you draft a note to my manager")
	if err != nil {
		t.Fatalf("classify intent failed: %v", err)
	}
	if intent != "email_generation" {
		t.Fatalf("intent = %s", intent)
	}
	if confidence != 0.9 {
		t.Fatalf("confidence = %f", confidence)
	}
}

func TestClassifyIntentRejectsUnknown(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		"classify": `{"intent": "world_domination", "confidence": 1.0}`,
	}}
	g := newTestGenerator(caller)

	if _, _, err := g.ClassifyIntent(context.Background(), "whatever"); err == nil {
		t.Fatal("expected error for unknown intent")
	}
}

func TestClassifyIntentCachesRoutingDecision(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		"classify": `{"intent": "task_completion", "confidence": 0.85}`,
	}}
	g := newTestGenerator(caller)

	intent, confidence, err := g.ClassifyIntent(context.Background(), "wrapped that one up i think")
	if err != nil {
		t.Fatalf("first classify failed: %v", err)
	}
	again, againConfidence, err := g.ClassifyIntent(context.Background(), "wrapped that one up i think")
	if err != nil {
		t.Fatalf("second classify failed: %v", err)
	}
	if caller.calls != 1 {
		t.Fatalf("upstream called %d times, want 1", caller.calls)
	}
	if again != intent || againConfidence != confidence {
		t.Fatalf("cached result (%s, %f) differs from original (%s, %f)", again, againConfidence, intent, confidence)
	}
}
