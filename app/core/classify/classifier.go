package classify

import (
	"regexp"
	"sort"
	"strings"

	"taskpilot/app/pkg/types"
)

// Intent labels produced by the classifier.
const (
	IntentTaskCompletion    = "task_completion"
	IntentProductivityQuery = "productivity_query"
	IntentEmailGeneration   = "email_generation"
	IntentCommentGeneration = "comment_generation"
)

// Backend actions resolved without a model call.
const (
	ActionMarkTaskComplete  = "mark_task_complete"
	ActionProductivityStats = "calculate_productivity_stats"
)

// Result is the classification outcome for one input. Ephemeral, never persisted.
type Result struct {
	Intent         string
	Confidence     float64
	RouteType      string
	BackendAction  string
	MatchedPattern string
	Entities       map[string][]string
}

// Rule is one entry of the ordered classification table. Lower priority
// numbers are checked first; the first matching rule wins.
type Rule struct {
	Name          string
	Pattern       *regexp.Regexp
	Intent        string
	RouteType     string
	BackendAction string
	Confidence    float64
	Priority      int
}

var defaultRules = []Rule{
	{
		Name:          "completion",
		Pattern:       regexp.MustCompile(`(?i)\b(done|completed|finished|complete)\b|\btask\s+(is\s+)?(done|finished|complete)|\bmark\s+as\s+(done|complete)|\b(finish|close)\s+task`),
		Intent:        IntentTaskCompletion,
		RouteType:     types.RouteBackendAction,
		BackendAction: ActionMarkTaskComplete,
		Confidence:    0.95,
		Priority:      10,
	},
	{
		Name:          "productivity",
		Pattern:       regexp.MustCompile(`(?i)how\s+productive\s+was\s+i|my\s+productivity\s+(this\s+week|last\s+week)|productivity\s+(score|stats|report)|how\s+many\s+tasks\s+(completed|finished)|completion\s+rate|weekly\s+(summary|report)`),
		Intent:        IntentProductivityQuery,
		RouteType:     types.RouteBackendAction,
		BackendAction: ActionProductivityStats,
		Confidence:    0.90,
		Priority:      20,
	},
	{
		Name:       "email",
		Pattern:    regexp.MustCompile(`(?i)(write|send|compose)\s+(an?\s+)?email|email\s+(my\s+)?manager|sick\s+leave\s+(request|email)|(pto|vacation)\s+(request|email)`),
		Intent:     IntentEmailGeneration,
		RouteType:  types.RouteLLM,
		Confidence: 0.85,
		Priority:   30,
	},
}

// complexIndicators mark updates that carry enough detail to be worth a
// model rephrase even without another rule firing.
var complexIndicators = regexp.MustCompile(`(?i)\b(tested|testing|fixed|fixing|implemented|working on|waiting for|blocked by|pending|staging|production|deployment|issue|bug|problem|error|review|approval|qa|quality)\b`)

var (
	taskIDPattern  = regexp.MustCompile(`(?i)(?:task\s*#?|[A-Z]+-)(\d+)\b`)
	statusKeywords = []string{"done", "completed", "finished", "pending", "blocked", "testing", "in progress", "resolved"}
	technicalTerms = []string{"api", "bug", "feature", "database", "frontend", "backend", "deployment", "staging", "production"}
)

// Classifier routes free text by an ordered regex rule table. Pure and
// side-effect free; no I/O.
type Classifier struct {
	rules          []Rule
	maxInputLength int
}

func New(maxInputLength int, extra ...Rule) *Classifier {
	if maxInputLength <= 0 {
		maxInputLength = 5000
	}
	rules := make([]Rule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
	return &Classifier{rules: rules, maxInputLength: maxInputLength}
}

func (c *Classifier) Classify(text string, uctx types.UserContext) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{
			Intent:         IntentCommentGeneration,
			Confidence:     0.0,
			RouteType:      types.RouteLLM,
			MatchedPattern: "empty_input",
		}
	}
	if len(trimmed) > c.maxInputLength {
		trimmed = trimmed[:c.maxInputLength]
	}

	for _, rule := range c.rules {
		if rule.Pattern.MatchString(trimmed) {
			return Result{
				Intent:         rule.Intent,
				Confidence:     rule.Confidence,
				RouteType:      rule.RouteType,
				BackendAction:  rule.BackendAction,
				MatchedPattern: rule.Name,
				Entities:       ExtractEntities(trimmed),
			}
		}
	}

	// Multiple complex indicators or long text: confident rephrase route.
	if len(complexIndicators.FindAllString(trimmed, -1)) >= 2 || len(trimmed) > 50 {
		return Result{
			Intent:         IntentCommentGeneration,
			Confidence:     0.80,
			RouteType:      types.RouteLLM,
			MatchedPattern: "complex_update",
			Entities:       ExtractEntities(trimmed),
		}
	}

	// Nothing matched: default route with low confidence. The pipeline
	// treats sub-threshold confidence as ambiguous and may consult the
	// model classification helper.
	return Result{
		Intent:         IntentCommentGeneration,
		Confidence:     0.50,
		RouteType:      types.RouteLLM,
		MatchedPattern: "ambiguous",
		Entities:       ExtractEntities(trimmed),
	}
}

// ExtractEntities pulls task ids, status keywords, and technical terms out
// of the input for downstream prompt context.
func ExtractEntities(text string) map[string][]string {
	entities := map[string][]string{}
	lower := strings.ToLower(text)

	matches := taskIDPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		seen := map[string]bool{}
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			if !seen[m[1]] {
				seen[m[1]] = true
				ids = append(ids, m[1])
			}
		}
		entities["task_ids"] = ids
	}

	var found []string
	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	if len(found) > 0 {
		entities["status_keywords"] = found
	}

	var terms []string
	for _, term := range technicalTerms {
		if strings.Contains(lower, term) {
			terms = append(terms, term)
		}
	}
	if len(terms) > 0 {
		entities["technical_terms"] = terms
	}
	return entities
}
