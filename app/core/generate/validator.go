package generate

import (
	"regexp"
	"strings"
)

// Verdict is the validator's judgement on one generated text.
type Verdict struct {
	Score            float64
	ApprovalRequired bool
	Flags            []string
}

var professionalMarkers = []string{
	"completed", "implemented", "resolved", "reviewed", "deployed",
	"updated", "investigated", "verified", "delivered", "finalized",
	"configured", "tested", "documented", "coordinated",
}

var unprofessionalMarkers = []string{
	"lol", "omg", "wtf", "dunno", "gonna", "wanna", "kinda",
	"stuff", "whatever", "sucks", "crap", "idk", "btw",
}

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                            // SSN
	regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`),                           // card number
	regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_ ]?key)\s*[:=]`), // credentials
	regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@(?:gmail|yahoo|hotmail|outlook)\.com\b`),
}

// Validator scores generated text and decides whether a human must
// approve it before it leaves the system.
type Validator struct {
	qualityThreshold  float64
	approvalThreshold float64
}

func NewValidator(qualityThreshold, approvalThreshold float64) *Validator {
	if qualityThreshold <= 0 {
		qualityThreshold = 0.7
	}
	if approvalThreshold <= 0 {
		approvalThreshold = 0.8
	}
	return &Validator{
		qualityThreshold:  qualityThreshold,
		approvalThreshold: approvalThreshold,
	}
}

// Validate scores text for the given route. Sensitive content always
// forces approval regardless of score.
func (v *Validator) Validate(text, route string) Verdict {
	verdict := Verdict{Score: 0.5}
	lower := strings.ToLower(text)
	words := strings.Fields(text)

	minWords, maxWords := 3, 100
	if route == RouteEmail {
		minWords, maxWords = 10, 300
	}
	switch {
	case len(words) < minWords:
		verdict.Score -= 0.3
		verdict.Flags = append(verdict.Flags, "too_short")
	case len(words) > maxWords:
		verdict.Score -= 0.2
		verdict.Flags = append(verdict.Flags, "too_long")
	default:
		verdict.Score += 0.2
	}

	for _, w := range professionalMarkers {
		if strings.Contains(lower, w) {
			verdict.Score += 0.1
			if verdict.Score >= 1.0 {
				break
			}
		}
	}
	for _, w := range unprofessionalMarkers {
		if containsWord(lower, w) {
			verdict.Score -= 0.15
			verdict.Flags = append(verdict.Flags, "unprofessional_language")
			break
		}
	}

	sensitive := false
	for _, re := range sensitivePatterns {
		if re.MatchString(text) {
			sensitive = true
			break
		}
	}
	if sensitive {
		verdict.Score -= 0.4
		verdict.Flags = append(verdict.Flags, "sensitive_content")
	}

	if verdict.Score > 1.0 {
		verdict.Score = 1.0
	}
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score < v.qualityThreshold {
		verdict.Flags = append(verdict.Flags, "low_quality")
	}

	verdict.ApprovalRequired = sensitive ||
		verdict.Score < v.approvalThreshold ||
		len(verdict.Flags) > 0
	return verdict
}

func containsWord(haystack, word string) bool {
	for _, f := range strings.Fields(haystack) {
		if strings.Trim(f, ".,!?;:") == word {
			return true
		}
	}
	return false
}
