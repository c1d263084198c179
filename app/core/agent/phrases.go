package agent

import "strings"

var affirmativePhrases = map[string]bool{
	"yes": true, "yep": true, "yeah": true, "y": true,
	"ok": true, "okay": true, "sure": true,
	"go ahead": true, "confirm": true, "proceed": true,
}

// editPhrases signal the user wants to change the draft. Acceptance
// words like "ok" deliberately fall through to the confirmation step.
var editPhrases = map[string]bool{
	"yes": true, "yep": true, "yeah": true, "y": true,
	"edit": true, "change": true, "changes": true, "modify": true,
}

var completionKeywords = map[string]bool{
	"done": true, "completed": true, "complete": true,
	"finished": true, "resolved": true, "closed": true,
}

func normalizePhrase(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.Trim(s, ".,!?")
}

func isAffirmative(text string) bool {
	return affirmativePhrases[normalizePhrase(text)]
}

func wantsEdit(text string) bool {
	s := normalizePhrase(text)
	if editPhrases[s] {
		return true
	}
	for _, w := range strings.Fields(s) {
		if w == "edit" || w == "change" {
			return true
		}
	}
	return false
}

// impliesCompletion reports whether free text contains one of the
// completion keywords as a standalone word.
func impliesCompletion(text string) bool {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if completionKeywords[strings.Trim(w, ".,!?;:")] {
			return true
		}
	}
	return false
}
