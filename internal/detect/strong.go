package detect

import "regexp"

// strongSignal is a high-precision pattern that counts as near-certain evidence
// for one context.
type strongSignal struct {
	name    string
	context Context
	match   func(string) bool
}

func pattern(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

var strongSignals = []strongSignal{
	{"method_declaration", Code, pattern(`(?i)\b(?:public|private|protected)\s+(?:static\s+)?(?:void|int|String|boolean|class|final)\b`)},
	{"function_declaration", Code, pattern(`(?i)\bfunction\s+\w+`)},
	{"def_declaration", Code, pattern(`\bdef\s+\w+`)},
	{"variable_declaration", Code, pattern(`\b(?:const|let|var)\s+\w+\s*=\s*(?:await\s+)?`)},
	{"module_statement", Code, pattern(`(?m)^\s*(?:import|export)\s+\S`)},
	{"type_declaration", Code, pattern(`\b(?:class|interface)\s+[A-Z]\w*`)},
	{"bracket_run", Code, pattern(`[{}()\[\]]{2,}`)},
	{"arrow_block", Code, pattern(`=>\s*\{`)},
	{"method_call", Code, pattern(`\w+\.\w+\(`)},

	{"salutation", Email, pattern(`^\s*(?:Dear|Hi|Hello)\s+[A-Z][^\n,]*[,\n]\s*\S`)},
	{"closing_regards", Email, pattern(`(?i)best\s+regards,?\s*$`)},
	{"closing_sincerely", Email, pattern(`(?i)sincerely,?\s*$`)},
	{"thanks_for_your", Email, pattern(`(?i)\b(?:thank\s+you|thanks)\s+for\s+your\b`)},
	{"hope_this_email", Email, pattern(`(?i)\bi\s+hope\s+this\s+email\s+finds\b`)},
	{"please_let_me_know", Email, pattern(`(?i)\bplease\s+let\s+me\s+know\b`)},

	{"greeting_slang", Chat, pattern(`(?i)^\s*(?:hey|yo|sup|wassup|what'?s\s+up)\b`)},
	{"slang", Chat, pattern(`(?i)\b(?:lol|lmao|omg|wtf|btw|tbh|imo|idk|brb)\b`)},
	{"emoji", Chat, containsEmoji},
	{"repeated_marks", Chat, pattern(`!{2,}|\?{2,}`)},
}

// StrongPattern names one strong-signal rule.
type StrongPattern struct {
	Name    string  `json:"name"`
	Context Context `json:"context"`
}

// StrongPatterns lists the strong-signal rules.
func StrongPatterns() []StrongPattern {
	out := make([]StrongPattern, 0, len(strongSignals))
	for _, s := range strongSignals {
		out = append(out, StrongPattern{Name: s.name, Context: s.context})
	}
	return out
}

// HasStrongSignal reports whether any strong pattern for candidate matches text.
func HasStrongSignal(text string, candidate Context) bool {
	for _, s := range strongSignals {
		if s.context == candidate && s.match(text) {
			return true
		}
	}
	return false
}

// StrongSignals returns the names of every strong pattern that matches text,
// grouped by context. Contexts without a match are omitted.
func StrongSignals(text string) map[Context][]string {
	out := make(map[Context][]string)
	for _, s := range strongSignals {
		if s.match(text) {
			out[s.context] = append(out[s.context], s.name)
		}
	}
	return out
}
