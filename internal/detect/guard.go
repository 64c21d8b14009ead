package detect

import "strings"

// Keywords that also occur in ordinary prose.
var proseKeywords = map[string]bool{"for": true, "while": true, "if": true}

var naturalPhrases = []string{
	"for the", "for you", "for me", "for dinner", "for lunch", "for a", "for an",
	"planning for", "waiting for", "looking for",
	"while you", "while i", "while we",
	"if you", "if i", "if we",
	"what are you", "how are you", "where are you",
}

// looksLikeProse reports whether the only code keywords in text are for/while/if
// and the text contains a natural-language phrase built around them.
func looksLikeProse(text string) bool {
	lower := strings.ToLower(text)
	found := codeKeywordRe.FindAllString(lower, -1)
	if len(found) == 0 {
		return false
	}
	for _, kw := range found {
		if !proseKeywords[kw] {
			return false
		}
	}
	for _, p := range naturalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
