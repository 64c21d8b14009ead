package detect

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	codeKeywordRe = regexp.MustCompile(`(?i)\b(?:function|class|def|const|let|var|import|return|if|else|while|for|async|await|export|interface|type|enum|public|private|protected|void)\b`)
	camelCaseRe   = regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z]*\b`)
	snakeCaseRe   = regexp.MustCompile(`\b[a-z]+_[a-z_]+\b`)

	chatSlangRe    = regexp.MustCompile(`(?i)\b(?:lol|omg|btw|brb|gtg|idk|tbh|ngl|imo|imho|fyi|lmao|haha|hehe|gonna|wanna|kinda|sorta|yeah|yep|yup|nope|sup|hey|yo)\b`)
	repeatPunctRe  = regexp.MustCompile(`[!?]{2,}|\.{3,}`)
	allCapsWordRe  = regexp.MustCompile(`\b[A-Z]{2,}\b`)
	formalStopRe   = regexp.MustCompile(`[,.;:]`)
	sentenceEndsRe = regexp.MustCompile(`[.!?]+`)
)

var codeSymbols = []string{"{", "}", "(", ")", "[", "]", "=>", "===", "!==", "&&", "||", ";", ":"}

var emailKeywords = []string{
	"dear", "sincerely", "regards", "best regards", "thank you", "thanks",
	"please find attached", "subject:", "to:", "from:", "cc:", "bcc:",
	"furthermore", "regarding", "attached", "meeting",
}

var emailPhrases = []string{
	"i hope this email finds you", "thank you for", "please let me know",
	"looking forward", "i would like to", "could you please",
}

var chatContractions = []string{"gonna", "wanna", "kinda", "sorta", "gotta", "lemme"}

// informalMinChars is the length past which sparse punctuation reads as chat.
const informalMinChars = 30

// rule is one scoring signal: it counts occurrences in the text and adds
// count times its weight to one context.
type rule struct {
	name    string
	context Context
	weight  func(Weights) float64
	count   func(text, lower string) int
}

var rules = []rule{
	{"code_keyword", Code, func(w Weights) float64 { return w.CodeKeyword }, regexCount(codeKeywordRe)},
	{"code_symbol", Code, func(w Weights) float64 { return w.CodeSymbol }, literalCount(codeSymbols)},
	{"camel_case", Code, func(w Weights) float64 { return w.CamelCase }, regexCount(camelCaseRe)},
	{"snake_case", Code, func(w Weights) float64 { return w.SnakeCase }, regexCount(snakeCaseRe)},

	{"email_keyword", Email, func(w Weights) float64 { return w.EmailKeyword }, lowerCount(emailKeywords)},
	{"email_phrase", Email, func(w Weights) float64 { return w.EmailPhrase }, lowerCount(emailPhrases)},
	{"formal_punctuation", Email, func(w Weights) float64 { return w.FormalPunctuation }, literalCount([]string{",", "."})},
	{"capitalized_sentence", Email, func(w Weights) float64 { return w.CapitalizedSentence }, capitalizedSentences},

	{"chat_slang", Chat, func(w Weights) float64 { return w.ChatSlang }, regexCount(chatSlangRe)},
	{"emoji", Chat, func(w Weights) float64 { return w.Emoji }, emojiCount},
	{"repeated_punctuation", Chat, func(w Weights) float64 { return w.RepeatedPunctuation }, regexCount(repeatPunctRe)},
	{"all_caps", Chat, func(w Weights) float64 { return w.AllCaps }, regexCount(allCapsWordRe)},
	{"contraction", Chat, func(w Weights) float64 { return w.Contraction }, lowerCount(chatContractions)},
	{"informal_bonus", Chat, func(w Weights) float64 { return w.InformalBonus }, informalStyle},
}

// RuleInfo describes one scoring rule.
type RuleInfo struct {
	Name    string  `json:"name"`
	Context Context `json:"context"`
	Weight  float64 `json:"weight"`
}

// Rules lists the scoring rules with the weights from w.
func Rules(w Weights) []RuleInfo {
	out := make([]RuleInfo, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleInfo{Name: r.name, Context: r.context, Weight: r.weight(w)})
	}
	return out
}

func regexCount(re *regexp.Regexp) func(string, string) int {
	return func(text, _ string) int {
		return len(re.FindAllStringIndex(text, -1))
	}
}

func literalCount(needles []string) func(string, string) int {
	return func(text, _ string) int {
		n := 0
		for _, s := range needles {
			n += strings.Count(text, s)
		}
		return n
	}
}

func lowerCount(needles []string) func(string, string) int {
	return func(_, lower string) int {
		n := 0
		for _, s := range needles {
			n += strings.Count(lower, s)
		}
		return n
	}
}

func capitalizedSentences(text, _ string) int {
	n := 0
	for _, part := range sentenceEndsRe.Split(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(part)
		if unicode.IsUpper(r) {
			n++
		}
	}
	return n
}

func emojiCount(text, _ string) int {
	n := 0
	for _, r := range text {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

func informalStyle(text, _ string) int {
	if len(formalStopRe.FindAllStringIndex(text, 2)) < 2 && charLen(text) > informalMinChars {
		return 1
	}
	return 0
}

// isEmoji covers the pictograph blocks that count as emoji for scoring.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // emoticons
		return true
	case r >= 0x1F300 && r <= 0x1F5FF: // symbols and pictographs
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // transport and map
		return true
	case r >= 0x1F1E0 && r <= 0x1F1FF: // regional indicators
		return true
	case r >= 0x2600 && r <= 0x26FF: // misc symbols
		return true
	case r >= 0x2700 && r <= 0x27BF: // dingbats
		return true
	}
	return false
}

func containsEmoji(text string) bool {
	for _, r := range text {
		if isEmoji(r) {
			return true
		}
	}
	return false
}
