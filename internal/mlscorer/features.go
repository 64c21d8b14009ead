// Package mlscorer scores text with an ONNX classifier over hand-built
// features and falls back to the rule scorer when the model is missing or
// unsure.
package mlscorer

import (
	"regexp"
	"strings"
	"unicode"
)

// FeatureNames lists the model inputs in tensor order.
var FeatureNames = []string{
	"text_length",
	"word_count",
	"digit_count",
	"upper_count",
	"special_char_count",
	"has_braces",
	"has_brackets",
	"has_parentheses",
	"has_semicolon",
	"has_arrow",
	"has_formal_greeting",
	"has_email_marker",
	"comma_count",
	"period_count",
	"has_emoji",
	"has_slang",
	"has_repeated_punctuation",
	"exclamation_count",
	"question_count",
}

// NumFeatures is the width of the model input.
var NumFeatures = len(FeatureNames)

var repeatedMarksRe = regexp.MustCompile(`[!?]{2,}`)

// Features extracts the model input vector for text.
func Features(text string) []float32 {
	lower := strings.ToLower(text)
	f := make([]float32, 0, NumFeatures)

	var runes, digits, upper, special int
	hasEmoji := false
	for _, r := range text {
		runes++
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsUpper(r):
			upper++
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
		if r >= 0x1F600 && r <= 0x1F64F {
			hasEmoji = true
		}
	}

	f = append(f,
		float32(runes),
		float32(len(strings.Fields(text))),
		float32(digits),
		float32(upper),
		float32(special),
		flag(strings.ContainsAny(text, "{}")),
		flag(strings.ContainsAny(text, "[]")),
		flag(strings.ContainsAny(text, "()")),
		flag(strings.Contains(text, ";")),
		flag(strings.Contains(text, "=>") || strings.Contains(text, "->")),
		flag(containsAny(lower, "dear", "sincerely", "regards")),
		flag(strings.Contains(text, "@") || strings.Contains(lower, "subject:")),
		float32(strings.Count(text, ",")),
		float32(strings.Count(text, ".")),
		flag(hasEmoji),
		flag(containsAny(lower, "lol", "omg", "btw", "brb")),
		flag(repeatedMarksRe.MatchString(text)),
		float32(strings.Count(text, "!")),
		float32(strings.Count(text, "?")),
	)
	return f
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
