// Package suggest produces next-word suggestions for the active context.
package suggest

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/contexttype/contexttype/internal/detect"
)

var (
	// ErrNoSuggestions is returned when a provider produced nothing usable.
	ErrNoSuggestions = errors.New("no suggestions")
	// ErrUnknownContext is returned for a context outside code, email and chat.
	ErrUnknownContext = errors.New("unknown context")
)

const (
	DefaultMaxCount = 5
	MaxCountLimit   = 10

	windowMinWords = 6
	windowMaxWords = 15
)

// Type classifies a suggestion for display.
type Type string

const (
	TypeKeyword     Type = "keyword"
	TypeIdentifier  Type = "identifier"
	TypeWord        Type = "word"
	TypePhrase      Type = "phrase"
	TypeEmoji       Type = "emoji"
	TypePunctuation Type = "punctuation"
)

type Suggestion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Type       Type    `json:"type"`
}

type Request struct {
	Text     string
	Context  detect.Context
	MaxCount int
}

// Count returns MaxCount with the default applied and the upper limit enforced.
func (r Request) Count() int {
	switch {
	case r.MaxCount <= 0:
		return DefaultMaxCount
	case r.MaxCount > MaxCountLimit:
		return MaxCountLimit
	}
	return r.MaxCount
}

// Provider returns suggestions ordered best first.
type Provider interface {
	Name() string
	Suggest(ctx context.Context, req Request) ([]Suggestion, error)
}

func checkRequest(req Request) error {
	if !req.Context.Valid() {
		return ErrUnknownContext
	}
	return nil
}

// promptWindow keeps the last words of long texts so the prompt stays focused.
func promptWindow(text string) string {
	words := strings.Fields(text)
	if len(words) <= windowMinWords {
		return text
	}
	if len(words) > windowMaxWords {
		words = words[len(words)-windowMaxWords:]
	}
	return strings.Join(words, " ")
}

var codeKeywords = map[string]struct{}{
	"function": {}, "const": {}, "let": {}, "var": {}, "if": {}, "else": {},
	"for": {}, "while": {}, "return": {}, "import": {}, "export": {},
	"await": {}, "async": {}, "new": {}, "null": {},
}

// typeOf guesses the display type of a candidate.
func typeOf(text string, c detect.Context) Type {
	if c == detect.Code {
		if _, ok := codeKeywords[strings.ToLower(text)]; ok {
			return TypeKeyword
		}
		if isPunctuation(text) {
			return TypeKeyword
		}
		return TypeIdentifier
	}
	if r := []rune(text); len(r) > 0 && isFace(r[0]) {
		return TypeEmoji
	}
	if isPunctuation(text) {
		return TypePunctuation
	}
	if strings.ContainsAny(text[len(text)-1:], ".!?,;:") || strings.Contains(text, " ") {
		return TypePhrase
	}
	return TypeWord
}

func isFace(r rune) bool {
	return (r >= 0x1F600 && r <= 0x1F64F) || (r >= 0x1F900 && r <= 0x1F9FF) || (r >= 0x1F440 && r <= 0x1F4FF)
}

func isPunctuation(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

// ranked turns candidates into suggestions with confidence falling by step per
// rank, skipping blanks and duplicates.
func ranked(words []string, c detect.Context, top, step float64, limit int) []Suggestion {
	out := make([]Suggestion, 0, min(len(words), limit))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		conf := top - step*float64(len(out))
		if conf < 0.05 {
			conf = 0.05
		}
		out = append(out, Suggestion{Text: w, Confidence: conf, Type: typeOf(w, c)})
		if len(out) == limit {
			break
		}
	}
	return out
}
