package suggest

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/contexttype/contexttype/internal/detect"
)

type follower struct {
	after *regexp.Regexp
	words []string
}

var starters = map[detect.Context][]string{
	detect.Code:  {"const", "function", "let", "import"},
	detect.Email: {"Dear", "Hi", "Hello", "Good"},
	detect.Chat:  {"hey", "hi", "👋", "yo"},
}

var fallbacks = map[detect.Context][]string{
	detect.Code:  {"const", "function", "return", "if", "await"},
	detect.Email: {"the", "you", "and", "for", "to"},
	detect.Chat:  {"yeah", "😊", "lol", "ok", "!"},
}

// followers are matched against the right-trimmed text, first match wins.
var followers = map[detect.Context][]follower{
	detect.Code: {
		{regexp.MustCompile(`public\s+static\s+void$`), []string{"main", "execute", "run", "process"}},
		{regexp.MustCompile(`public\s+class$`), []string{"Main", "Application", "Service", "Controller"}},
		{regexp.MustCompile(`\bdef$`), []string{"main", "init", "calculate", "process"}},
		{regexp.MustCompile(`\bfunction$`), []string{"handle", "calculate", "get", "fetch"}},
		{regexp.MustCompile(`\b(?:const|let|var)$`), []string{"result", "data", "response", "user"}},
		{regexp.MustCompile(`\b(?:const|let|var)\s+\w+$`), []string{"=", ":", ";"}},
		{regexp.MustCompile(`=$`), []string{"await", "new", "null", `""`}},
		{regexp.MustCompile(`\bawait$`), []string{"fetch", "response", "Promise", "getData"}},
		{regexp.MustCompile(`\bif$`), []string{"(", "user", "data", "error"}},
		{regexp.MustCompile(`\breturn$`), []string{"result", "data", "null", "true"}},
		{regexp.MustCompile(`\bimport$`), []string{"React", "os", "sys", "{"}},
	},
	detect.Email: {
		{regexp.MustCompile(`(?i)\bdear$`), []string{"Sir", "Madam", "Hiring", "Team"}},
		{regexp.MustCompile(`(?i)\bhope\s+this\s+email\s+finds\s+you$`), []string{"well", "in", "at"}},
		{regexp.MustCompile(`(?i)\bthank\s+you\s+for\s+your$`), []string{"time", "help", "consideration", "support"}},
		{regexp.MustCompile(`(?i)\bplease\s+let\s+me$`), []string{"know", "hear"}},
		{regexp.MustCompile(`(?i)\blooking\s+forward\s+to$`), []string{"hearing", "meeting", "working", "your"}},
		{regexp.MustCompile(`(?i)\bbest$`), []string{"regards", "wishes"}},
		{regexp.MustCompile(`(?i)\bkind$`), []string{"regards"}},
		{regexp.MustCompile(`(?i)\bi\s+am\s+writing\s+to$`), []string{"inquire", "follow", "request", "inform"}},
	},
	detect.Chat: {
		{regexp.MustCompile(`(?i)\bhow\s+are$`), []string{"you", "u", "things", "ya"}},
		{regexp.MustCompile(`(?i)\bhow\s+are\s+you$`), []string{"doing", "?", "today", "feeling"}},
		{regexp.MustCompile(`(?i)\bsee\s+you$`), []string{"soon", "later", "tomorrow", "tonight"}},
		{regexp.MustCompile(`(?i)\bwhat\s+are\s+you$`), []string{"doing", "up", "thinking", "saying"}},
		{regexp.MustCompile(`(?i)\b(?:lol|haha)$`), []string{"yeah", "😂", "that's", "so"}},
		{regexp.MustCompile(`(?i)\bomg$`), []string{"did", "that's", "no", "😱"}},
	},
}

// vocabularies feed completion of a partially typed word.
var vocabularies = map[detect.Context][]string{
	detect.Code: {
		"function", "const", "let", "var", "return", "import", "export", "async", "await",
		"interface", "class", "extends", "implements", "public", "private", "protected",
		"static", "void", "string", "number", "boolean", "console", "length", "response",
		"request", "result", "fetch", "Promise", "undefined", "null", "true", "false",
		"handle", "calculate", "process", "forEach", "filter", "reduce", "map",
	},
	detect.Email: {
		"regards", "sincerely", "attached", "attachment", "meeting", "schedule", "availability",
		"appreciate", "consideration", "opportunity", "position", "regarding", "following",
		"information", "additional", "further", "question", "questions", "thanks", "thank",
		"please", "colleague", "team", "project", "discuss", "confirm", "tomorrow", "forward",
	},
	detect.Chat: {
		"yeah", "yep", "nope", "haha", "lol", "omg", "tonight", "tomorrow", "later",
		"gonna", "wanna", "kinda", "literally", "awesome", "cool", "thanks", "sure",
		"sounds", "good", "great", "what's", "that's", "really", "okay", "anyway",
	},
}

// Static answers from fixed per-context tables. It never fails for a valid
// context.
type Static struct{}

func NewStatic() *Static { return &Static{} }

func (s *Static) Name() string { return "static" }

func (s *Static) Suggest(_ context.Context, req Request) ([]Suggestion, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	limit := req.Count()

	text := strings.TrimRightFunc(req.Text, unicode.IsSpace)
	if text == "" {
		return ranked(starters[req.Context], req.Context, 0.9, 0.05, limit), nil
	}

	for _, f := range followers[req.Context] {
		if f.after.MatchString(text) {
			return ranked(f.words, req.Context, 0.95, 0.05, limit), nil
		}
	}

	// A text ending in a letter is mid-word unless the caller typed a space.
	if partial := trailingWord(req.Text); partial != "" {
		if words := complete(partial, vocabularies[req.Context]); len(words) > 0 {
			return ranked(words, req.Context, 0.9, 0.1, limit), nil
		}
	}

	return ranked(fallbacks[req.Context], req.Context, 0.9, 0.05, limit), nil
}

// trailingWord returns the word under the cursor, or "" when the text ends in
// whitespace or punctuation.
func trailingWord(text string) string {
	r, _ := utf8.DecodeLastRuneInString(text)
	if !unicode.IsLetter(r) {
		return ""
	}
	i := strings.LastIndexFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	return text[i+1:]
}

// complete ranks vocabulary words that fuzzily match partial, dropping the
// partial itself.
func complete(partial string, vocab []string) []string {
	matches := fuzzy.Find(partial, vocab)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.EqualFold(m.Str, partial) {
			continue
		}
		out = append(out, m.Str)
	}
	return out
}
