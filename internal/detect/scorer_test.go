package detect

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRuleScorerEmptyText(t *testing.T) {
	s := NewRuleScorer(DefaultWeights())
	got := s.Score("")
	if diff := cmp.Diff(ScoreSet{}, got); diff != "" {
		t.Fatalf("expected zero scores (-want +got):\n%s", diff)
	}
	res := Classify(got)
	if res.Context != Code {
		t.Fatalf("expected code baseline, got %s", res.Context)
	}
	if math.Abs(res.Confidence-1.0/3.0) > 1e-9 {
		t.Fatalf("expected equal share confidence, got %v", res.Confidence)
	}
}

func TestRuleScorerPerRule(t *testing.T) {
	s := NewRuleScorer(DefaultWeights())

	tests := []struct {
		name  string
		text  string
		rule  string
		count int
	}{
		{"keyword case insensitive", "Return IF x", "code_keyword", 2},
		{"keyword word boundary", "format information", "code_keyword", 0},
		{"symbols literal", "a && b || c;", "code_symbol", 3},
		{"camel case", "getUserName and x", "camel_case", 1},
		{"snake case", "user_name and max_retry_count", "snake_case", 2},
		{"email keyword substring", "thanks, regarding the meeting", "email_keyword", 3},
		{"email phrase", "please let me know, thank you for it", "email_phrase", 2},
		{"formal punctuation", "a, b. c", "formal_punctuation", 2},
		{"capitalized sentences", "One. two. Three!", "capitalized_sentence", 2},
		{"slang", "LOL idk tbh", "chat_slang", 3},
		{"emoji", "ok 😂🚀 ☀", "emoji", 3},
		{"repeated punctuation", "what?? no!! wait...", "repeated_punctuation", 3},
		{"all caps", "this is SO COOL", "all_caps", 2},
		{"contraction", "gonna gotta lemme", "contraction", 3},
		{"informal bonus", "just checking in to see what you think", "informal_bonus", 1},
		{"no informal bonus when punctuated", "Hello, there. This is a longer formal sentence.", "informal_bonus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := 0
			for _, h := range s.Explain(tt.text) {
				if h.Rule == tt.rule {
					got = h.Count
				}
			}
			if got != tt.count {
				t.Fatalf("expected %s count %d for %q, got %d", tt.rule, tt.count, tt.text, got)
			}
		})
	}
}

func TestRuleScorerWeightOrdering(t *testing.T) {
	w := DefaultWeights()
	order := []float64{w.Emoji, w.ChatSlang, w.CodeKeyword, w.CodeSymbol, w.FormalPunctuation}
	for i := 1; i < len(order); i++ {
		if order[i-1] <= order[i] {
			t.Fatalf("expected strictly decreasing signal strengths, got %v", order)
		}
	}
}

func TestRuleScorerConfigurableWeights(t *testing.T) {
	w := DefaultWeights()
	w.ChatSlang = 0
	s := NewRuleScorer(w)
	got := s.Score("lol")
	if got.Chat != 0 {
		t.Fatalf("expected zeroed slang weight to silence lol, got %v", got.Chat)
	}
}

func TestRuleScorerTypicalTexts(t *testing.T) {
	s := NewRuleScorer(DefaultWeights())
	tests := []struct {
		text string
		want Context
	}{
		{"function calculateTotal(items) { return items.length; }", Code},
		{"Dear Mr. Smith, Thank you for your time. Best regards, Anna", Email},
		{"lol omg that's hilarious 😂", Chat},
	}
	for _, tt := range tests {
		if got := Classify(s.Score(tt.text)).Context; got != tt.want {
			t.Fatalf("expected %s for %q, got %s", tt.want, tt.text, got)
		}
	}
}

func TestClassifyTieBreakAndBounds(t *testing.T) {
	res := Classify(ScoreSet{Email: 2, Chat: 2})
	if res.Context != Email {
		t.Fatalf("expected email to win tie over chat, got %s", res.Context)
	}
	res = Classify(ScoreSet{Code: -4, Chat: 1})
	if res.Scores.Code != 0 {
		t.Fatalf("expected negative score clamped to zero, got %v", res.Scores.Code)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Fatalf("expected confidence in [0,1], got %v", res.Confidence)
	}
}

func TestScorerHandlesInvalidUTF8(t *testing.T) {
	s := NewRuleScorer(DefaultWeights())
	text := "hi \xed\xa0\x80 there" + strings.Repeat("\xff", 3)
	got := s.Score(text)
	if got.Chat < 0 || got.Code < 0 || got.Email < 0 {
		t.Fatalf("expected non-negative scores, got %+v", got)
	}
	if HasStrongSignal(text, Chat) {
		t.Fatalf("expected broken surrogate bytes not to count as emoji")
	}
}

func TestRulesListsEveryRule(t *testing.T) {
	infos := Rules(DefaultWeights())
	if len(infos) != len(rules) {
		t.Fatalf("expected %d rules, got %d", len(rules), len(infos))
	}
	for _, info := range infos {
		if !info.Context.Valid() {
			t.Fatalf("rule %s has invalid context %q", info.Name, info.Context)
		}
	}
}
