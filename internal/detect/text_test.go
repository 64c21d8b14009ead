package detect

import (
	"strings"
	"testing"
)

func TestAtSentenceBoundary(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"Done.", true},
		{"Really?  ", true},
		{"wow! ", true},
		{"first line\n", true},
		{"two spaces  ", true},
		{"mid sentence", false},
		{"mid sentence ", false},
		{"a, b,", false},
	}
	for _, tt := range tests {
		if got := AtSentenceBoundary(tt.text); got != tt.want {
			t.Fatalf("expected AtSentenceBoundary(%q)=%v, got %v", tt.text, tt.want, got)
		}
	}
}

func TestRecentWindowPrefersLastSentence(t *testing.T) {
	text := "Dear team, the build is green. lol that was quick"
	got := RecentWindow(text, 10, 100)
	if got != " lol that was quick" {
		t.Fatalf("expected last sentence, got %q", got)
	}
}

func TestRecentWindowFallsBackToTail(t *testing.T) {
	text := strings.Repeat("a", 150) + ". ok"
	got := RecentWindow(text, 10, 100)
	if charLen(got) != 100 {
		t.Fatalf("expected 100 character tail, got %d", charLen(got))
	}
	if !strings.HasSuffix(got, ". ok") {
		t.Fatalf("expected tail to end with the input, got %q", got)
	}
}

func TestTailCountsGraphemes(t *testing.T) {
	text := "abc👍🏽de"
	got := tail(text, 3)
	if got != "👍🏽de" {
		t.Fatalf("expected skin-tone emoji kept whole, got %q", got)
	}
	if tail("ab", 5) != "ab" {
		t.Fatalf("expected short text unchanged")
	}
}
