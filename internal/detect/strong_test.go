package detect

import "testing"

func TestHasStrongSignal(t *testing.T) {
	tests := []struct {
		name string
		text string
		ctx  Context
		want bool
	}{
		{"java method", "public static void main", Code, true},
		{"js function", "function calculateTotal(", Code, true},
		{"python def", "def handler", Code, true},
		{"declaration", "const total = await fetch", Code, true},
		{"import line", "import React from 'react'", Code, true},
		{"class", "class UserService", Code, true},
		{"arrow block", "items.map(x => {", Code, true},
		{"method call", "console.log(", Code, true},
		{"prose import", "we need to import more coffee", Code, false},
		{"prose for", "looking for the keys", Code, false},

		{"salutation with body", "Dear Hiring Manager,\nI am writing", Email, true},
		{"bare salutation", "Dear Hiring Manager,", Email, false},
		{"closing", "See you then.\nBest regards,", Email, true},
		{"thanks for your", "Thanks for your quick reply", Email, true},
		{"hope email", "I hope this email finds you well", Email, true},
		{"casual hi", "hi there", Email, false},

		{"greeting slang", "hey what's going on", Chat, true},
		{"slang token", "that was wild lol", Chat, true},
		{"emoji", "sounds good 👍", Chat, true},
		{"repeated marks", "really??", Chat, true},
		{"plain sentence", "The report is attached.", Chat, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasStrongSignal(tt.text, tt.ctx); got != tt.want {
				t.Fatalf("expected HasStrongSignal(%q, %s)=%v, got %v", tt.text, tt.ctx, tt.want, got)
			}
		})
	}
}

func TestStrongSignalsGroupsByContext(t *testing.T) {
	got := StrongSignals("lol 😂")
	if len(got[Chat]) != 2 {
		t.Fatalf("expected two chat signals, got %v", got[Chat])
	}
	if _, ok := got[Code]; ok {
		t.Fatalf("expected no code signals, got %v", got[Code])
	}
}

func TestStrongPatternsCoverEveryContext(t *testing.T) {
	seen := map[Context]bool{}
	for _, p := range StrongPatterns() {
		seen[p.Context] = true
	}
	for _, c := range Contexts {
		if !seen[c] {
			t.Fatalf("expected at least one strong pattern for %s", c)
		}
	}
}
