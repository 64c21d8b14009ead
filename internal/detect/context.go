// Package detect classifies free text as code, email or chat and decides when a
// newly detected writing context is allowed to replace the one currently held.
//
// The package has two layers. A Scorer turns text into per-context scores with no
// memory of earlier calls. The Controller blends scores of the recent window with
// scores of the full text and runs them through a stack of gates (strong-signal
// override, cooldown, sentence boundary, natural-language guard, hysteresis) that
// either accept the switch or hold the previous context.
package detect

import (
	"fmt"
	"math"
	"strings"
)

// Context is one of the three writing contexts.
type Context string

const (
	Code  Context = "code"
	Email Context = "email"
	Chat  Context = "chat"
)

// Contexts lists every context in tie-break priority order.
var Contexts = []Context{Code, Email, Chat}

// equalShare is the confidence reported when no signal fired at all.
const equalShare = 1.0 / 3.0

// Valid reports whether c is one of the known contexts.
func (c Context) Valid() bool {
	switch c {
	case Code, Email, Chat:
		return true
	}
	return false
}

func (c Context) String() string { return string(c) }

// ParseContext accepts a context name in any case. An empty string parses to the
// empty Context, which callers use for "no previous context".
func ParseContext(s string) (Context, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	c := Context(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown context %q (want code, email or chat)", s)
	}
	return c, nil
}

// ScoreSet holds one non-negative raw score per context.
type ScoreSet struct {
	Code  float64 `json:"code" yaml:"code"`
	Email float64 `json:"email" yaml:"email"`
	Chat  float64 `json:"chat" yaml:"chat"`
}

// Get returns the score for c; unknown contexts score zero.
func (s ScoreSet) Get(c Context) float64 {
	switch c {
	case Code:
		return s.Code
	case Email:
		return s.Email
	case Chat:
		return s.Chat
	}
	return 0
}

func (s *ScoreSet) add(c Context, v float64) {
	switch c {
	case Code:
		s.Code += v
	case Email:
		s.Email += v
	case Chat:
		s.Chat += v
	}
}

// Total is the sum of all three scores.
func (s ScoreSet) Total() float64 {
	return s.Code + s.Email + s.Chat
}

// Winner returns the highest scoring context. Ties go to the earlier entry of
// Contexts, so an all-zero set yields Code.
func (s ScoreSet) Winner() Context {
	best := Code
	for _, c := range Contexts[1:] {
		if s.Get(c) > s.Get(best) {
			best = c
		}
	}
	return best
}

// Share returns the normalized share of c in [0,1], or the equal share when the
// set is empty.
func (s ScoreSet) Share(c Context) float64 {
	total := s.Total()
	if total <= 0 {
		return equalShare
	}
	return clamp01(s.Get(c) / total)
}

func (s ScoreSet) scale(f float64) ScoreSet {
	return ScoreSet{Code: s.Code * f, Email: s.Email * f, Chat: s.Chat * f}
}

func (s ScoreSet) plus(o ScoreSet) ScoreSet {
	return ScoreSet{Code: s.Code + o.Code, Email: s.Email + o.Email, Chat: s.Chat + o.Chat}
}

func (s ScoreSet) nonNegative() ScoreSet {
	return ScoreSet{Code: math.Max(s.Code, 0), Email: math.Max(s.Email, 0), Chat: math.Max(s.Chat, 0)}
}

// Decision records which rule produced a Result.
type Decision string

const (
	DecisionInitial         Decision = "initial"
	DecisionUnchanged       Decision = "unchanged"
	DecisionStrongSignal    Decision = "strong_signal"
	DecisionCooldown        Decision = "cooldown"
	DecisionMidSentence     Decision = "mid_sentence"
	DecisionNaturalLanguage Decision = "natural_language"
	DecisionBelowThreshold  Decision = "below_threshold"
	DecisionAccepted        Decision = "accepted"
)

// Held reports whether the decision kept the previous context against the
// detected one.
func (d Decision) Held() bool {
	switch d {
	case DecisionCooldown, DecisionMidSentence, DecisionNaturalLanguage, DecisionBelowThreshold:
		return true
	}
	return false
}

// Result is the outcome of one classification or evaluation.
type Result struct {
	Context    Context  `json:"context"`
	Confidence float64  `json:"confidence"`
	Scores     ScoreSet `json:"scores"`

	// Decision and Switched are only set by Controller.Evaluate.
	Decision Decision `json:"decision,omitempty"`
	Switched bool     `json:"switched"`
}

// Alternative is a non-winning context with its normalized share.
type Alternative struct {
	Context    Context `json:"context"`
	Confidence float64 `json:"confidence"`
}

// Alternatives returns the two contexts other than r.Context, best first.
func (r Result) Alternatives() []Alternative {
	out := make([]Alternative, 0, len(Contexts)-1)
	for _, c := range Contexts {
		if c == r.Context {
			continue
		}
		out = append(out, Alternative{Context: c, Confidence: r.Scores.Share(c)})
	}
	if len(out) == 2 && out[1].Confidence > out[0].Confidence {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

// Classify picks the winning context of s and its confidence.
func Classify(s ScoreSet) Result {
	s = s.nonNegative()
	winner := s.Winner()
	return Result{
		Context:    winner,
		Confidence: s.Share(winner),
		Scores:     s,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
