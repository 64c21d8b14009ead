package detect

import "strings"

// Scorer turns text into raw per-context scores. Implementations must be pure
// and safe for concurrent use.
type Scorer interface {
	Score(text string) ScoreSet
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string) ScoreSet

func (f ScorerFunc) Score(text string) ScoreSet { return f(text) }

// Hit is the contribution of one rule to a score.
type Hit struct {
	Rule    string  `json:"rule"`
	Context Context `json:"context"`
	Count   int     `json:"count"`
	Points  float64 `json:"points"`
}

// RuleScorer is the table-driven heuristic scorer.
type RuleScorer struct {
	weights Weights
}

// NewRuleScorer builds a scorer with the given weights.
func NewRuleScorer(w Weights) *RuleScorer {
	return &RuleScorer{weights: w}
}

// Weights returns the weights the scorer was built with.
func (s *RuleScorer) Weights() Weights { return s.weights }

// Score sums every rule hit per context.
func (s *RuleScorer) Score(text string) ScoreSet {
	var out ScoreSet
	for _, h := range s.Explain(text) {
		out.add(h.Context, h.Points)
	}
	return out.nonNegative()
}

// Explain returns the rules that fired on text, in table order.
func (s *RuleScorer) Explain(text string) []Hit {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var hits []Hit
	for _, r := range rules {
		n := r.count(text, lower)
		if n == 0 {
			continue
		}
		hits = append(hits, Hit{
			Rule:    r.name,
			Context: r.context,
			Count:   n,
			Points:  float64(n) * r.weight(s.weights),
		})
	}
	return hits
}
