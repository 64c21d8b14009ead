package mlscorer

import (
	"math"
	"sync/atomic"

	"github.com/rivo/uniseg"

	"github.com/contexttype/contexttype/internal/detect"
)

// Method names the scorer that produced a result.
type Method string

const (
	MethodRules Method = "rules"
	MethodML    Method = "ml"
	// MethodMixed means the recent window and the full text were scored by
	// different methods.
	MethodMixed Method = "ml+rules"
)

// Hybrid uses the classifier when it is loaded and confident and the rule
// scorer otherwise. It is safe for concurrent use.
type Hybrid struct {
	predictor     Predictor
	fallback      detect.Scorer
	minConfidence float64
	maxChars      int

	mlServed   atomic.Uint64
	ruleServed atomic.Uint64
}

// NewHybrid wires a predictor in front of fallback. A nil predictor always
// falls back. Texts longer than maxChars characters skip the model (0 means no
// limit).
func NewHybrid(p Predictor, fallback detect.Scorer, minConfidence float64, maxChars int) *Hybrid {
	if fallback == nil {
		fallback = detect.NewRuleScorer(detect.DefaultWeights())
	}
	return &Hybrid{
		predictor:     p,
		fallback:      fallback,
		minConfidence: minConfidence,
		maxChars:      maxChars,
	}
}

// Score implements detect.Scorer.
func (h *Hybrid) Score(text string) detect.ScoreSet {
	s, _ := h.ScoreWithMethod(text)
	return s
}

// ScoreWithMethod scores text and reports which method served it. Model
// probabilities come back scaled to the rule points of the same text, so a
// window served by the model blends with a text served by the rules on one
// scale.
func (h *Hybrid) ScoreWithMethod(text string) (detect.ScoreSet, Method) {
	if h.predictor != nil && text != "" && (h.maxChars <= 0 || uniseg.GraphemeClusterCount(text) <= h.maxChars) {
		pred, err := h.predictor.Predict(text)
		if err == nil && pred.Confidence >= h.minConfidence {
			h.mlServed.Add(1)
			return onRuleScale(pred.Scores, h.fallback.Score(text)), MethodML
		}
	}
	h.ruleServed.Add(1)
	return h.fallback.Score(text), MethodRules
}

// onRuleScale multiplies probabilities by the rule total, never by less than
// one. Shares are unchanged.
func onRuleScale(probs, rules detect.ScoreSet) detect.ScoreSet {
	total := math.Max(rules.Total(), 1)
	return detect.ScoreSet{
		Code:  probs.Code * total,
		Email: probs.Email * total,
		Chat:  probs.Chat * total,
	}
}

// Stats reports how many calls each method served.
func (h *Hybrid) Stats() (ml, rules uint64) {
	return h.mlServed.Load(), h.ruleServed.Load()
}

// Recorder wraps a Hybrid for one evaluation and remembers which methods the
// controller's calls used. It is not safe for concurrent use.
type Recorder struct {
	h         *Hybrid
	usedML    bool
	usedRules bool
}

// NewRecorder starts a fresh recording.
func (h *Hybrid) NewRecorder() *Recorder {
	return &Recorder{h: h}
}

// Score implements detect.Scorer.
func (r *Recorder) Score(text string) detect.ScoreSet {
	s, m := r.h.ScoreWithMethod(text)
	if m == MethodML {
		r.usedML = true
	} else {
		r.usedRules = true
	}
	return s
}

// Method summarizes the recorded calls.
func (r *Recorder) Method() Method {
	switch {
	case r.usedML && r.usedRules:
		return MethodMixed
	case r.usedML:
		return MethodML
	}
	return MethodRules
}
