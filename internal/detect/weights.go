package detect

import (
	"errors"
	"fmt"
	"time"
)

// Weights are the per-occurrence points each scoring rule adds.
type Weights struct {
	CodeKeyword float64 `json:"code_keyword" yaml:"code_keyword"`
	CodeSymbol  float64 `json:"code_symbol" yaml:"code_symbol"`
	CamelCase   float64 `json:"camel_case" yaml:"camel_case"`
	SnakeCase   float64 `json:"snake_case" yaml:"snake_case"`

	EmailKeyword        float64 `json:"email_keyword" yaml:"email_keyword"`
	EmailPhrase         float64 `json:"email_phrase" yaml:"email_phrase"`
	FormalPunctuation   float64 `json:"formal_punctuation" yaml:"formal_punctuation"`
	CapitalizedSentence float64 `json:"capitalized_sentence" yaml:"capitalized_sentence"`

	ChatSlang           float64 `json:"chat_slang" yaml:"chat_slang"`
	Emoji               float64 `json:"emoji" yaml:"emoji"`
	RepeatedPunctuation float64 `json:"repeated_punctuation" yaml:"repeated_punctuation"`
	AllCaps             float64 `json:"all_caps" yaml:"all_caps"`
	Contraction         float64 `json:"contraction" yaml:"contraction"`
	InformalBonus       float64 `json:"informal_bonus" yaml:"informal_bonus"`
}

// DefaultWeights returns the stock rule weights.
func DefaultWeights() Weights {
	return Weights{
		CodeKeyword: 3,
		CodeSymbol:  2,
		CamelCase:   2,
		SnakeCase:   2,

		EmailKeyword:        4,
		EmailPhrase:         5,
		FormalPunctuation:   0.5,
		CapitalizedSentence: 1.5,

		ChatSlang:           5,
		Emoji:               6,
		RepeatedPunctuation: 3,
		AllCaps:             2,
		Contraction:         4,
		InformalBonus:       2,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("weight %s must be >= 0, got %v", name, v))
		}
	}
	check("code_keyword", w.CodeKeyword)
	check("code_symbol", w.CodeSymbol)
	check("camel_case", w.CamelCase)
	check("snake_case", w.SnakeCase)
	check("email_keyword", w.EmailKeyword)
	check("email_phrase", w.EmailPhrase)
	check("formal_punctuation", w.FormalPunctuation)
	check("capitalized_sentence", w.CapitalizedSentence)
	check("chat_slang", w.ChatSlang)
	check("emoji", w.Emoji)
	check("repeated_punctuation", w.RepeatedPunctuation)
	check("all_caps", w.AllCaps)
	check("contraction", w.Contraction)
	check("informal_bonus", w.InformalBonus)
	return errors.Join(errs...)
}

// Thresholds tune the switch controller.
type Thresholds struct {
	// RecentWeight is the share of the recent window in the blend; the full
	// text gets the rest.
	RecentWeight float64       `json:"recent_weight" yaml:"recent_weight"`
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
	MidSentence  float64       `json:"mid_sentence" yaml:"mid_sentence"`
	Boundary     float64       `json:"boundary" yaml:"boundary"`
	Default      float64       `json:"default" yaml:"default"`
	StrongFloor  float64       `json:"strong_floor" yaml:"strong_floor"`

	// WindowChars is the tail length used when the last sentence is too short.
	WindowChars      int `json:"window_chars" yaml:"window_chars"`
	MinSentenceChars int `json:"min_sentence_chars" yaml:"min_sentence_chars"`
}

// DefaultThresholds returns the stock controller tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RecentWeight:     0.7,
		Cooldown:         3 * time.Second,
		MidSentence:      0.75,
		Boundary:         0.55,
		Default:          0.65,
		StrongFloor:      0.9,
		WindowChars:      100,
		MinSentenceChars: 10,
	}
}

// Validate checks ranges and the ordering the hysteresis relies on.
func (t Thresholds) Validate() error {
	var errs []error
	unit := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("threshold %s must be within [0,1], got %v", name, v))
		}
	}
	unit("recent_weight", t.RecentWeight)
	unit("mid_sentence", t.MidSentence)
	unit("boundary", t.Boundary)
	unit("default", t.Default)
	unit("strong_floor", t.StrongFloor)
	if t.Boundary > t.Default {
		errs = append(errs, fmt.Errorf("threshold boundary (%v) must not exceed default (%v)", t.Boundary, t.Default))
	}
	if t.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must be >= 0, got %s", t.Cooldown))
	}
	if t.WindowChars <= 0 {
		errs = append(errs, fmt.Errorf("window_chars must be > 0, got %d", t.WindowChars))
	}
	if t.MinSentenceChars < 0 {
		errs = append(errs, fmt.Errorf("min_sentence_chars must be >= 0, got %d", t.MinSentenceChars))
	}
	return errors.Join(errs...)
}
