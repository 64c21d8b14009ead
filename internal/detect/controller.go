package detect

import (
	"math"
	"sync"
	"time"
)

// Clock supplies the current time to the controller.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, which carries a monotonic reading.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SwitchState is the per-session bookkeeping of accepted switches. The zero
// value is a fresh session. It must not be shared between sessions.
type SwitchState struct {
	mu          sync.Mutex
	lastSwitch  time.Time
	lastContext Context
}

// NewSwitchState returns a fresh state.
func NewSwitchState() *SwitchState {
	return &SwitchState{}
}

// StateSnapshot is a copy of a SwitchState taken under its lock.
type StateSnapshot struct {
	LastSwitch  time.Time `json:"last_switch"`
	LastContext Context   `json:"last_context,omitempty"`
}

// Snapshot returns the current bookkeeping.
func (s *SwitchState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{LastSwitch: s.lastSwitch, LastContext: s.lastContext}
}

// Reset forgets every accepted switch, as on session restart.
func (s *SwitchState) Reset() {
	s.mu.Lock()
	s.lastSwitch = time.Time{}
	s.lastContext = ""
	s.mu.Unlock()
}

// caller holds s.mu
func (s *SwitchState) record(at time.Time, c Context) {
	s.lastSwitch = at
	s.lastContext = c
}

// caller holds s.mu
func (s *SwitchState) coolingDown(now time.Time, window time.Duration) bool {
	if s.lastSwitch.IsZero() {
		return false
	}
	return now.Sub(s.lastSwitch) < window
}

// Controller decides whether a detected context may replace the one held by the
// caller. A Controller is immutable and safe for concurrent use; all mutable
// state lives in the SwitchState passed to Evaluate.
type Controller struct {
	scorer     Scorer
	thresholds Thresholds
	clock      Clock
}

// Option configures a Controller.
type Option func(*Controller)

// WithScorer replaces the default rule scorer.
func WithScorer(s Scorer) Option {
	return func(c *Controller) {
		if s != nil {
			c.scorer = s
		}
	}
}

// WithThresholds replaces the default thresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Controller) { c.thresholds = t }
}

// WithClock replaces the system clock.
func WithClock(clk Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// NewController builds a controller with the default rule scorer, thresholds
// and system clock unless overridden.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		scorer:     NewRuleScorer(DefaultWeights()),
		thresholds: DefaultThresholds(),
		clock:      SystemClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds returns the controller tuning.
func (c *Controller) Thresholds() Thresholds { return c.thresholds }

// Blend scores the recent window and the full text and mixes them. Scores are
// mixed raw; confidences are mixed as already-normalized values. The recent
// window names the context unless nothing in it scored at all, in which case
// the full text does.
func (c *Controller) Blend(text string) Result {
	th := c.thresholds
	recent := Classify(c.scorer.Score(RecentWindow(text, th.MinSentenceChars, th.WindowChars)))
	full := Classify(c.scorer.Score(text))

	winner := recent.Context
	if recent.Scores.Total() == 0 {
		winner = full.Context
	}
	w := th.RecentWeight
	return Result{
		Context:    winner,
		Confidence: clamp01(w*recent.Confidence + (1-w)*full.Confidence),
		Scores:     recent.Scores.scale(w).plus(full.Scores.scale(1 - w)),
	}
}

// Evaluate classifies text and applies the switching gates against previous.
// An empty previous marks the first evaluation of a session, which is never
// gated. The returned Result always names a valid context.
func (c *Controller) Evaluate(state *SwitchState, text string, previous Context) Result {
	blended := c.Blend(text)
	if !previous.Valid() {
		blended.Decision = DecisionInitial
		return blended
	}
	if state == nil {
		state = NewSwitchState()
	}

	th := c.thresholds
	candidate := blended.Context

	state.mu.Lock()
	defer state.mu.Unlock()
	now := c.clock.Now()

	if HasStrongSignal(text, candidate) {
		res := blended
		res.Confidence = math.Max(res.Confidence, th.StrongFloor)
		res.Decision = DecisionStrongSignal
		res.Switched = candidate != previous
		// refreshed even without a change, so the cooldown runs from the
		// latest strong signal
		state.record(now, candidate)
		return res
	}

	if candidate == previous {
		blended.Decision = DecisionUnchanged
		return blended
	}

	hold := func(d Decision) Result {
		res := blended
		res.Context = previous
		res.Decision = d
		return res
	}

	if state.coolingDown(now, th.Cooldown) {
		return hold(DecisionCooldown)
	}
	atBoundary := AtSentenceBoundary(text)
	if !atBoundary && blended.Confidence < th.MidSentence {
		return hold(DecisionMidSentence)
	}
	if candidate == Code && looksLikeProse(text) {
		return hold(DecisionNaturalLanguage)
	}
	threshold := th.Default
	if atBoundary {
		threshold = th.Boundary
	}
	if blended.Confidence < threshold {
		return hold(DecisionBelowThreshold)
	}

	state.record(now, candidate)
	blended.Decision = DecisionAccepted
	blended.Switched = true
	return blended
}
