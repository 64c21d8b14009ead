// Package session keeps one switch state per client session so that the
// controller's cooldown and hysteresis apply across requests.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/contexttype/contexttype/internal/detect"
)

const (
	defaultTTL     = 30 * time.Minute
	cleanupEvery   = time.Minute
	defaultMaxSize = 10000
)

// Session is the server-side view of one typing session.
type Session struct {
	ID string

	state *detect.SwitchState

	mu          sync.Mutex
	current     detect.Context
	evaluations int
	createdAt   time.Time

	lastSeen atomic.Int64 // unix nanoseconds
}

// Info is a point-in-time copy of a session.
type Info struct {
	ID          string               `json:"id"`
	Current     detect.Context       `json:"current,omitempty"`
	Evaluations int                  `json:"evaluations"`
	CreatedAt   time.Time            `json:"created_at"`
	LastSeen    time.Time            `json:"last_seen"`
	State       detect.StateSnapshot `json:"state"`
}

// Evaluate runs fn with the session's switch state and the context last
// returned to the client, then stores the context fn returns. Calls on one
// session are serialized.
func (s *Session) Evaluate(fn func(state *detect.SwitchState, previous detect.Context) detect.Result) detect.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := fn(s.state, s.current)
	s.current = res.Context
	s.evaluations++
	return res
}

// New returns a session that belongs to no store, for one-off evaluations.
func New(id string) *Session {
	return newSession(id, time.Now())
}

func newSession(id string, now time.Time) *Session {
	sess := &Session{
		ID:        id,
		state:     detect.NewSwitchState(),
		createdAt: now,
	}
	sess.touch(now)
	return sess
}

// Current returns the context last returned to the client.
func (s *Session) Current() detect.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.ID,
		Current:     s.current,
		Evaluations: s.evaluations,
		CreatedAt:   s.createdAt,
		LastSeen:    s.touched(),
		State:       s.state.Snapshot(),
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	s.current = ""
	s.evaluations = 0
	s.mu.Unlock()
	s.state.Reset()
}

// Store maps session ids to sessions and expires idle ones.
type Store struct {
	mu          sync.Mutex
	ttl         time.Duration
	maxSize     int
	now         func() time.Time
	data        map[string]*Session
	lastCleanup time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a store. A non-positive ttl or maxSize selects the default.
func NewStore(ttl time.Duration, maxSize int, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	s := &Store{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		data:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session for id, creating it on first use.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastCleanup) >= cleanupEvery {
		s.cleanupLocked(now)
	}

	if sess, ok := s.data[id]; ok && now.Sub(sess.touched()) < s.ttl {
		sess.touch(now)
		return sess
	}

	if len(s.data) >= s.maxSize {
		s.evictOldestLocked()
	}
	sess := newSession(id, now)
	s.data[id] = sess
	return sess
}

// Lookup returns an existing, unexpired session.
func (s *Store) Lookup(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data[id]
	if !ok || s.now().Sub(sess.touched()) >= s.ttl {
		return nil, false
	}
	return sess, true
}

// Restart clears the session's switch history, as on an explicit restart. It
// reports whether the session existed.
func (s *Store) Restart(id string) bool {
	s.mu.Lock()
	sess, ok := s.data[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.reset()
	return true
}

// Delete drops the session entirely.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	delete(s.data, id)
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(s.now())
	return len(s.data)
}

func (s *Store) cleanupLocked(now time.Time) {
	for k, v := range s.data {
		if now.Sub(v.touched()) >= s.ttl {
			delete(s.data, k)
		}
	}
	s.lastCleanup = now
}

func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for k, v := range s.data {
		seen := v.touched()
		if oldestID == "" || seen.Before(oldest) {
			oldestID, oldest = k, seen
		}
	}
	if oldestID != "" {
		delete(s.data, oldestID)
	}
}

func (s *Session) touched() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}
