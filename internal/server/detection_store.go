package server

import (
	"sync"
	"time"

	"github.com/contexttype/contexttype/internal/activation"
	"github.com/contexttype/contexttype/internal/detect"
)

const maxStoredDetections = 50000

// detectionStore keeps recent detections so clients can fetch them by id.
type detectionStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	now         func() time.Time
	data        map[string]detectionEntry
	lastCleanup time.Time
}

type detectionEntry struct {
	clientID   string
	sessionID  string
	result     detect.Result
	method     string
	activation *activation.Event
	createdAt  time.Time
	expiresAt  time.Time
}

func newDetectionStore(ttl time.Duration) *detectionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &detectionStore{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]detectionEntry),
	}
}

func (s *detectionStore) Put(id string, entry detectionEntry) {
	if s == nil || id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if len(s.data) >= maxStoredDetections || now.Sub(s.lastCleanup) >= time.Minute {
		s.cleanupLocked(now)
	}
	if len(s.data) >= maxStoredDetections {
		return
	}
	entry.createdAt = now
	entry.expiresAt = now.Add(s.ttl)
	s.data[id] = entry
}

// Get returns the detection if it exists, has not expired, and belongs to
// clientID.
func (s *detectionStore) Get(id, clientID string) (detectionEntry, bool) {
	if s == nil || id == "" {
		return detectionEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok {
		return detectionEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.data, id)
		return detectionEntry{}, false
	}
	if entry.clientID != clientID {
		return detectionEntry{}, false
	}
	return entry, true
}

func (s *detectionStore) cleanupLocked(now time.Time) {
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
	s.lastCleanup = now
}
