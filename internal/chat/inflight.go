package chat

import (
	"sync"

	"github.com/google/uuid"
)

// inflightSet tracks which messages currently have a regeneration running.
// Check-and-mark happens under one lock acquisition so two callers can never
// both believe they acquired the same id.
type inflightSet struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

// tryAcquire marks id in flight and reports whether the caller won it.
func (s *inflightSet) tryAcquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[uuid.UUID]struct{})
	}
	if _, exists := s.ids[id]; exists {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// release clears the in-flight marker. Safe to call for ids never acquired.
func (s *inflightSet) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}
