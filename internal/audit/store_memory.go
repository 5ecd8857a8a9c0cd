package audit

import (
	"context"
	"sync"
)

// MemoryStore keeps events in process memory. Used in tests and when no
// outbox database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	byRecord map[string][]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byRecord: make(map[string][]int)}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if event.RecordID != "" {
		s.byRecord[event.RecordID] = append(s.byRecord[event.RecordID], len(s.events)-1)
	}
	return nil
}

func (s *MemoryStore) ListByRecord(_ context.Context, recordID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byRecord[recordID]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out, nil
}

// All returns every recorded event in append order.
func (s *MemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
