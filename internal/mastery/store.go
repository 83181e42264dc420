package mastery

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	scores map[string]map[string]Score
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory concept score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scores: make(map[string]map[string]Score),
	}
}

func (s *MemoryStore) Increment(_ context.Context, learnerID string, deltas map[string]Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	learner, ok := s.scores[learnerID]
	if !ok {
		learner = make(map[string]Score)
		s.scores[learnerID] = learner
	}
	for concept, d := range deltas {
		cur := learner[concept]
		cur.Correct += d.Correct
		cur.Attempts += d.Attempts
		learner[concept] = cur
	}
	return nil
}

func (s *MemoryStore) Scores(_ context.Context, learnerID string) (map[string]Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Score, len(s.scores[learnerID]))
	for c, sc := range s.scores[learnerID] {
		out[c] = sc
	}
	return out, nil
}
