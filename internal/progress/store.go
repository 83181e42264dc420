package progress

import (
	"context"
	"sync"
)

// Store persists progress records keyed by (learner, module).
//
// Load returns nil when nothing has ever been saved. Save overwrites the
// stored record in one step, so readers never see a partial write.
type Store interface {
	Load(ctx context.Context, learnerID, moduleID string) (*Record, error)
	Save(ctx context.Context, learnerID, moduleID string, rec Record) error
}

// MemoryStore is an in-memory implementation of Store. Records are kept
// encoded so loads exercise the same decode path as durable stores.
type MemoryStore struct {
	records map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory progress store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Load(_ context.Context, learnerID, moduleID string) (*Record, error) {
	s.mu.RLock()
	data, ok := s.records[Key(moduleID, learnerID)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	rec, _ := Decode(data)
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, learnerID, moduleID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[Key(moduleID, learnerID)] = data
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes under a learner/module key, bypassing Encode.
// Tests use it to plant corrupt records.
func (s *MemoryStore) Put(learnerID, moduleID string, data []byte) {
	s.mu.Lock()
	s.records[Key(moduleID, learnerID)] = append([]byte(nil), data...)
	s.mu.Unlock()
}
