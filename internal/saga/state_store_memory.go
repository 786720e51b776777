package saga

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStateStore is an in-process StateStore for tests and local
// development. Instances are cloned on the way in and out so callers never
// alias the stored state.
type MemoryStateStore struct {
	mu        sync.Mutex
	active    map[uuid.UUID]*Instance
	finalized map[uuid.UUID]struct{}
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		active:    make(map[uuid.UUID]*Instance),
		finalized: make(map[uuid.UUID]struct{}),
	}
}

// LoadOrCreate implements StateStore.
func (s *MemoryStateStore) LoadOrCreate(ctx context.Context, correlationID uuid.UUID) (*Instance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.finalized[correlationID]; done {
		return nil, false, ErrFinalized
	}
	if inst, ok := s.active[correlationID]; ok {
		return inst.Clone(), false, nil
	}
	return &Instance{CorrelationID: correlationID}, true, nil
}

// Load implements StateStore.
func (s *MemoryStateStore) Load(ctx context.Context, correlationID uuid.UUID) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.finalized[correlationID]; done {
		return nil, ErrFinalized
	}
	inst, ok := s.active[correlationID]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[inst.CorrelationID] = inst.Clone()
	return nil
}

// Finalize implements StateStore.
func (s *MemoryStateStore) Finalize(ctx context.Context, correlationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, correlationID)
	s.finalized[correlationID] = struct{}{}
	return nil
}

// Count returns the number of active instances. Test helper.
func (s *MemoryStateStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

var _ StateStore = (*MemoryStateStore)(nil)
