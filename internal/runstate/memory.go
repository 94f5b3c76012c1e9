package runstate

import (
	"context"
	"sync"

	"gardenwatch/internal/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. A single mutex serializes Updates,
// which gives the same guarantees as a row lock for callers sharing one
// process.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]types.RunStatePayload
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]types.RunStatePayload)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string) (types.RunStatePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePayload(s.rows[name]), nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, name string, fn func(p *types.RunStatePayload) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := clonePayload(s.rows[name])
	write, err := fn(&p)
	if err != nil {
		return err
	}
	if write {
		s.rows[name] = p
	}
	return nil
}

func clonePayload(p types.RunStatePayload) types.RunStatePayload {
	out := types.RunStatePayload{}
	if p.LastRunAt != nil {
		t := *p.LastRunAt
		out.LastRunAt = &t
	}
	if p.LockAt != nil {
		t := *p.LockAt
		out.LockAt = &t
	}
	return out
}
