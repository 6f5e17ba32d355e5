package maintenance

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore tracks operations in memory. Durable installs use PGStore so
// operation history survives the very restarts it orchestrates; the memory
// store backs tests and DSN-less development.
type MemoryStore struct {
	mu    sync.Mutex
	ops   map[string]*Operation
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*Operation)}
}

func (s *MemoryStore) Create(_ context.Context, op *Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.ops {
		if existing.Kind == op.Kind && existing.TargetTenantID == op.TargetTenantID && !existing.Terminal() {
			return ErrOperationInProgress
		}
	}
	cp := *op
	s.ops[op.ID] = &cp
	s.order = append(s.order, op.ID)
	return nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return ErrNotFound
	}
	if op.Status != StatusPending {
		return ErrNotFound
	}
	op.Status = StatusRunning
	return nil
}

func (s *MemoryStore) MarkTerminal(_ context.Context, id, status, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return ErrNotFound
	}
	if op.Terminal() {
		return ErrNotFound
	}
	op.Status = status
	op.Error = errMsg
	completed := at
	op.CompletedAt = &completed
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id string) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Operation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []Operation
	for i := len(s.order) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, *s.ops[s.order[i]])
	}
	return res, nil
}
