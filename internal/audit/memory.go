package audit

import (
	"context"
	"strings"
	"sync"

	"parishdesk.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps audit entries in memory. Used by tests and DSN-less
// deployments; durable installs use PGStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, tenantID, filter string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []Entry
	for i := len(s.entries) - 1; i >= 0 && len(res) < limit; i-- {
		e := s.entries[i]
		if e.TenantID != tenantID {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(filter)) {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (s *MemoryStore) Purge(_ context.Context, tenantID, filter string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Entry
	var deleted int64
	for _, e := range s.entries {
		match := e.TenantID == tenantID
		if match && filter != "" {
			match = strings.Contains(strings.ToLower(e.Action), strings.ToLower(filter))
		}
		if match {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}
