package auth

import (
	"context"
	"sync"
	"time"

	"parishdesk.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps accounts, tenants and reset tokens in memory. It backs
// tests and DSN-less development; production uses PGStore.
type MemoryStore struct {
	mu          sync.Mutex
	tenants     map[string]*Tenant
	accounts    map[string]*Account
	resetTokens map[string]*PasswordResetToken
	order       []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*Tenant),
		accounts:    make(map[string]*Account),
		resetTokens: make(map[string]*PasswordResetToken),
	}
}

func (s *MemoryStore) Tenants(context.Context) TenantStore         { return (*memTenants)(s) }
func (s *MemoryStore) Accounts(context.Context) AccountStore       { return (*memAccounts)(s) }
func (s *MemoryStore) ResetTokens(context.Context) ResetTokenStore { return (*memResetTokens)(s) }

// Tenant store --------------------------------------------------------------
type memTenants MemoryStore

func (s *memTenants) Create(_ context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.tenants[t.ID] = &cp
	s.order = append(s.order, t.ID)
	return nil
}

func (s *memTenants) Find(_ context.Context, id string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTenants) FindBySlug(_ context.Context, slug string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memTenants) List(_ context.Context) ([]*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*Tenant
	for _, id := range s.order {
		if t, ok := s.tenants[id]; ok {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

// Account store -------------------------------------------------------------
type memAccounts MemoryStore

func (s *memAccounts) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *memAccounts) Find(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memAccounts) FindByEmail(_ context.Context, email string) ([]*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*Account
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			res = append(res, &cp)
		}
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	return res, nil
}

func (s *memAccounts) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memAccounts) SetStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Reset token store ---------------------------------------------------------
type memResetTokens MemoryStore

func (s *memResetTokens) Create(_ context.Context, t *PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.resetTokens[t.ID] = &cp
	return nil
}

func (s *memResetTokens) Find(_ context.Context, id string) (*PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resetTokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memResetTokens) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.resetTokens[id]
	if !ok {
		return ErrNotFound
	}
	if t.UsedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	t.UsedAt = &now
	return nil
}
