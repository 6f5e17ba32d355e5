package auth

import "context"

// Store describes persistence operations required by the session authority.
type Store interface {
	Tenants(ctx context.Context) TenantStore
	Accounts(ctx context.Context) AccountStore
	ResetTokens(ctx context.Context) ResetTokenStore
}

// TenantStore manages tenant records.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Find(ctx context.Context, id string) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}

// AccountStore manages accounts. FindByEmail returns every account carrying
// the identity across tenants; the service disambiguates with a tenant hint.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) ([]*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetStatus(ctx context.Context, id, status string) error
}

// ResetTokenStore manages single-use password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, t *PasswordResetToken) error
	Find(ctx context.Context, id string) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) error
}
