package auth

import "time"

// Account statuses. Pending accounts exist but cannot log in until approved;
// disabled accounts are kept for audit references and never deleted.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusDisabled = "disabled"
)

// Tenant is an isolated congregation context. All domain data and most
// sessions are scoped to exactly one tenant.
type Tenant struct {
	ID        string
	Slug      string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]string
}

// Account represents a person able to authenticate: a provider principal
// (tenant-unbound), tenant staff, or a member.
type Account struct {
	ID               string
	TenantID         string
	Email            string
	PasswordHash     string
	Role             string
	Status           string
	TwoFactorEnabled bool
	TOTPSecret       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session is the result of a successful login. The token is self-contained
// and signed; role and tenant binding cannot change without a new login.
type Session struct {
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReauthGrant is the short-lived proof of step-up authentication required by
// maintenance endpoints. It is never persisted server-side.
type ReauthGrant struct {
	Token        string    `json:"reauth_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	ExpiresInSec int64     `json:"expires_in_sec"`
}

// PasswordResetToken is a single-use credential for the provider
// forgot-password flow. Only the hash of the secret part is stored.
type PasswordResetToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Principal is the authenticated identity carried through request contexts.
type Principal struct {
	AccountID string
	Role      string
	TenantID  string
	CSRFToken string
}
