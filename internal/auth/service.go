package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"parishdesk.org/internal/ids"
)

const (
	defaultSessionTTL = 8 * time.Hour
	defaultReauthTTL  = 90 * time.Second
	resetTokenTTL     = 30 * time.Minute
	maxReauthTTL      = 120 * time.Second
)

// Service is the session issuer and step-up reauthentication authority.
type Service struct {
	store  Store
	secret []byte
	issuer string

	sessionTTL time.Duration
	reauthTTL  time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSessionTTL configures session token lifetime (minutes-to-hours scale).
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithReauthTTL configures reauth token lifetime. The window is capped at
// two minutes: session longevity must not imply standing maintenance
// authority.
func WithReauthTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return nil
		}
		if ttl > maxReauthTTL {
			return errors.New("auth: reauth ttl exceeds the two minute cap")
		}
		s.reauthTTL = ttl
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the session authority. The signing secret is
// required; tokens issued with it are self-contained and verified statelessly.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:      store,
		secret:     []byte(secret),
		issuer:     "parishdesk",
		sessionTTL: defaultSessionTTL,
		reauthTTL:  defaultReauthTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login authenticates a tenant-scoped account (staff, tenant admin or
// member) and issues a session bound to that tenant. Staff and admin login
// paths must disambiguate with a tenant hint; members may omit it when the
// identity resolves to a single tenant.
func (s *Service) Login(ctx context.Context, identity, secret, tenantHint, otp string) (Session, error) {
	acct, err := s.resolveTenantAccount(ctx, identity, tenantHint)
	if err != nil {
		return Session{}, err
	}
	if err := s.verifyCredentials(acct, secret, otp); err != nil {
		return Session{}, err
	}
	return s.signSession(acct, s.now().UTC())
}

// ProviderLogin authenticates the tenant-unbound provider principal.
func (s *Service) ProviderLogin(ctx context.Context, identity, secret, otp string) (Session, error) {
	identity = normalizeEmail(identity)
	if identity == "" || secret == "" {
		return Session{}, ErrInvalidCredentials
	}
	accounts, err := s.store.Accounts(ctx).FindByEmail(ctx, identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	var acct *Account
	for _, a := range accounts {
		if a.Role == RoleSuperAdmin {
			acct = a
			break
		}
	}
	if acct == nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := s.verifyCredentials(acct, secret, otp); err != nil {
		return Session{}, err
	}
	return s.signSession(acct, s.now().UTC())
}

// Reauthenticate re-verifies the caller's password (and TOTP when enrolled)
// independent of the session's validity window, and returns a short-lived
// maintenance-scoped grant. A valid session never substitutes for fresh
// secret verification.
func (s *Service) Reauthenticate(ctx context.Context, accountID, password, otp string) (ReauthGrant, error) {
	if strings.TrimSpace(accountID) == "" || password == "" {
		return ReauthGrant{}, ErrInvalidCredentials
	}
	acct, err := s.store.Accounts(ctx).Find(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReauthGrant{}, ErrInvalidCredentials
		}
		return ReauthGrant{}, err
	}
	if err := s.verifyCredentials(acct, password, otp); err != nil {
		return ReauthGrant{}, err
	}
	return s.signReauth(acct.ID, s.now().UTC())
}

// CreatePasswordReset starts the provider forgot-password flow. The returned
// token is handed to the notification collaborator, never stored in clear.
func (s *Service) CreatePasswordReset(ctx context.Context, identity string) (string, error) {
	identity = normalizeEmail(identity)
	if identity == "" {
		return "", ErrInvalidInput
	}
	accounts, err := s.store.Accounts(ctx).FindByEmail(ctx, identity)
	if err != nil {
		return "", err
	}
	var acct *Account
	for _, a := range accounts {
		if a.Role == RoleSuperAdmin && a.Status == StatusActive {
			acct = a
			break
		}
	}
	if acct == nil {
		return "", ErrNotFound
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secret))
	rec := &PasswordResetToken{
		ID:        ids.New(),
		AccountID: acct.ID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: s.now().UTC().Add(resetTokenTTL),
	}
	if err := s.store.ResetTokens(ctx).Create(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID + "." + secret, nil
}

// ResetPassword consumes a reset token and installs a new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	id, secret, err := splitResetToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	if len(newPassword) < 8 {
		return ErrInvalidInput
	}
	tokens := s.store.ResetTokens(ctx)
	rec, err := tokens.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if rec.UsedAt != nil || s.now().After(rec.ExpiresAt) {
		return ErrInvalidToken
	}
	sum := sha256.Sum256([]byte(secret))
	if !constantTimeEqual(rec.TokenHash, hex.EncodeToString(sum[:])) {
		return ErrInvalidToken
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Accounts(ctx).UpdatePassword(ctx, rec.AccountID, hash); err != nil {
		return err
	}
	return tokens.MarkUsed(ctx, rec.ID)
}

func (s *Service) resolveTenantAccount(ctx context.Context, identity, tenantHint string) (*Account, error) {
	identity = normalizeEmail(identity)
	tenantHint = strings.TrimSpace(tenantHint)
	if identity == "" {
		return nil, ErrInvalidCredentials
	}
	accounts, err := s.store.Accounts(ctx).FindByEmail(ctx, identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var matches []*Account
	for _, a := range accounts {
		if a.Role == RoleSuperAdmin {
			continue // provider principals use the provider login surface
		}
		if tenantHint != "" && a.TenantID != tenantHint {
			continue
		}
		matches = append(matches, a)
	}
	switch {
	case len(matches) == 0:
		return nil, ErrInvalidCredentials
	case len(matches) > 1:
		return nil, ErrTenantRequired
	}
	acct := matches[0]
	if acct.Role != RoleMember && tenantHint == "" {
		return nil, ErrTenantRequired
	}
	return acct, nil
}

func (s *Service) verifyCredentials(acct *Account, secret, otp string) error {
	if secret == "" {
		return ErrInvalidCredentials
	}
	switch acct.Status {
	case StatusActive:
	case StatusPending:
		return ErrAccountPending
	default:
		return ErrInvalidCredentials
	}
	if err := VerifyPassword(acct.PasswordHash, secret); err != nil {
		return ErrInvalidCredentials
	}
	if acct.TwoFactorEnabled {
		if strings.TrimSpace(otp) == "" {
			return ErrTwoFactorRequired
		}
		if !verifyTOTP(otp, acct.TOTPSecret, s.now()) {
			return ErrInvalidCredentials
		}
	}
	return nil
}

func normalizeEmail(v string) string {
	return strings.TrimSpace(strings.ToLower(v))
}

func splitResetToken(raw string) (id, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid reset token format")
	}
	return parts[0], parts[1], nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
