package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeMaintenance is the only scope reauth tokens are issued with.
const ScopeMaintenance = "maintenance"

// SessionClaims are the claims carried by a session token. TenantID is baked
// into the signed token: the binding is immutable for the session's lifetime.
type SessionClaims struct {
	Role     string `json:"role"`
	TenantID string `json:"tid,omitempty"`
	CSRF     string `json:"csrf,omitempty"`
	jwt.RegisteredClaims
}

// ReauthClaims are the claims carried by a step-up reauth token.
type ReauthClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func (s *Service) signSession(acct *Account, now time.Time) (Session, error) {
	exp := now.Add(s.sessionTTL)
	csrf := uuid.NewString()
	claims := SessionClaims{
		Role:     acct.Role,
		TenantID: acct.TenantID,
		CSRF:     csrf,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     signed,
		CSRFToken: csrf,
		Role:      acct.Role,
		TenantID:  acct.TenantID,
		ExpiresAt: exp,
	}, nil
}

func (s *Service) signReauth(accountID string, now time.Time) (ReauthGrant, error) {
	exp := now.Add(s.reauthTTL)
	claims := ReauthClaims{
		Scope: ScopeMaintenance,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return ReauthGrant{}, err
	}
	return ReauthGrant{
		Token:        signed,
		ExpiresAt:    exp,
		ExpiresInSec: int64(s.reauthTTL / time.Second),
	}, nil
}

func (s *Service) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
}

// ParseSession verifies a session token and returns its claims. Expired and
// malformed tokens both fail with ErrInvalidToken.
func (s *Service) ParseSession(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	var claims SessionClaims
	parsed, err := s.parser().ParseWithClaims(token, &claims, s.keyFunc)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// VerifyReauth verifies a reauth token. Expiry is reported distinctly as
// ErrReauthExpired so the client can re-prompt for the step-up challenge.
func (s *Service) VerifyReauth(token string) (*ReauthClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	var claims ReauthClaims
	parsed, err := s.parser().ParseWithClaims(token, &claims, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrReauthExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Scope != ScopeMaintenance {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, ErrInvalidToken
	}
	return s.secret, nil
}
