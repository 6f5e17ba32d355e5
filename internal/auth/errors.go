package auth

import "errors"

var (
	// ErrInvalidCredentials is deliberately generic: it does not reveal
	// whether the identity or the secret was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTwoFactorRequired is a protocol continuation, not a terminal
	// failure: the caller should re-submit with the otp field populated.
	ErrTwoFactorRequired = errors.New("auth: two factor code required")

	ErrAccountPending = errors.New("auth: account pending approval")
	ErrTenantRequired = errors.New("auth: tenant is required for this login")
	ErrReauthExpired  = errors.New("auth: reauth token expired")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrNotFound       = errors.New("auth: not found")
	ErrInvalidInput   = errors.New("auth: invalid input")
)
