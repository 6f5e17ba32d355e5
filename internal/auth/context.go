package auth

import (
	"context"
	"strings"
)

type ctxKey string

const principalKey ctxKey = "auth_principal"

// ContextWithPrincipal stores the authenticated identity in the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated identity from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || strings.TrimSpace(p.AccountID) == "" {
		return Principal{}, false
	}
	return p, true
}
