package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"parishdesk.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	csrfHeader = "X-CSRF-Token"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/metrics",
	"/auth/login",
	"/auth/provider-login",
	"/auth/provider-forgot-password",
	"/auth/provider-reset-password",
	"/tenants/resolve",
	"/church-info",
}

// withAuth resolves the bearer session on every non-public path, installs
// the principal in the context and enforces the CSRF echo on mutating
// requests. The tenant binding inside the token is authoritative: headers
// and payload fields never widen it.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.auth.ParseSession(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		principal := auth.Principal{
			AccountID: claims.Subject,
			Role:      claims.Role,
			TenantID:  claims.TenantID,
			CSRFToken: claims.CSRF,
		}

		if isMutating(r.Method) && principal.CSRFToken != "" {
			if r.Header.Get(csrfHeader) != principal.CSRFToken {
				writeError(w, r, http.StatusForbidden, "csrf token mismatch")
				return
			}
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
