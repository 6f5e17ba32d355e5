package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parishdesk.org/internal/auth"
)

// ErrBackendUnavailable marks transport failures where no response was
// received. Deliberately distinct from authentication failures so operators
// can tell "credentials wrong" from "backend down".
var ErrBackendUnavailable = errors.New("client: backend unavailable")

// RedirectError reports that session state was cleared and the caller must
// re-authenticate at Location, which preserves the original target in its
// next parameter.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return "client: session expired, re-authenticate at " + e.Location
}

// APIError carries a non-2xx response in decoded form.
type APIError struct {
	Status        int    `json:"-"`
	Message       string `json:"error"`
	Require2FA    bool   `json:"require_2fa"`
	ReauthExpired bool   `json:"reauth_expired"`
	RetryAfterSec int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: server returned %d: %s", e.Status, e.Message)
}

// Endpoints callable without a session. The guard never redirects on these,
// even on 401, to avoid redirect loops on landing content.
var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/auth/login",
	"/auth/provider-login",
	"/auth/provider-forgot-password",
	"/auth/provider-reset-password",
	"/tenants/resolve",
	"/church-info",
	"/cell-groups/public",
}

// Guard enforces the session contract on every outbound request: bearer
// token and tenant identifier attached, local expiry checked before
// dispatch, server-reported invalidation handled with a single
// clear-and-redirect.
type Guard struct {
	base  *url.URL
	hc    *http.Client
	cache *SessionCache
	now   func() time.Time
}

// NewGuard wraps an HTTP client for the given API base URL.
func NewGuard(baseURL string, cache *SessionCache) (*Guard, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	return &Guard{
		base:  u,
		hc:    &http.Client{Timeout: 15 * time.Second},
		cache: cache,
		now:   time.Now,
	}, nil
}

// WithHTTPClient swaps the underlying client (useful for tests).
func (g *Guard) WithHTTPClient(hc *http.Client) *Guard {
	if hc != nil {
		g.hc = hc
	}
	return g
}

// WithClock overrides the time source (useful for tests).
func (g *Guard) WithClock(fn func() time.Time) *Guard {
	if fn != nil {
		g.now = fn
	}
	return g
}

// Session exposes the cached state snapshot.
func (g *Guard) Session() State { return g.cache.Get() }

// SetSession installs a session after login.
func (g *Guard) SetSession(s State) error { return g.cache.Set(s) }

// Logout clears all session-derived local state.
func (g *Guard) Logout() error { return g.cache.Clear() }

// Do dispatches the request with the session contract applied. For
// non-public endpoints an expired or missing session returns a
// RedirectError without issuing the network call.
func (g *Guard) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	if isPublicPath(path) {
		resp, err := g.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return resp, nil
	}

	st := g.cache.Get()
	if st.Empty() || st.Expired(g.now()) {
		_ = g.cache.Clear()
		return nil, &RedirectError{Location: loginLocation(st.Role, originalTarget(req.URL))}
	}

	req.Header.Set("Authorization", "Bearer "+st.Token)
	if st.TenantID != "" {
		req.Header.Set("X-Tenant-ID", st.TenantID)
	}
	if st.CSRFToken != "" && isMutating(req.Method) {
		req.Header.Set("X-CSRF-Token", st.CSRFToken)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode == http.StatusUnauthorized && tokenRejected(resp) {
		resp.Body.Close()
		_ = g.cache.Clear()
		return nil, &RedirectError{Location: loginLocation(st.Role, originalTarget(req.URL))}
	}
	return resp, nil
}

// GetJSON issues a GET and decodes the 2xx response body.
func (g *Guard) GetJSON(ctx context.Context, path string, out any) error {
	return g.doJSON(ctx, http.MethodGet, path, nil, out, nil)
}

// PostJSON issues a POST with a JSON body and decodes the 2xx response.
// Extra headers (the reauth token header among them) may be supplied.
func (g *Guard) PostJSON(ctx context.Context, path string, in, out any, headers map[string]string) error {
	return g.doJSON(ctx, http.MethodPost, path, in, out, headers)
}

// DeleteJSON issues a DELETE and decodes the 2xx response.
func (g *Guard) DeleteJSON(ctx context.Context, path string, out any) error {
	return g.doJSON(ctx, http.MethodDelete, path, nil, out, nil)
}

func (g *Guard) doJSON(ctx context.Context, method, path string, in, out any, headers map[string]string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.base.ResolveReference(ref).String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			fmt.Sscanf(ra, "%d", &apiErr.RetryAfterSec)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
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

// loginLocation picks the role-appropriate login surface: provider
// principals land on the provider console entry, everyone else on the
// tenant login.
func loginLocation(role, next string) string {
	login := "/login"
	if role == auth.RoleSuperAdmin {
		login = "/provider/login"
	}
	if next == "" || next == "/" {
		return login
	}
	return login + "?next=" + url.QueryEscape(next)
}

func originalTarget(u *url.URL) string {
	target := u.Path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// tokenRejected reports whether the 401 body indicates token invalidity, as
// opposed to a 401 carrying the two-factor continuation flag.
func tokenRejected(resp *http.Response) bool {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return false
	}
	var body struct {
		Error      string `json:"error"`
		Require2FA bool   `json:"require_2fa"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return false
	}
	if body.Require2FA {
		return false
	}
	msg := strings.ToLower(body.Error)
	return strings.Contains(msg, "invalid token") || strings.Contains(msg, "bearer token")
}
