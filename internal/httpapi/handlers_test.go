package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/maintenance"
	"parishdesk.org/internal/stream"
)

type blockingRestarter struct {
	mu    sync.Mutex
	block chan struct{}
	calls int
}

func (r *blockingRestarter) RestartTenant(ctx context.Context, tenantID string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *blockingRestarter) RestartServer(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

type testEnv struct {
	t         *testing.T
	baseURL   string
	client    *http.Client
	store     *auth.MemoryStore
	audit     *audit.MemoryStore
	orch      *maintenance.Orchestrator
	restarter *blockingRestarter
	now       time.Time
	nowMu     sync.Mutex

	resetMu        sync.Mutex
	lastResetToken string
}

func (e *testEnv) resetToken() string {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()
	return e.lastResetToken
}

type envOption func(*envConfig)

type envConfig struct {
	fullRestart bool
}

func withFullRestart() envOption {
	return func(c *envConfig) { c.fullRestart = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	env := &testEnv{
		t:         t,
		store:     auth.NewMemoryStore(),
		audit:     audit.NewMemoryStore(),
		restarter: &blockingRestarter{},
		now:       time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	clock := func() time.Time {
		env.nowMu.Lock()
		defer env.nowMu.Unlock()
		return env.now
	}

	authSvc, err := auth.NewService(env.store, "test-secret", auth.WithClock(clock))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	recorder := audit.NewRecorder(env.audit)
	events := stream.New()
	env.orch = maintenance.New(maintenance.NewMemoryStore(),
		env.store.Tenants(context.Background()), authSvc, env.restarter,
		recorder, events,
		maintenance.WithFullRestartEnabled(cfg.fullRestart),
		maintenance.WithClock(clock))

	api := New(ReadyProbe{}, "test", authSvc, env.store, env.orch, recorder, events,
		WithResetNotifier(func(ctx context.Context, email, token string) {
			env.resetMu.Lock()
			env.lastResetToken = token
			env.resetMu.Unlock()
		}))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(env.orch.Wait)

	env.baseURL = srv.URL
	env.client = srv.Client()
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.nowMu.Lock()
	e.now = e.now.Add(d)
	e.nowMu.Unlock()
}

func (e *testEnv) addTenant(id, slug string) {
	e.t.Helper()
	ctx := context.Background()
	err := e.store.Tenants(ctx).Create(ctx, &auth.Tenant{
		ID: id, Slug: slug, Name: slug, Status: auth.StatusActive,
		Metadata: map[string]string{"address": "12 Chapel Lane", "secret_note": "hidden"},
	})
	if err != nil {
		e.t.Fatalf("create tenant: %v", err)
	}
}

func (e *testEnv) addAccount(a auth.Account, password string) *auth.Account {
	e.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		e.t.Fatalf("hash: %v", err)
	}
	a.PasswordHash = hash
	if a.Status == "" {
		a.Status = auth.StatusActive
	}
	ctx := context.Background()
	if err := e.store.Accounts(ctx).Create(ctx, &a); err != nil {
		e.t.Fatalf("create account: %v", err)
	}
	return &a
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.baseURL+path, payload)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (e *testEnv) decode(resp *http.Response, dst any) {
	e.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		e.t.Fatalf("decode response: %v", err)
	}
}

// providerSession logs in the seeded provider account and returns auth
// headers for subsequent calls.
func (e *testEnv) providerSession(password string) map[string]string {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/auth/provider-login",
		map[string]string{"email": "root@example.com", "password": password}, nil)
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("provider login status = %d", resp.StatusCode)
	}
	var session auth.Session
	e.decode(resp, &session)
	return map[string]string{
		"Authorization": "Bearer " + session.Token,
		"X-CSRF-Token":  session.CSRFToken,
	}
}

func (e *testEnv) reauthToken(headers map[string]string, password string) string {
	e.t.Helper()
	resp := e.do(http.MethodPost, "/provider/maintenance/reauth",
		map[string]string{"password": password}, headers)
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("reauth status = %d", resp.StatusCode)
	}
	var grant auth.ReauthGrant
	e.decode(resp, &grant)
	return grant.Token
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	var body map[string]any
	env.decode(resp, &body)
	if body["service"] != "parishdesk-api" {
		t.Fatalf("service = %v", body["service"])
	}

	resp = env.do(http.MethodGet, "/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/v1/info", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", nil, map[string]string{"X-Request-ID": "req-42"})
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}

	resp2 := env.do(http.MethodGet, "/healthz", nil, nil)
	defer resp2.Body.Close()
	if resp2.Header.Get("X-Request-ID") == "" {
		t.Fatal("request id not assigned")
	}
}

func TestProtectedPathRequiresBearer(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/provider/maintenance/restart/logs", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMutatingRequestRequiresCSRFEcho(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	// drop the CSRF header from a mutating request
	resp := env.do(http.MethodPost, "/provider/maintenance/reauth",
		map[string]string{"password": "pw123456"},
		map[string]string{"Authorization": headers["Authorization"]})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}
