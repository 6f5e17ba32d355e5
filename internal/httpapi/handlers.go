package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/maintenance"
	"parishdesk.org/internal/obs"
	"parishdesk.org/internal/stream"
)

const serviceName = "parishdesk-api"

// ReadyProbe checks service readiness (DB reachability when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ResetNotifier delivers a password reset token out of band (email in
// production, log line in development).
type ResetNotifier func(ctx context.Context, email, token string)

// API is the HTTP layer. It owns routing and translation between wire shapes
// and the auth, maintenance and audit services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth        *auth.Service
	store       auth.Store
	orch        *maintenance.Orchestrator
	recorder    *audit.Recorder
	events      *stream.Stream
	notifyReset ResetNotifier
}

// Option configures the API.
type Option func(*API)

// WithResetNotifier installs the reset token delivery hook.
func WithResetNotifier(fn ResetNotifier) Option {
	return func(a *API) {
		if fn != nil {
			a.notifyReset = fn
		}
	}
}

// New wires routes. events may be nil when push streaming is disabled.
func New(rp ReadyProbe, version string, authSvc *auth.Service, store auth.Store,
	orch *maintenance.Orchestrator, recorder *audit.Recorder, events *stream.Stream, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       authSvc,
		store:      store,
		orch:       orch,
		recorder:   recorder,
		events:     events,
		notifyReset: func(ctx context.Context, email, token string) {
			obs.Event("info", "password_reset_token_issued", map[string]any{"email": email})
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// authentication surfaces
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/provider-login", a.handleProviderLogin)
	a.mux.HandleFunc("/auth/provider-forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/auth/provider-reset-password", a.handleResetPassword)

	// provider maintenance console
	a.mux.HandleFunc("/provider/maintenance/reauth", a.handleReauth)
	a.mux.HandleFunc("/provider/maintenance/restart/full", a.handleFullRestart)
	a.mux.HandleFunc("/provider/maintenance/restart/tenant", a.handleTenantRestart)
	a.mux.HandleFunc("/provider/maintenance/restart/status/", a.handleRestartStatus)
	a.mux.HandleFunc("/provider/maintenance/restart/logs", a.handleRestartLog)
	a.mux.HandleFunc("/provider/maintenance/restart/events", a.handleOperationEvents)
	a.mux.HandleFunc("/provider/maintenance/restart/events/", a.handleOperationEvents)

	// provider tenant administration
	a.mux.HandleFunc("/provider/tenants/", a.handleProviderTenants)

	// public tenant surfaces
	a.mux.HandleFunc("/tenants/resolve", a.handleResolveTenant)
	a.mux.HandleFunc("/church-info", a.handleChurchInfo)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 40, 20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeErrorFields is writeError with protocol continuation flags
// (require_2fa, reauth_expired, maintenance_disabled).
func writeErrorFields(w http.ResponseWriter, r *http.Request, code int, msg string, fields map[string]any) {
	payload := map[string]any{
		"error": msg,
	}
	for k, v := range fields {
		payload[k] = v
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}
