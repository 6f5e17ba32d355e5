package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/maintenance"
)

const reauthHeader = "X-Reauth-Token"

type reauthRequest struct {
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// handleReauth issues the short-lived maintenance grant after fresh secret
// verification. A valid session alone is deliberately not enough.
func (a *API) handleReauth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.CanPerform(auth.ActionMaintenanceRestart) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}

	var req reauthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	grant, err := a.auth.Reauthenticate(r.Context(), principal.AccountID, req.Password, req.OTP)
	if err != nil {
		a.handleLoginError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

type tenantRestartRequest struct {
	TenantID string `json:"tenant_id"`
}

func (a *API) handleFullRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.startRestart(w, r, maintenance.KindFullRestart, "")
}

func (a *API) handleTenantRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tenantRestartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.startRestart(w, r, maintenance.KindTenantRestart, req.TenantID)
}

// startRestart verifies role and step-up proof, then enqueues the operation.
// Acceptance is 202: completion is observed through polling or push.
func (a *API) startRestart(w http.ResponseWriter, r *http.Request, kind, target string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if !principal.CanPerform(auth.ActionMaintenanceRestart) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}

	reauthToken := strings.TrimSpace(r.Header.Get(reauthHeader))
	if reauthToken == "" {
		writeErrorFields(w, r, http.StatusUnauthorized, "reauthentication required",
			map[string]any{"reauth_expired": true})
		return
	}

	op, err := a.orch.RequestRestart(r.Context(), kind, target, reauthToken, principal.AccountID)
	if err != nil {
		a.handleMaintenanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, op)
}

func (a *API) handleMaintenanceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrReauthExpired):
		writeErrorFields(w, r, http.StatusUnauthorized, "reauthentication window expired",
			map[string]any{"reauth_expired": true})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "invalid reauthentication token")
	case errors.Is(err, maintenance.ErrMaintenanceDisabled):
		writeErrorFields(w, r, http.StatusForbidden, "full restart is disabled in this deployment",
			map[string]any{"maintenance_disabled": true})
	case errors.Is(err, maintenance.ErrUnknownTenant):
		writeError(w, r, http.StatusNotFound, "unknown tenant")
	case errors.Is(err, maintenance.ErrInvalidKind):
		writeError(w, r, http.StatusBadRequest, "invalid operation kind")
	case errors.Is(err, maintenance.ErrOperationInProgress):
		w.Header().Set("Retry-After", strconv.Itoa(int(a.orch.RetryAfter().Seconds())))
		writeError(w, r, http.StatusConflict, "an operation of this kind is already in progress")
	case errors.Is(err, maintenance.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "operation not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleRestartStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := principalFrom(r)
	if !ok || !principal.CanPerform(auth.ActionMaintenanceRestart) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/provider/maintenance/restart/status/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusBadRequest, "operation id is required")
		return
	}

	op, err := a.orch.Status(r.Context(), id)
	if err != nil {
		a.handleMaintenanceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (a *API) handleRestartLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := principalFrom(r)
	if !ok || !principal.CanPerform(auth.ActionMaintenanceRestart) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ops, err := a.orch.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": ops,
		"count":      len(ops),
	})
}

// handleOperationEvents streams maintenance status changes over SSE. With a
// trailing id only that operation's events pass; otherwise all do. Push is
// best-effort on top of the polling contract.
func (a *API) handleOperationEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := principalFrom(r)
	if !ok || !principal.CanPerform(auth.ActionMaintenanceRestart) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}
	if a.events == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	opID := strings.TrimPrefix(r.URL.Path, "/provider/maintenance/restart/events")
	opID = strings.TrimPrefix(opID, "/")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.events.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for event := range ch {
		if opID != "" && event.OperationID != opID {
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
