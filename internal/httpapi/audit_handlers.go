package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
)

// handleProviderTenants routes /provider/tenants/{id}/... subresources.
func (a *API) handleProviderTenants(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/provider/tenants/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	tenantID, sub := parts[0], parts[1]

	switch sub {
	case "audit-logs":
		a.handleTenantAuditLogs(w, r, tenantID)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleTenantAuditLogs(w http.ResponseWriter, r *http.Request, tenantID string) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.queryAuditLogs(w, r, principal, tenantID)
	case http.MethodDelete:
		a.purgeAuditLogs(w, r, principal, tenantID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) queryAuditLogs(w http.ResponseWriter, r *http.Request, principal auth.Principal, tenantID string) {
	if !principal.CanPerform(auth.ActionAuditRead) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}
	if !a.tenantExists(w, r, tenantID) {
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("q"))

	entries, err := a.recorder.Query(r.Context(), tenantID, filter, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"entries":   entries,
		"count":     len(entries),
	})
}

// purgeAuditLogs deletes a tenant's audit entries. The purge itself is
// recorded with the deleted count, so a trace of the deletion survives it.
func (a *API) purgeAuditLogs(w http.ResponseWriter, r *http.Request, principal auth.Principal, tenantID string) {
	if !principal.CanPerform(auth.ActionAuditPurge) {
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
		return
	}
	if !a.tenantExists(w, r, tenantID) {
		return
	}

	filter := strings.TrimSpace(r.URL.Query().Get("q"))
	deleted, err := a.recorder.Purge(r.Context(), tenantID, filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.recorder.Record(r.Context(), audit.Entry{
		TenantID:   tenantID,
		ActorID:    principal.AccountID,
		Action:     "audit.purged",
		EntityType: "audit_log",
		Metadata: map[string]string{
			"deleted_count": strconv.FormatInt(deleted, 10),
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":     tenantID,
		"deleted_count": deleted,
	})
}

func (a *API) tenantExists(w http.ResponseWriter, r *http.Request, tenantID string) bool {
	if a.store == nil {
		return true
	}
	if _, err := a.store.Tenants(r.Context()).Find(r.Context(), tenantID); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown tenant")
		} else {
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return false
	}
	return true
}
