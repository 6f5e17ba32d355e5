package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"parishdesk.org/internal/auth"
)

type tenantPublic struct {
	TenantID string `json:"tenant_id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

// handleResolveTenant maps a public slug to a tenant identifier. Used by the
// login page before any session exists, so it is intentionally unauthenticated
// and exposes nothing beyond the public identity.
func (a *API) handleResolveTenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		writeError(w, r, http.StatusBadRequest, "slug is required")
		return
	}

	t, err := a.store.Tenants(r.Context()).FindBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown tenant")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tenantPublic{
		TenantID: t.ID,
		Slug:     t.Slug,
		Name:     t.Name,
		Status:   t.Status,
	})
}

// handleChurchInfo serves the public landing profile for a congregation.
func (a *API) handleChurchInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		writeError(w, r, http.StatusBadRequest, "slug is required")
		return
	}

	t, err := a.store.Tenants(r.Context()).FindBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "unknown tenant")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if t.Status != auth.StatusActive {
		writeError(w, r, http.StatusNotFound, "unknown tenant")
		return
	}

	info := map[string]any{
		"tenant_id": t.ID,
		"slug":      t.Slug,
		"name":      t.Name,
	}
	for k, v := range t.Metadata {
		switch k {
		case "address", "phone", "email", "website", "service_times", "about":
			info[k] = v
		}
	}
	writeJSON(w, http.StatusOK, info)
}
