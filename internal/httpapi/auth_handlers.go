package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`
	OTP      string `json:"otp,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.auth.Login(r.Context(), req.Email, req.Password, req.TenantID, req.OTP)
	if err != nil {
		a.handleLoginError(w, r, err)
		return
	}

	a.recorder.Record(r.Context(), audit.Entry{
		TenantID:   session.TenantID,
		Action:     "auth.login",
		EntityType: "session",
		Metadata:   map[string]string{"role": session.Role},
	})
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	session, err := a.auth.ProviderLogin(r.Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		a.handleLoginError(w, r, err)
		return
	}

	a.recorder.Record(r.Context(), audit.Entry{
		Action:     "auth.provider_login",
		EntityType: "session",
	})
	writeJSON(w, http.StatusOK, session)
}

// handleLoginError maps authentication failures. ErrTwoFactorRequired is a
// protocol continuation, not a denial: the credentials were correct and the
// client is told to re-submit with the one-time code.
func (a *API) handleLoginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrTwoFactorRequired):
		writeErrorFields(w, r, http.StatusUnauthorized, "two-factor code required",
			map[string]any{"require_2fa": true})
	case errors.Is(err, auth.ErrTenantRequired):
		writeError(w, r, http.StatusBadRequest, "tenant is required for this identity")
	case errors.Is(err, auth.ErrAccountPending):
		writeError(w, r, http.StatusForbidden, "account is pending approval")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword always answers 202: whether the identity exists is
// not observable from this endpoint.
func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	token, err := a.auth.CreatePasswordReset(r.Context(), req.Email)
	if err == nil {
		a.notifyReset(r.Context(), req.Email, token)
		a.recorder.Record(r.Context(), audit.Entry{
			Action:     "auth.password_reset.requested",
			EntityType: "account",
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			writeError(w, r, http.StatusUnauthorized, "invalid or expired reset token")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	a.recorder.Record(r.Context(), audit.Entry{
		Action:     "auth.password_reset.completed",
		EntityType: "account",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}
