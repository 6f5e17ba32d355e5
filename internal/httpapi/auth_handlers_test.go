package httpapi

import (
	"net/http"
	"testing"

	"github.com/pquerna/otp/totp"

	"parishdesk.org/internal/auth"
)

func TestLoginReturnsSession(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{TenantID: "t1", Email: "admin@first.example", Role: auth.RoleTenantAdmin}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "admin@first.example", "password": "pw123456", "tenant_id": "t1"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var session auth.Session
	env.decode(resp, &session)
	if session.TenantID != "t1" || session.Token == "" || session.CSRFToken == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestLoginTwoFactorContinuationFlag(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	secret, _, err := auth.GenerateTOTPSecret("parishdesk", "2fa@first.example")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	env.addAccount(auth.Account{
		TenantID: "t1", Email: "2fa@first.example", Role: auth.RoleTenantAdmin,
		TwoFactorEnabled: true, TOTPSecret: secret,
	}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "2fa@first.example", "password": "pw123456", "tenant_id": "t1"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]any
	env.decode(resp, &body)
	if body["require_2fa"] != true {
		t.Fatalf("require_2fa missing: %v", body)
	}

	code, err := totp.GenerateCode(secret, env.now)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	resp = env.do(http.MethodPost, "/auth/login", map[string]string{
		"email": "2fa@first.example", "password": "pw123456", "tenant_id": "t1", "otp": code,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with code = %d, want 200", resp.StatusCode)
	}
}

func TestLoginWrongPasswordHidesTwoFactorStage(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	secret, _, err := auth.GenerateTOTPSecret("parishdesk", "2fa@first.example")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	env.addAccount(auth.Account{
		TenantID: "t1", Email: "2fa@first.example", Role: auth.RoleTenantAdmin,
		TwoFactorEnabled: true, TOTPSecret: secret,
	}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "2fa@first.example", "password": "wrong", "tenant_id": "t1"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]any
	env.decode(resp, &body)
	if _, leaked := body["require_2fa"]; leaked {
		t.Fatal("wrong password must not reveal 2FA enrollment")
	}
}

func TestLoginTenantRequired(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{TenantID: "t1", Email: "staff@first.example", Role: auth.RoleStaff}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "staff@first.example", "password": "pw123456"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginPendingAccountIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{
		TenantID: "t1", Email: "p@first.example", Role: auth.RoleMember, Status: auth.StatusPending,
	}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "p@first.example", "password": "pw123456"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestForgotPasswordAlwaysAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")

	known := env.do(http.MethodPost, "/auth/provider-forgot-password",
		map[string]string{"email": "root@example.com"}, nil)
	defer known.Body.Close()
	unknown := env.do(http.MethodPost, "/auth/provider-forgot-password",
		map[string]string{"email": "nobody@example.com"}, nil)
	defer unknown.Body.Close()

	if known.StatusCode != http.StatusAccepted || unknown.StatusCode != http.StatusAccepted {
		t.Fatalf("statuses = %d/%d, both must be 202", known.StatusCode, unknown.StatusCode)
	}
}

func TestResetPasswordRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "old-password")

	resp := env.do(http.MethodPost, "/auth/provider-forgot-password",
		map[string]string{"email": "root@example.com"}, nil)
	resp.Body.Close()
	issued := env.resetToken()
	if issued == "" {
		t.Fatal("no reset token delivered")
	}

	resp = env.do(http.MethodPost, "/auth/provider-reset-password",
		map[string]string{"token": issued, "new_password": "new-password"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", resp.StatusCode)
	}

	login := env.do(http.MethodPost, "/auth/provider-login",
		map[string]string{"email": "root@example.com", "password": "new-password"}, nil)
	defer login.Body.Close()
	if login.StatusCode != http.StatusOK {
		t.Fatalf("login with new password = %d", login.StatusCode)
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "a@b.c", "password": "pw", "role": "super_admin"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown field", resp.StatusCode)
	}
}
