package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/client"
	"parishdesk.org/internal/maintenance"
)

// End-to-end exercise of the provider maintenance flow against a running
// instance: login, step-up reauth, tenant restart, status polling, audit
// read-back.
func main() {
	baseURL := envOr("PARISHDESK_API_URL", "http://localhost:8080")
	email := envOr("PARISHDESK_SMOKE_EMAIL", "provider@parishdesk.org")
	password := os.Getenv("PARISHDESK_SMOKE_PASSWORD")
	tenantID := os.Getenv("PARISHDESK_SMOKE_TENANT")
	if password == "" || tenantID == "" {
		log.Fatal("PARISHDESK_SMOKE_PASSWORD and PARISHDESK_SMOKE_TENANT are required")
	}

	cache, err := client.NewSessionCache("")
	if err != nil {
		log.Fatalf("session cache: %v", err)
	}
	guard, err := client.NewGuard(baseURL, cache)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var session auth.Session
	err = guard.PostJSON(ctx, "/auth/provider-login",
		map[string]string{"email": email, "password": password}, &session, nil)
	if err != nil {
		log.Fatalf("provider login: %v", err)
	}
	if err := guard.SetSession(client.State{
		Token:     session.Token,
		CSRFToken: session.CSRFToken,
		Role:      session.Role,
		TenantID:  session.TenantID,
		ExpiresAt: session.ExpiresAt.Unix(),
	}); err != nil {
		log.Fatalf("install session: %v", err)
	}

	var grant auth.ReauthGrant
	err = guard.PostJSON(ctx, "/provider/maintenance/reauth",
		map[string]string{"password": password}, &grant, nil)
	if err != nil {
		log.Fatalf("reauth: %v", err)
	}

	var op maintenance.Operation
	err = guard.PostJSON(ctx, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": tenantID}, &op,
		map[string]string{"X-Reauth-Token": grant.Token})
	if err != nil {
		log.Fatalf("request tenant restart: %v", err)
	}
	log.Printf("operation %s accepted (%s)", op.ID, op.Status)

	final, err := guard.PollOperation(ctx, op.ID, time.Second)
	if err != nil {
		log.Fatalf("poll operation: %v", err)
	}
	if final.Status != maintenance.StatusCompleted {
		log.Fatalf("operation ended %s: %s", final.Status, final.Error)
	}

	var logs struct {
		Entries []map[string]any `json:"entries"`
		Count   int              `json:"count"`
	}
	path := "/provider/tenants/" + url.PathEscape(tenantID) +
		"/audit-logs?q=maintenance.restart&limit=10"
	if err := guard.GetJSON(ctx, path, &logs); err != nil {
		log.Fatalf("read audit logs: %v", err)
	}
	if logs.Count == 0 {
		log.Fatal("no audit entries recorded for the restart")
	}

	fmt.Printf("smoke test passed: operation=%s audit_entries=%d\n", final.ID, logs.Count)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
