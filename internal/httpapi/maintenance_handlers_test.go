package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/maintenance"
	"parishdesk.org/internal/stream"
)

func TestTenantRestartFlow(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")
	reauth := env.reauthToken(headers, "pw123456")

	restartHeaders := map[string]string{
		"Authorization":  headers["Authorization"],
		"X-CSRF-Token":   headers["X-CSRF-Token"],
		"X-Reauth-Token": reauth,
	}
	resp := env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": "t1"}, restartHeaders)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var op maintenance.Operation
	env.decode(resp, &op)
	if op.Status != maintenance.StatusPending || op.ID == "" {
		t.Fatalf("unexpected operation: %+v", op)
	}

	env.orch.Wait()

	// poll until terminal; terminal status reads are stable
	for i := 0; i < 2; i++ {
		statusResp := env.do(http.MethodGet, "/provider/maintenance/restart/status/"+op.ID, nil, headers)
		if statusResp.StatusCode != http.StatusOK {
			t.Fatalf("status endpoint = %d", statusResp.StatusCode)
		}
		var polled maintenance.Operation
		env.decode(statusResp, &polled)
		if polled.Status != maintenance.StatusCompleted {
			t.Fatalf("poll %d: status = %q, want completed", i, polled.Status)
		}
	}

	// operation appears in the restart log
	logResp := env.do(http.MethodGet, "/provider/maintenance/restart/logs?limit=10", nil, headers)
	if logResp.StatusCode != http.StatusOK {
		t.Fatalf("logs status = %d", logResp.StatusCode)
	}
	var logs struct {
		Operations []maintenance.Operation `json:"operations"`
		Count      int                     `json:"count"`
	}
	env.decode(logResp, &logs)
	if logs.Count != 1 || logs.Operations[0].ID != op.ID {
		t.Fatalf("unexpected log: %+v", logs)
	}
}

func TestTenantRestartConflictWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")
	env.restarter.block = make(chan struct{})
	defer close(env.restarter.block)

	mk := func() *http.Response {
		return env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
			map[string]string{"tenant_id": "t1"}, map[string]string{
				"Authorization":  headers["Authorization"],
				"X-CSRF-Token":   headers["X-CSRF-Token"],
				"X-Reauth-Token": env.reauthToken(headers, "pw123456"),
			})
	}

	first := mk()
	defer first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d, want 202", first.StatusCode)
	}

	second := mk()
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatal("409 must carry Retry-After")
	}
}

func TestRestartWithExpiredReauth(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")
	reauth := env.reauthToken(headers, "pw123456")

	env.advance(91 * time.Second)

	resp := env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": "t1"}, map[string]string{
			"Authorization":  headers["Authorization"],
			"X-CSRF-Token":   headers["X-CSRF-Token"],
			"X-Reauth-Token": reauth,
		})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body map[string]any
	env.decode(resp, &body)
	if body["reauth_expired"] != true {
		t.Fatalf("reauth_expired flag missing: %v", body)
	}
}

func TestRestartWithSessionTokenAsReauthFails(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	sessionToken := headers["Authorization"][len("Bearer "):]
	resp := env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": "t1"}, map[string]string{
			"Authorization":  headers["Authorization"],
			"X-CSRF-Token":   headers["X-CSRF-Token"],
			"X-Reauth-Token": sessionToken,
		})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestFullRestartDisabledFlag(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	resp := env.do(http.MethodPost, "/provider/maintenance/restart/full", nil, map[string]string{
		"Authorization":  headers["Authorization"],
		"X-CSRF-Token":   headers["X-CSRF-Token"],
		"X-Reauth-Token": env.reauthToken(headers, "pw123456"),
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	var body map[string]any
	env.decode(resp, &body)
	if body["maintenance_disabled"] != true {
		t.Fatalf("maintenance_disabled flag missing: %v", body)
	}

	logResp := env.do(http.MethodGet, "/provider/maintenance/restart/logs", nil, headers)
	var logs struct {
		Count int `json:"count"`
	}
	env.decode(logResp, &logs)
	if logs.Count != 0 {
		t.Fatalf("rejected restart must not be tracked, got %d operations", logs.Count)
	}
}

func TestFullRestartWhenEnabled(t *testing.T) {
	env := newTestEnv(t, withFullRestart())
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	resp := env.do(http.MethodPost, "/provider/maintenance/restart/full", nil, map[string]string{
		"Authorization":  headers["Authorization"],
		"X-CSRF-Token":   headers["X-CSRF-Token"],
		"X-Reauth-Token": env.reauthToken(headers, "pw123456"),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	env.orch.Wait()
}

func TestRestartUnknownTenant(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	resp := env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": "nope"}, map[string]string{
			"Authorization":  headers["Authorization"],
			"X-CSRF-Token":   headers["X-CSRF-Token"],
			"X-Reauth-Token": env.reauthToken(headers, "pw123456"),
		})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMaintenanceForbiddenForTenantRoles(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{TenantID: "t1", Email: "admin@first.example", Role: auth.RoleTenantAdmin}, "pw123456")

	resp := env.do(http.MethodPost, "/auth/login",
		map[string]string{"email": "admin@first.example", "password": "pw123456", "tenant_id": "t1"}, nil)
	var session auth.Session
	env.decode(resp, &session)

	reauthResp := env.do(http.MethodPost, "/provider/maintenance/reauth",
		map[string]string{"password": "pw123456"}, map[string]string{
			"Authorization": "Bearer " + session.Token,
			"X-CSRF-Token":  session.CSRFToken,
		})
	defer reauthResp.Body.Close()
	if reauthResp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", reauthResp.StatusCode)
	}
}

// The event stream must reach the client through the full middleware chain:
// headers and each event are flushed immediately, not buffered until the
// handler returns.
func TestOperationEventsStreamDeliversStatusChanges(t *testing.T) {
	env := newTestEnv(t)
	env.addTenant("t1", "first")
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.baseURL+"/provider/maintenance/restart/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	preamble, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read preamble: %v", err)
	}
	if !strings.HasPrefix(preamble, ":") {
		t.Fatalf("preamble = %q", preamble)
	}

	restart := env.do(http.MethodPost, "/provider/maintenance/restart/tenant",
		map[string]string{"tenant_id": "t1"}, map[string]string{
			"Authorization":  headers["Authorization"],
			"X-CSRF-Token":   headers["X-CSRF-Token"],
			"X-Reauth-Token": env.reauthToken(headers, "pw123456"),
		})
	var op maintenance.Operation
	env.decode(restart, &op)

	seen := map[string]bool{}
	for len(seen) < 3 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read event (saw %v): %v", seen, err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt stream.OperationEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.OperationID == op.ID {
			seen[evt.Status] = true
		}
	}
	for _, status := range []string{maintenance.StatusPending, maintenance.StatusRunning, maintenance.StatusCompleted} {
		if !seen[status] {
			t.Fatalf("missing %s event, saw %v", status, seen)
		}
	}
}

func TestStatusUnknownOperation(t *testing.T) {
	env := newTestEnv(t)
	env.addAccount(auth.Account{Email: "root@example.com", Role: auth.RoleSuperAdmin}, "pw123456")
	headers := env.providerSession("pw123456")

	resp := env.do(http.MethodGet, "/provider/maintenance/restart/status/missing", nil, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
