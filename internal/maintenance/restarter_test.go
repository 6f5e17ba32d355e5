package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalRestarterTenantHook(t *testing.T) {
	var reloaded []string
	r := NewLocalRestarter(func(ctx context.Context, tenantID string) error {
		reloaded = append(reloaded, tenantID)
		return nil
	})

	if err := r.RestartTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("restart tenant: %v", err)
	}
	if len(reloaded) != 1 || reloaded[0] != "t1" {
		t.Fatalf("reloaded = %v", reloaded)
	}

	hookErr := errors.New("pool busy")
	r.ReloadTenant = func(ctx context.Context, tenantID string) error { return hookErr }
	if err := r.RestartTenant(context.Background(), "t1"); !errors.Is(err, hookErr) {
		t.Fatalf("err = %v, want hook error", err)
	}

	r.ReloadTenant = nil
	if err := r.RestartTenant(context.Background(), "t1"); err != nil {
		t.Fatalf("nil hook must be a tracked no-op, got %v", err)
	}
}

func TestLocalRestarterServerSignal(t *testing.T) {
	r := NewLocalRestarter(nil)
	r.ExitDelay = time.Millisecond
	var signalled bool
	r.exit = func() error {
		signalled = true
		return nil
	}

	if err := r.RestartServer(context.Background()); err != nil {
		t.Fatalf("restart server: %v", err)
	}
	if !signalled {
		t.Fatal("exit not invoked")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.ExitDelay = time.Minute
	if err := r.RestartServer(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
