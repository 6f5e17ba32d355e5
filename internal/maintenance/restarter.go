package maintenance

import (
	"context"
	"os"
	"syscall"
	"time"
)

// LocalRestarter performs restarts against the local process. Tenant
// restarts reload the tenant's logical context through the configured hook;
// a server restart signals the process after a short delay so the accepting
// HTTP response can still be written, relying on the supervisor to bring the
// process back up.
type LocalRestarter struct {
	// ReloadTenant flushes a tenant's caches and connections. Optional;
	// a nil hook makes tenant restarts a tracked no-op.
	ReloadTenant func(ctx context.Context, tenantID string) error

	// ExitDelay is how long to wait before signalling the process.
	ExitDelay time.Duration

	// exit is swapped in tests.
	exit func() error
}

// NewLocalRestarter builds a restarter with a one second exit delay.
func NewLocalRestarter(reload func(ctx context.Context, tenantID string) error) *LocalRestarter {
	return &LocalRestarter{
		ReloadTenant: reload,
		ExitDelay:    time.Second,
		exit: func() error {
			return syscall.Kill(os.Getpid(), syscall.SIGTERM)
		},
	}
}

func (r *LocalRestarter) RestartTenant(ctx context.Context, tenantID string) error {
	if r.ReloadTenant == nil {
		return nil
	}
	return r.ReloadTenant(ctx, tenantID)
}

func (r *LocalRestarter) RestartServer(ctx context.Context) error {
	delay := r.ExitDelay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}
	return r.exit()
}
