package maintenance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/auth"
	"parishdesk.org/internal/ids"
	"parishdesk.org/internal/obs"
	"parishdesk.org/internal/stream"
)

const restartTimeout = 5 * time.Minute

// TenantDirectory resolves tenant existence for tenant-scoped restarts.
// auth.TenantStore satisfies it.
type TenantDirectory interface {
	Find(ctx context.Context, id string) (*auth.Tenant, error)
}

// ReauthVerifier validates step-up reauth tokens. auth.Service satisfies it.
type ReauthVerifier interface {
	VerifyReauth(token string) (*auth.ReauthClaims, error)
}

// Restarter performs the actual restart work.
type Restarter interface {
	RestartTenant(ctx context.Context, tenantID string) error
	RestartServer(ctx context.Context) error
}

// Orchestrator accepts reauth-gated restart requests, tracks them through
// the pending/running/terminal state machine and exposes status for polling.
// The request that enqueues a restart returns immediately; the work runs on
// its own goroutine with a background context.
type Orchestrator struct {
	store     Store
	tenants   TenantDirectory
	reauth    ReauthVerifier
	restarter Restarter
	recorder  *audit.Recorder
	events    *stream.Stream

	allowFullRestart bool
	retryAfter       time.Duration
	now              func() time.Time

	wg sync.WaitGroup
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithFullRestartEnabled gates whole-server restarts. Defense in depth: the
// deployment switch applies independently of any per-request authorization.
func WithFullRestartEnabled(enabled bool) Option {
	return func(o *Orchestrator) { o.allowFullRestart = enabled }
}

// WithRetryAfter sets the hint returned alongside ErrOperationInProgress.
func WithRetryAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryAfter = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.now = fn
		}
	}
}

// New constructs the orchestrator. events may be nil when push is disabled.
func New(store Store, tenants TenantDirectory, reauth ReauthVerifier, restarter Restarter,
	recorder *audit.Recorder, events *stream.Stream, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		tenants:    tenants,
		reauth:     reauth,
		restarter:  restarter,
		recorder:   recorder,
		events:     events,
		retryAfter: 30 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RetryAfter is the hint surfaced with ErrOperationInProgress responses.
func (o *Orchestrator) RetryAfter() time.Duration { return o.retryAfter }

// RequestRestart verifies the reauth token and preconditions, creates the
// operation in pending state, writes the acceptance audit entry and starts
// the restart asynchronously. Transient failures are reported, never retried
// here: retry is a deliberate operator action needing a fresh reauth token.
func (o *Orchestrator) RequestRestart(ctx context.Context, kind, target, reauthToken, actor string) (*Operation, error) {
	claims, err := o.reauth.VerifyReauth(reauthToken)
	if err != nil {
		return nil, err
	}
	if claims.Subject != actor {
		return nil, auth.ErrUnauthorized
	}

	target = strings.TrimSpace(target)
	switch kind {
	case KindFullRestart:
		if !o.allowFullRestart {
			return nil, ErrMaintenanceDisabled
		}
		target = ""
	case KindTenantRestart:
		if target == "" {
			return nil, ErrUnknownTenant
		}
		if _, err := o.tenants.Find(ctx, target); err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return nil, ErrUnknownTenant
			}
			return nil, err
		}
	default:
		return nil, ErrInvalidKind
	}

	op := &Operation{
		ID:             ids.New(),
		Kind:           kind,
		TargetTenantID: target,
		Status:         StatusPending,
		RequestedBy:    actor,
		RequestedAt:    o.now().UTC(),
	}
	if err := o.store.Create(ctx, op); err != nil {
		return nil, err
	}

	o.recorder.Record(ctx, audit.Entry{
		TenantID:   target,
		ActorID:    actor,
		Action:     "maintenance.restart.requested",
		EntityType: "maintenance_operation",
		Metadata: map[string]string{
			"operation_id": op.ID,
			"kind":         kind,
		},
	})
	o.publish(op)

	o.wg.Add(1)
	go o.run(*op)

	return op, nil
}

// Status returns the operation record for polling. Reads are idempotent:
// terminal operations never regress.
func (o *Orchestrator) Status(ctx context.Context, operationID string) (*Operation, error) {
	return o.store.Find(ctx, operationID)
}

// Recent lists the latest operations for the restart log view.
func (o *Orchestrator) Recent(ctx context.Context, limit int) ([]Operation, error) {
	return o.store.Recent(ctx, limit)
}

// Wait blocks until all in-flight restarts have reached a terminal state.
// Called on shutdown and by tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run drives one operation to a terminal state. It uses a background
// context: teardown of the requesting client only cancels its polling, never
// the server-side work.
func (o *Orchestrator) run(op Operation) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()

	if err := o.store.MarkRunning(ctx, op.ID); err != nil {
		o.reportPersistFailure(ctx, &op, "maintenance_mark_running_failed", err)
		return
	}
	op.Status = StatusRunning
	o.publish(&op)

	var restartErr error
	switch op.Kind {
	case KindFullRestart:
		restartErr = o.restarter.RestartServer(ctx)
	case KindTenantRestart:
		restartErr = o.restarter.RestartTenant(ctx, op.TargetTenantID)
	}

	status := StatusCompleted
	errMsg := ""
	if restartErr != nil {
		status = StatusFailed
		errMsg = restartErr.Error()
	}
	completedAt := o.now().UTC()
	if err := o.store.MarkTerminal(ctx, op.ID, status, errMsg, completedAt); err != nil {
		o.reportPersistFailure(ctx, &op, "maintenance_mark_terminal_failed", err)
		return
	}
	op.Status = status
	op.Error = errMsg
	op.CompletedAt = &completedAt
	o.publish(&op)
	obs.ObserveMaintenanceOperation(op.Kind, status)

	o.recorder.Record(ctx, audit.Entry{
		TenantID:   op.TargetTenantID,
		ActorID:    op.RequestedBy,
		Action:     "maintenance.restart." + status,
		EntityType: "maintenance_operation",
		Metadata: map[string]string{
			"operation_id": op.ID,
			"kind":         op.Kind,
		},
	})
}

// reportPersistFailure surfaces a store write failure on the background
// path. No caller is left to return the error to, and a stuck non-terminal
// row blocks future restarts of the same kind and target, so the log line
// and the audit trail are the only operator-visible trace.
func (o *Orchestrator) reportPersistFailure(ctx context.Context, op *Operation, msg string, err error) {
	obs.Event("error", msg, map[string]any{
		"operation_id": op.ID,
		"kind":         op.Kind,
		"error":        err.Error(),
	})
	o.recorder.Record(ctx, audit.Entry{
		TenantID:   op.TargetTenantID,
		ActorID:    op.RequestedBy,
		Action:     "maintenance.restart.persist_failed",
		EntityType: "maintenance_operation",
		Metadata: map[string]string{
			"operation_id": op.ID,
			"kind":         op.Kind,
			"error":        err.Error(),
		},
	})
}

func (o *Orchestrator) publish(op *Operation) {
	if o.events == nil {
		return
	}
	o.events.Publish(stream.OperationEvent{
		OperationID:    op.ID,
		Kind:           op.Kind,
		TargetTenantID: op.TargetTenantID,
		Status:         op.Status,
		At:             o.now().UTC(),
	})
}
