package audit

import (
	"context"
	"time"

	"parishdesk.org/internal/ids"
	"parishdesk.org/internal/obs"
)

// Recorder writes audit entries without ever failing the triggering action.
// A failed append is surfaced out-of-band as a structured log line for
// operators; the administrative action itself proceeds.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wraps a store. A nil store records to the log only.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// WithClock overrides the time source (useful for tests).
func (r *Recorder) WithClock(fn func() time.Time) *Recorder {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Record appends the entry and emits the out-of-band JSON trail line.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	LogEvent(ctx, entry)

	if r.store == nil {
		return
	}
	if err := r.store.Append(ctx, &entry); err != nil {
		obs.Event("error", "audit_append_failed", map[string]any{
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}

// Query reads back entries for a tenant with an optional action filter.
func (r *Recorder) Query(ctx context.Context, tenantID, filter string, limit int) ([]Entry, error) {
	if r.store == nil {
		return nil, nil
	}
	return r.store.Query(ctx, tenantID, filter, limit)
}

// Purge removes entries for a tenant and returns the count for operator
// confirmation.
func (r *Recorder) Purge(ctx context.Context, tenantID, filter string) (int64, error) {
	if r.store == nil {
		return 0, nil
	}
	return r.store.Purge(ctx, tenantID, filter)
}
