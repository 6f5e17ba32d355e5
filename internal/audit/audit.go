package audit

import (
	"context"
	"time"
)

// Entry is an append-only record of a privileged administrative action.
// Entries referencing an actor keep that actor's id even after the account
// is disabled.
type Entry struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id,omitempty"`
	ActorID    string            `json:"actor_id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store persists audit entries. Query supports a free-text action filter;
// Purge is the deliberate administrative bulk delete, scoped to one tenant.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, tenantID, filter string, limit int) ([]Entry, error)
	Purge(ctx context.Context, tenantID, filter string) (int64, error)
}
