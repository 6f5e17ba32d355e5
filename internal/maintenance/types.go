package maintenance

import "time"

// Operation kinds.
const (
	KindFullRestart   = "full_restart"
	KindTenantRestart = "tenant_restart"
)

// Operation statuses. Transitions are monotonic:
// pending -> running -> completed | failed.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Operation is a tracked asynchronous administrative action. Once terminal
// it is immutable; repeated status reads return the same record.
type Operation struct {
	ID             string     `json:"operation_id"`
	Kind           string     `json:"kind"`
	TargetTenantID string     `json:"target_tenant_id,omitempty"`
	Status         string     `json:"status"`
	RequestedBy    string     `json:"requested_by"`
	RequestedAt    time.Time  `json:"requested_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Terminal reports whether the operation has reached a final status.
func (o Operation) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// ValidKind reports whether the kind is one the orchestrator accepts.
func ValidKind(kind string) bool {
	return kind == KindFullRestart || kind == KindTenantRestart
}
