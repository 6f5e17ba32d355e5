package maintenance

import (
	"context"
	"time"
)

// Store persists maintenance operations.
//
// Create must be atomic with respect to the serialization invariant: at most
// one non-terminal operation may exist per (kind, target) pair, enforced by
// the store itself since concurrent operator sessions may race. A violating
// create fails with ErrOperationInProgress.
type Store interface {
	Create(ctx context.Context, op *Operation) error
	MarkRunning(ctx context.Context, id string) error
	MarkTerminal(ctx context.Context, id, status, errMsg string, at time.Time) error
	Find(ctx context.Context, id string) (*Operation, error)
	Recent(ctx context.Context, limit int) ([]Operation, error)
}
