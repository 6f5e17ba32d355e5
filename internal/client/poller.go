package client

import (
	"context"
	"time"

	"parishdesk.org/internal/maintenance"
)

// PollOperation polls the restart status endpoint at the given interval
// until the operation reaches a terminal state. Cancelling the context only
// tears down this subscription; the server-side operation keeps running.
// Polling is advisory: any point of the pending/running/terminal sequence
// may be observed, none may be assumed missed.
func (g *Guard) PollOperation(ctx context.Context, operationID string, interval time.Duration) (*maintenance.Operation, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var op maintenance.Operation
		if err := g.GetJSON(ctx, "/provider/maintenance/restart/status/"+operationID, &op); err != nil {
			return nil, err
		}
		if op.Terminal() {
			return &op, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
