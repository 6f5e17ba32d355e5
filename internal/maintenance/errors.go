package maintenance

import "errors"

var (
	// ErrOperationInProgress rejects a duplicate request while a
	// non-terminal operation for the same kind and target exists.
	ErrOperationInProgress = errors.New("maintenance: operation already in progress")

	// ErrMaintenanceDisabled rejects whole-server restarts when the
	// deployment-level switch is off.
	ErrMaintenanceDisabled = errors.New("maintenance: full restart is disabled in this deployment")

	ErrUnknownTenant = errors.New("maintenance: unknown tenant")
	ErrNotFound      = errors.New("maintenance: operation not found")
	ErrInvalidKind   = errors.New("maintenance: invalid operation kind")
)
