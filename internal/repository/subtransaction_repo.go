// internal/repository/subtransaction_repo.go
package repository

import (
	"context"

	"orderpay/internal/domain"
)

// SubtransactionStore defines the durable, idempotency-key-addressed storage
// for subtransactions. Implementations must enforce uniqueness on the
// idempotency key and apply state writes atomically with a version bump.
type SubtransactionStore interface {
	// Create inserts a new subtransaction. A unique-constraint violation on
	// the idempotency key is reported as util.ErrDuplicateEntry so callers can
	// re-read and continue.
	Create(ctx context.Context, sub *domain.Subtransaction) error
	// FindByIdempKey retrieves a subtransaction by its idempotency key, or
	// util.ErrNotFound when none exists.
	FindByIdempKey(ctx context.Context, idempKey string) (*domain.Subtransaction, error)
	// FindByID retrieves a subtransaction by id, or util.ErrNotFound.
	FindByID(ctx context.Context, id string) (*domain.Subtransaction, error)
	// FindAllByOrderID retrieves every subtransaction recorded for an order.
	FindAllByOrderID(ctx context.Context, orderID string) ([]domain.Subtransaction, error)
	// SetState moves the subtransaction to state, bumping its version. The
	// write only applies when the stored version still equals fromVersion;
	// a lost race is reported as util.ErrVersionConflict.
	SetState(ctx context.Context, id string, state domain.SubtransactionState, fromVersion int64) (*domain.Subtransaction, error)
	// SetStates bulk-moves the given subtransactions to state and reports
	// whether every row was affected.
	SetStates(ctx context.Context, ids []string, state domain.SubtransactionState) (bool, error)
	// Rollback marks the subtransaction rolled back and mutates its
	// idempotency key, releasing the (order, method) slot for reuse.
	Rollback(ctx context.Context, id string) (*domain.Subtransaction, error)
}
