// internal/repository/postgres/subtransaction_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orderpay/internal/domain"
	"orderpay/internal/repository"
	"orderpay/internal/util"
	"orderpay/pkg/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const subtransactionColumns = `id, order_id, idemp_key, amount, currency, payment_method, state, version, created_at, updated_at`

// uniqueViolation is the PostgreSQL error code for unique-constraint failures.
const uniqueViolation = "23505"

// SubtransactionStore implements repository.SubtransactionStore for PostgreSQL.
type SubtransactionStore struct {
	db *sqlx.DB
}

// NewSubtransactionStore creates a new SubtransactionStore.
func NewSubtransactionStore(database *sqlx.DB) repository.SubtransactionStore {
	return &SubtransactionStore{db: database}
}

// Create inserts a new subtransaction row. A duplicate idempotency key is
// reported as util.ErrDuplicateEntry.
func (s *SubtransactionStore) Create(ctx context.Context, sub *domain.Subtransaction) error {
	query := `INSERT INTO subtransactions (id, order_id, idemp_key, amount, currency, payment_method, state, version, created_at, updated_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.OrderID, sub.IdempKey, sub.Amount, sub.Currency,
		sub.PaymentMethod, sub.State, sub.Version, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("subtransaction with key %s: %w", sub.IdempKey, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create subtransaction: %w", err)
	}
	return nil
}

// FindByIdempKey retrieves a subtransaction by its idempotency key.
func (s *SubtransactionStore) FindByIdempKey(ctx context.Context, idempKey string) (*domain.Subtransaction, error) {
	return s.findOne(ctx, s.db, "idemp_key", idempKey)
}

// FindByID retrieves a subtransaction by id.
func (s *SubtransactionStore) FindByID(ctx context.Context, id string) (*domain.Subtransaction, error) {
	return s.findOne(ctx, s.db, "id", id)
}

func (s *SubtransactionStore) findOne(ctx context.Context, q repository.DBExecutor, column, value string) (*domain.Subtransaction, error) {
	var sub domain.Subtransaction
	query := fmt.Sprintf(`SELECT %s FROM subtransactions WHERE %s = $1`, subtransactionColumns, column)
	err := q.GetContext(ctx, &sub, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subtransaction by %s %s: %w", column, value, err)
	}
	return &sub, nil
}

// FindAllByOrderID retrieves every subtransaction recorded for an order.
func (s *SubtransactionStore) FindAllByOrderID(ctx context.Context, orderID string) ([]domain.Subtransaction, error) {
	var subs []domain.Subtransaction
	query := fmt.Sprintf(`SELECT %s FROM subtransactions WHERE order_id = $1 ORDER BY created_at`, subtransactionColumns)
	if err := s.db.SelectContext(ctx, &subs, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list subtransactions for order %s: %w", orderID, err)
	}
	return subs, nil
}

// SetState applies a state transition with optimistic-concurrency protection.
// The write only lands when the stored version still equals fromVersion.
func (s *SubtransactionStore) SetState(ctx context.Context, id string, state domain.SubtransactionState, fromVersion int64) (*domain.Subtransaction, error) {
	var sub domain.Subtransaction
	query := fmt.Sprintf(`UPDATE subtransactions
              SET state = $1, version = version + 1, updated_at = $2
              WHERE id = $3 AND version = $4
              RETURNING %s`, subtransactionColumns)
	err := s.db.GetContext(ctx, &sub, query, state, time.Now().UTC(), id, fromVersion)
	if err == nil {
		return &sub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to set state %s on subtransaction %s: %w", state, id, err)
	}
	// Either the row is gone or a concurrent transition won the race.
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("subtransaction %s: %w", id, util.ErrVersionConflict)
}

// SetStates bulk-moves subtransactions to state and reports whether every row
// was affected.
func (s *SubtransactionStore) SetStates(ctx context.Context, ids []string, state domain.SubtransactionState) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	query := `UPDATE subtransactions SET state = $1, version = version + 1, updated_at = $2 WHERE id = ANY($3)`
	result, err := s.db.ExecContext(ctx, query, state, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return false, fmt.Errorf("failed to bulk set state %s: %w", state, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == int64(len(ids)), nil
}

// Rollback marks the subtransaction rolled back and suffixes its idempotency
// key with the row id, releasing the (order, method) slot for a fresh
// subtransaction. Read and write happen in one database transaction.
func (s *SubtransactionStore) Rollback(ctx context.Context, id string) (*domain.Subtransaction, error) {
	txc, err := db.BeginTx(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("rollback: failed to begin transaction: %w", err)
	}
	defer db.RollbackTx(txc)

	tx, ok := txc.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("rollback: transaction controller does not implement DBExecutor")
	}

	current, err := s.findOne(ctx, tx, "id", id)
	if err != nil {
		return nil, err
	}

	var sub domain.Subtransaction
	query := fmt.Sprintf(`UPDATE subtransactions
              SET state = $1, idemp_key = $2, version = version + 1, updated_at = $3
              WHERE id = $4
              RETURNING %s`, subtransactionColumns)
	releasedKey := current.IdempKey + "_" + id
	err = tx.GetContext(ctx, &sub, query, domain.StateRollbacked, releasedKey, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to roll back subtransaction %s: %w", id, err)
	}

	if err := db.CommitTx(txc); err != nil {
		return nil, fmt.Errorf("rollback: failed to commit transaction: %w", err)
	}
	return &sub, nil
}
