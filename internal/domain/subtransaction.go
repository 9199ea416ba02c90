// internal/domain/subtransaction.go
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod is a single settlement method for one leg of an order.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodSadad  PaymentMethod = "SADAD"
)

// IsInstant reports whether holds against this method confirm synchronously.
func (pm PaymentMethod) IsInstant() bool {
	switch pm {
	case PaymentMethodCash, PaymentMethodWallet:
		return true
	default:
		return false
	}
}

// Is3P reports whether the method requires asynchronous third-party
// confirmation before funds count as held.
func (pm PaymentMethod) Is3P() bool {
	return !pm.IsInstant()
}

// OrderPaymentMethod is the combination a customer requested for the order.
type OrderPaymentMethod string

const (
	OrderPaymentCOD         OrderPaymentMethod = "COD"
	OrderPaymentCODWallet   OrderPaymentMethod = "COD_WALLET"
	OrderPaymentSadad       OrderPaymentMethod = "SADAD"
	OrderPaymentSadadWallet OrderPaymentMethod = "SADAD_WALLET"
)

// Methods decomposes the combination into the per-method resolution order.
// WALLET resolves before SADAD and CASH because their allocations depend on
// the wallet hold already being known.
func (opm OrderPaymentMethod) Methods() []PaymentMethod {
	parts := strings.Split(string(opm), "_")
	methods := make([]PaymentMethod, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "COD" {
			methods = append(methods, PaymentMethodCash)
			continue
		}
		methods = append(methods, PaymentMethod(parts[i]))
	}
	return methods
}

// TransactionType distinguishes payment collection from refunds downstream.
type TransactionType string

const (
	TransactionTypeOrderPayment TransactionType = "ORDER_PAYMENT"
	TransactionTypeOrderRefund  TransactionType = "ORDER_REFUND"
)

// SubtransactionState is the lifecycle state of one subtransaction.
type SubtransactionState string

const (
	StateHoldProcessing     SubtransactionState = "HOLD_PROCESSING"
	StateAwaitingPayment    SubtransactionState = "AWAITING_PAYMENT"
	StateHold               SubtransactionState = "HOLD"
	StateCompleteProcessing SubtransactionState = "COMPLETE_PROCESSING"
	StateCompleted          SubtransactionState = "COMPLETED"
	StateCancelProcessing   SubtransactionState = "CANCEL_PROCESSING"
	StateCancelled          SubtransactionState = "CANCELLED"
	StateRollbackProcessing SubtransactionState = "ROLLBACK_PROCESSING"
	StateRollbacked         SubtransactionState = "ROLLBACKED"
)

// IsActive reports whether the subtransaction still counts toward the order's
// payment breakdown. The saga and the read-side projections share this filter.
func (s SubtransactionState) IsActive() bool {
	switch s {
	case StateHold, StateAwaitingPayment, StateCompleted, StateCompleteProcessing:
		return true
	default:
		return false
	}
}

// Subtransaction tracks one payment method's hold/charge/refund for one order.
// State is mutated only through the state machine's transition operations.
type Subtransaction struct {
	ID            string              `db:"id" json:"id"`
	OrderID       string              `db:"order_id" json:"order_id"`
	IdempKey      string              `db:"idemp_key" json:"idemp_key"`
	Amount        int64               `db:"amount" json:"amount"` // minor units
	Currency      CurrencyCode        `db:"currency" json:"currency"`
	PaymentMethod PaymentMethod       `db:"payment_method" json:"payment_method"`
	State         SubtransactionState `db:"state" json:"state"`
	Version       int64               `db:"version" json:"version"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// NewSubtransaction creates a subtransaction in its initial state.
func NewSubtransaction(orderID string, amount Money, pm PaymentMethod) *Subtransaction {
	now := time.Now().UTC()
	return &Subtransaction{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		IdempKey:      IdempotencyKey(orderID, pm),
		Amount:        amount.Amount,
		Currency:      amount.Currency,
		PaymentMethod: pm,
		State:         StateHoldProcessing,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IdempotencyKey derives the deduplication key for an (order, method) pair.
// The key stays stable across retries and is released only by rollback.
func IdempotencyKey(orderID string, pm PaymentMethod) string {
	return orderID + "_" + string(pm)
}

// Money returns the subtransaction's amount as a Money value.
func (s *Subtransaction) Money() Money {
	return Money{Amount: s.Amount, Currency: s.Currency}
}
