// internal/service/statemachine.go
package service

import (
	"context"
	"fmt"
	"log/slog"

	"orderpay/internal/domain"
	"orderpay/internal/gateway"
	"orderpay/internal/repository"
	"orderpay/internal/util"
)

// SubtransactionStateMachine owns the legality of subtransaction transitions
// and the side effects each transition performs. Every multi-step transition
// commits its intermediate "_PROCESSING" store write before calling the
// gateway, so a crash between the two is recoverable by re-entering the same
// transition: each case below is an independently resumable continuation.
type SubtransactionStateMachine struct {
	store    repository.SubtransactionStore
	payments gateway.PaymentGateway
	logger   *slog.Logger
}

// NewSubtransactionStateMachine creates a state machine over the given store
// and payment gateway.
func NewSubtransactionStateMachine(store repository.SubtransactionStore, payments gateway.PaymentGateway, logger *slog.Logger) *SubtransactionStateMachine {
	return &SubtransactionStateMachine{store: store, payments: payments, logger: logger}
}

// Hold confirms a pending hold with the payment gateway. A zero or negative
// amount is a no-op success and never reaches the gateway. Instant methods
// land in HOLD; third-party methods land in AWAITING_PAYMENT until the
// processor confirms. A third-party hold that fails on the inter-service leg
// is driven straight to its rolled-back intent terminal so no dangling record
// survives a known 3P failure.
func (m *SubtransactionStateMachine) Hold(ctx context.Context, sub *domain.Subtransaction, account string, txType domain.TransactionType) (*domain.Subtransaction, error) {
	if sub.Amount <= 0 {
		return sub, nil
	}
	if err := m.payments.Hold(ctx, sub.ID, account, sub.Money(), sub.PaymentMethod, txType); err != nil {
		if sub.PaymentMethod.Is3P() && util.IsInterserviceError(err) {
			if _, cancelErr := m.store.Rollback(ctx, sub.ID); cancelErr != nil {
				m.logger.Error("Failed to cancel intent after 3P hold failure",
					"subtransaction_id", sub.ID, "error", cancelErr)
			}
		}
		return nil, err
	}
	next := domain.StateAwaitingPayment
	if sub.PaymentMethod.IsInstant() {
		next = domain.StateHold
	}
	return m.store.SetState(ctx, sub.ID, next, sub.Version)
}

// Complete settles a held subtransaction. When topupWallet is set the
// gateway releases the hold back to the wallet instead of charging it (the
// wallet over-held relative to the final total). Completing an already
// completed subtransaction is a no-op.
func (m *SubtransactionStateMachine) Complete(ctx context.Context, sub *domain.Subtransaction, topupWallet bool) error {
	switch sub.State {
	case domain.StateHold:
		updated, err := m.store.SetState(ctx, sub.ID, domain.StateCompleteProcessing, sub.Version)
		if err != nil {
			return err
		}
		return m.finishComplete(ctx, updated, topupWallet)
	case domain.StateCompleteProcessing:
		return m.finishComplete(ctx, sub, topupWallet)
	case domain.StateCompleted:
		return nil
	default:
		return &util.StateConflictError{State: string(sub.State)}
	}
}

func (m *SubtransactionStateMachine) finishComplete(ctx context.Context, sub *domain.Subtransaction, topupWallet bool) error {
	var err error
	if topupWallet {
		err = m.payments.Release(ctx, sub.ID)
	} else {
		err = m.payments.Charge(ctx, sub.ID)
	}
	if err != nil {
		return err
	}
	_, err = m.store.SetState(ctx, sub.ID, domain.StateCompleted, sub.Version)
	return err
}

// Cancel withdraws the hold for an (order, method) pair. toEndState sends the
// record to its rolled-back intent terminal, releasing the idempotency key;
// otherwise it stays a permanent CANCELLED marker. A missing record or an
// already cancelled one is a success. A third-party subtransaction still in
// HOLD_PROCESSING never reached the processor, so it is retired without a
// gateway call.
func (m *SubtransactionStateMachine) Cancel(ctx context.Context, orderID string, pm domain.PaymentMethod, toEndState bool) error {
	sub, err := m.store.FindByIdempKey(ctx, domain.IdempotencyKey(orderID, pm))
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil
		}
		return err
	}

	switch sub.State {
	case domain.StateHold, domain.StateAwaitingPayment:
		updated, err := m.store.SetState(ctx, sub.ID, domain.StateCancelProcessing, sub.Version)
		if err != nil {
			return err
		}
		return m.finishCancel(ctx, updated, toEndState)
	case domain.StateCancelProcessing:
		return m.finishCancel(ctx, sub, toEndState)
	case domain.StateHoldProcessing:
		if pm.Is3P() {
			// Nothing was ever held downstream; retire the intent directly.
			_, err := m.store.Rollback(ctx, sub.ID)
			return err
		}
		return &util.StateConflictError{State: string(sub.State)}
	case domain.StateCancelled:
		return nil
	default:
		return &util.StateConflictError{State: string(sub.State)}
	}
}

func (m *SubtransactionStateMachine) finishCancel(ctx context.Context, sub *domain.Subtransaction, toEndState bool) error {
	if err := m.payments.Cancel(ctx, sub.ID); err != nil {
		return err
	}
	if toEndState {
		_, err := m.store.Rollback(ctx, sub.ID)
		return err
	}
	_, err := m.store.SetState(ctx, sub.ID, domain.StateCancelled, sub.Version)
	return err
}

// Rollback reverses a settled or cancelled subtransaction, passing an
// optional adjustment so the gateway does not double-refund amounts already
// released elsewhere. A nil subtransaction is a no-op; an already rolled-back
// one returns the stored record without consulting the gateway. It reports
// whether the gateway released held funds.
func (m *SubtransactionStateMachine) Rollback(ctx context.Context, sub *domain.Subtransaction, adjustment *domain.Money) (*domain.Subtransaction, bool, error) {
	if sub == nil {
		return nil, false, nil
	}
	switch sub.State {
	case domain.StateCompleted, domain.StateCancelled:
		updated, err := m.store.SetState(ctx, sub.ID, domain.StateRollbackProcessing, sub.Version)
		if err != nil {
			return nil, false, err
		}
		return m.finishRollback(ctx, updated, adjustment)
	case domain.StateRollbackProcessing:
		return m.finishRollback(ctx, sub, adjustment)
	case domain.StateRollbacked:
		return sub, false, nil
	default:
		return nil, false, &util.StateConflictError{State: string(sub.State)}
	}
}

func (m *SubtransactionStateMachine) finishRollback(ctx context.Context, sub *domain.Subtransaction, adjustment *domain.Money) (*domain.Subtransaction, bool, error) {
	adj := domain.ZeroMoney(sub.Currency)
	if adjustment != nil {
		adj = *adjustment
	}
	result, err := m.payments.Rollback(ctx, sub.ID, adj)
	if err != nil {
		return nil, false, err
	}
	rolled, err := m.store.Rollback(ctx, sub.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to finalize rollback of %s: %w", sub.ID, err)
	}
	return rolled, result.Released, nil
}

// ConfirmHold records an asynchronous hold confirmation from the payment
// processor. Only subtransactions still awaiting confirmation are promoted;
// anything else reports the notification as ignored.
func (m *SubtransactionStateMachine) ConfirmHold(ctx context.Context, id string) (bool, error) {
	sub, err := m.store.FindByID(ctx, id)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	switch sub.State {
	case domain.StateAwaitingPayment, domain.StateHoldProcessing:
		if _, err := m.store.SetState(ctx, sub.ID, domain.StateHold, sub.Version); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}
