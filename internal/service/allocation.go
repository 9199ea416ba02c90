// internal/service/allocation.go
package service

import (
	"context"

	"orderpay/internal/domain"
	"orderpay/internal/gateway"
	"orderpay/internal/repository"
	"orderpay/internal/util"
)

// AllocationCalculator decides how much of an order's total each payment
// method must hold. Resolution is stateful: SADAD's share depends on the
// wallet hold already being resolved, and re-resolving a method compensates
// any intent it supersedes.
type AllocationCalculator struct {
	store   repository.SubtransactionStore
	oracle  gateway.BalanceOracle
	machine *SubtransactionStateMachine
}

// NewAllocationCalculator creates an AllocationCalculator.
func NewAllocationCalculator(store repository.SubtransactionStore, oracle gateway.BalanceOracle, machine *SubtransactionStateMachine) *AllocationCalculator {
	return &AllocationCalculator{store: store, oracle: oracle, machine: machine}
}

// ResolveAmount returns the amount the given method must hold for the order.
// resolved carries the subtransactions already settled earlier in the same
// createOrder pass, so later methods can see the wallet's share without a
// re-read. The result never exceeds the order total.
func (c *AllocationCalculator) ResolveAmount(
	ctx context.Context,
	in CreateOrderInput,
	pm domain.PaymentMethod,
	resolved map[domain.PaymentMethod]*domain.Subtransaction,
) (domain.Money, error) {
	prev, err := c.findByKey(ctx, domain.IdempotencyKey(in.OrderID, pm))
	if err != nil {
		return domain.Money{}, err
	}

	switch pm {
	case domain.PaymentMethodWallet:
		return c.resolveWallet(ctx, in, prev)
	case domain.PaymentMethodSadad:
		return c.resolveSadad(ctx, in, prev, resolved)
	case domain.PaymentMethodCash:
		// Cash is computed later as the completion remainder. Choosing cash
		// supersedes any pending 3P intent for the order.
		if err := c.machine.Cancel(ctx, in.OrderID, domain.PaymentMethodSadad, true); err != nil {
			return domain.Money{}, err
		}
		return domain.ZeroMoney(in.Total.Currency), nil
	default:
		return domain.ZeroMoney(in.Total.Currency), nil
	}
}

// resolveWallet allocates min(balance, total), or re-uses the amount a prior
// subtransaction already committed for this order.
func (c *AllocationCalculator) resolveWallet(ctx context.Context, in CreateOrderInput, prev *domain.Subtransaction) (domain.Money, error) {
	if prev != nil {
		return prev.Money(), nil
	}
	balance, err := c.oracle.FetchBalance(ctx, in.RetailerID, in.Total.Currency)
	if err != nil {
		return domain.Money{}, err
	}
	if balance.IsNegative() {
		return domain.ZeroMoney(in.Total.Currency), nil
	}
	return domain.MinMoney(balance, in.Total), nil
}

// resolveSadad allocates whatever the wallet hold leaves uncovered. A prior
// SADAD intent is cancelled first so the order re-enters a clean processing
// state, and a pure SADAD request on top of an existing wallet hold is
// rejected outright.
func (c *AllocationCalculator) resolveSadad(
	ctx context.Context,
	in CreateOrderInput,
	prev *domain.Subtransaction,
	resolved map[domain.PaymentMethod]*domain.Subtransaction,
) (domain.Money, error) {
	if prev != nil {
		if err := c.machine.Cancel(ctx, in.OrderID, domain.PaymentMethodSadad, true); err != nil {
			return domain.Money{}, err
		}
	}
	if in.Total.Currency != domain.CurrencySAR {
		return domain.Money{}, util.ErrCurrencyInvalid
	}

	wallet := resolved[domain.PaymentMethodWallet]
	if wallet == nil {
		var err error
		wallet, err = c.findByKey(ctx, domain.IdempotencyKey(in.OrderID, domain.PaymentMethodWallet))
		if err != nil {
			return domain.Money{}, err
		}
	}
	if wallet != nil {
		if in.OrderPaymentMethod == domain.OrderPaymentSadad {
			return domain.Money{}, util.ErrWalletExists
		}
		if wallet.Currency != domain.CurrencySAR {
			return domain.Money{}, util.ErrCurrencyInvalid
		}
		return in.Total.Subtract(wallet.Money()), nil
	}
	return in.Total, nil
}

// findByKey looks up a subtransaction, mapping a miss to nil: no prior
// subtransaction is a legitimate state, not an error.
func (c *AllocationCalculator) findByKey(ctx context.Context, key string) (*domain.Subtransaction, error) {
	sub, err := c.store.FindByIdempKey(ctx, key)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}
