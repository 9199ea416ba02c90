// internal/service/orchestrator.go
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"orderpay/internal/domain"
	"orderpay/internal/gateway"
	"orderpay/internal/repository"
	"orderpay/internal/util"
)

// CreateOrderInput is the request to open payment collection for an order.
type CreateOrderInput struct {
	OrderID            string
	RetailerID         string
	OrderPaymentMethod domain.OrderPaymentMethod
	Total              domain.Money
	TransactionType    domain.TransactionType
}

// CompleteOrderInput is the request to settle an order at its final total.
type CompleteOrderInput struct {
	OrderID         string
	RetailerID      string
	Total           domain.Money
	TransactionType domain.TransactionType
}

// OrderTotal pairs an order with its total for batch read operations.
type OrderTotal struct {
	OrderID string
	Total   domain.Money
}

// LegBreakdown is the read-side view of one payment method's share.
type LegBreakdown struct {
	Total         domain.Money               `json:"total"`
	State         domain.SubtransactionState `json:"state"`
	PaymentMethod domain.PaymentMethod       `json:"paymentMethod"`
	ID            string                     `json:"id,omitempty"`
	CreatedAt     *time.Time                 `json:"createdAt,omitempty"`
	Is3P          bool                       `json:"is3P"`
	Code          string                     `json:"code,omitempty"`
}

// OrderSummary names the order a breakdown belongs to.
type OrderSummary struct {
	OrderID       string                    `json:"orderId"`
	Total         domain.Money              `json:"total"`
	PaymentMethod domain.OrderPaymentMethod `json:"paymentMethod"`
}

// OrderBreakdown is the per-method payment breakdown for one order.
type OrderBreakdown struct {
	Order     OrderSummary                          `json:"order"`
	Breakdown map[domain.PaymentMethod]LegBreakdown `json:"breakdown"`
}

// BatchAmounts is the condensed per-order view used by batch reads.
type BatchAmounts struct {
	CashAmount   domain.Money `json:"cashAmount"`
	WalletAmount domain.Money `json:"walletAmount"`
	SadadAmount  domain.Money `json:"sadadAmount"`
}

// CashDue reports how an order's total splits between wallet and cash.
type CashDue struct {
	WalletAmount domain.Money `json:"walletAmount"`
	CashAmount   domain.Money `json:"cashAmount"`
}

// ProspectiveBreakdownInput asks how a not-yet-created order would split.
type ProspectiveBreakdownInput struct {
	RetailerID    string
	PaymentMethod domain.OrderPaymentMethod
	Currency      domain.CurrencyCode
	Payload       json.RawMessage
}

// ProspectiveBreakdown is the projected split for a prospective order.
type ProspectiveBreakdown struct {
	OrderTotal   domain.Money `json:"orderTotal"`
	WalletAmount domain.Money `json:"walletAmount"`
	FinalAmount  domain.Money `json:"finalAmount"`
}

// TransactionService is the orchestrator's public surface.
type TransactionService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderBreakdown, error)
	CompleteOrder(ctx context.Context, in CompleteOrderInput) (*OrderBreakdown, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	RollbackOrder(ctx context.Context, orderID, retailerID string) (bool, error)
	OrderBreakdown(ctx context.Context, orderID string, total domain.Money) (*OrderBreakdown, error)
	BatchBreakdown(ctx context.Context, batch []OrderTotal) (map[string]BatchAmounts, error)
	CashDue(ctx context.Context, orderID string, total domain.Money) (CashDue, error)
	BatchCashDue(ctx context.Context, batch []OrderTotal) (map[string]CashDue, error)
	ProspectiveBreakdown(ctx context.Context, in ProspectiveBreakdownInput) (*ProspectiveBreakdown, error)
	PaymentNotification(ctx context.Context, subtransactionID string) (bool, error)
}

// transactionOrchestrator drives the per-order saga across the WALLET, CASH
// and SADAD subtransactions.
type transactionOrchestrator struct {
	store    repository.SubtransactionStore
	payments gateway.PaymentGateway
	oracle   gateway.BalanceOracle
	cart     gateway.CartClient
	delivery gateway.DeliveryCodeService
	notifier gateway.Notifier
	alloc    *AllocationCalculator
	machine  *SubtransactionStateMachine
	logger   *slog.Logger
}

// NewTransactionOrchestrator creates the orchestrator.
func NewTransactionOrchestrator(
	store repository.SubtransactionStore,
	payments gateway.PaymentGateway,
	oracle gateway.BalanceOracle,
	cart gateway.CartClient,
	delivery gateway.DeliveryCodeService,
	notifier gateway.Notifier,
	alloc *AllocationCalculator,
	machine *SubtransactionStateMachine,
	logger *slog.Logger,
) TransactionService {
	return &transactionOrchestrator{
		store:    store,
		payments: payments,
		oracle:   oracle,
		cart:     cart,
		delivery: delivery,
		notifier: notifier,
		alloc:    alloc,
		machine:  machine,
		logger:   logger,
	}
}

// CreateOrder resolves each requested method's allocation, creates or re-uses
// its subtransaction and drives it through hold. Methods resolve strictly in
// sequence because SADAD's allocation depends on the wallet share. Re-invoking
// with identical input re-uses the existing subtransactions and returns the
// same breakdown. The delivery-code side channel runs detached and never
// fails the saga.
func (o *transactionOrchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderBreakdown, error) {
	if in.TransactionType == "" {
		in.TransactionType = domain.TransactionTypeOrderPayment
	}

	resolved := make(map[domain.PaymentMethod]*domain.Subtransaction)
	for _, pm := range in.OrderPaymentMethod.Methods() {
		amount, err := o.alloc.ResolveAmount(ctx, in, pm, resolved)
		if err != nil {
			return nil, err
		}
		sub, err := o.ensureSubtransaction(ctx, in, pm, amount)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			resolved[pm] = sub
		}
	}

	go o.notifyDeliveryCode(context.WithoutCancel(ctx), in.OrderID, in.RetailerID)

	return o.OrderBreakdown(ctx, in.OrderID, in.Total)
}

// ensureSubtransaction creates the subtransaction for one method if it does
// not exist and drives it through hold. Zero and negative allocations create
// nothing. An existing subtransaction is resumed from wherever it stands;
// one past the hold phase is a conflict.
func (o *transactionOrchestrator) ensureSubtransaction(ctx context.Context, in CreateOrderInput, pm domain.PaymentMethod, amount domain.Money) (*domain.Subtransaction, error) {
	sub, err := o.findOptional(ctx, domain.IdempotencyKey(in.OrderID, pm))
	if err != nil {
		return nil, err
	}
	if sub == nil {
		if amount.IsZeroOrNegative() {
			return nil, nil
		}
		sub, err = o.putInDB(ctx, in.OrderID, amount, pm)
		if err != nil {
			return nil, err
		}
	}

	switch sub.State {
	case domain.StateHoldProcessing:
		return o.machine.Hold(ctx, sub, in.RetailerID, in.TransactionType)
	case domain.StateHold, domain.StateAwaitingPayment:
		return sub, nil
	default:
		return nil, &util.StateConflictError{State: string(sub.State)}
	}
}

// putInDB persists a fresh subtransaction. A uniqueness violation means a
// concurrent request created it first; re-read and continue with that row.
func (o *transactionOrchestrator) putInDB(ctx context.Context, orderID string, amount domain.Money, pm domain.PaymentMethod) (*domain.Subtransaction, error) {
	sub := domain.NewSubtransaction(orderID, amount, pm)
	if err := o.store.Create(ctx, sub); err != nil {
		if util.IsError(err, util.ErrDuplicateEntry) {
			return o.store.FindByIdempKey(ctx, sub.IdempKey)
		}
		return nil, err
	}
	return sub, nil
}

// CompleteOrder settles the order at its final total. The wallet hold is
// reconciled first; a SADAD leg must account for the remainder within the
// settlement tolerance before any gateway call happens. Whatever WALLET does
// not cover becomes a CASH leg, and a negative remainder means the wallet
// over-held and gets topped back up through the cash completion.
func (o *transactionOrchestrator) CompleteOrder(ctx context.Context, in CompleteOrderInput) (*OrderBreakdown, error) {
	if in.TransactionType == "" {
		in.TransactionType = domain.TransactionTypeOrderPayment
	}

	wallet, err := o.findOptional(ctx, domain.IdempotencyKey(in.OrderID, domain.PaymentMethodWallet))
	if err != nil {
		return nil, err
	}
	if wallet != nil && wallet.State == domain.StateCancelled {
		return nil, util.ErrOrderCancelled
	}

	currentHolding := domain.ZeroMoney(in.Total.Currency)
	if wallet != nil {
		currentHolding = wallet.Money()
	}
	remaining := in.Total.Subtract(currentHolding)

	legs, err := o.activeSubtransactions(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	if sadad, ok := legs[domain.PaymentMethodSadad]; ok {
		remaining = remaining.Subtract(sadad.sub.Money())
		if !remaining.IsAlmostZero() {
			return nil, &util.ReconciliationError{Remaining: remaining.Amount, Currency: string(remaining.Currency)}
		}
		if err := o.machine.Complete(ctx, sadad.sub, false); err != nil {
			return nil, err
		}
		remaining = domain.ZeroMoney(remaining.Currency)
	}

	cash, err := o.findOptional(ctx, domain.IdempotencyKey(in.OrderID, domain.PaymentMethodCash))
	if err != nil {
		return nil, err
	}
	if cash == nil && !remaining.IsZero() {
		cash, err = o.putInDB(ctx, in.OrderID, remaining.Abs(), domain.PaymentMethodCash)
		if err != nil {
			return nil, err
		}
	}
	if cash != nil && cash.State == domain.StateHoldProcessing {
		cash, err = o.machine.Hold(ctx, cash, in.RetailerID, in.TransactionType)
		if err != nil {
			return nil, err
		}
	}

	if wallet != nil {
		if err := o.machine.Complete(ctx, wallet, false); err != nil {
			return nil, err
		}
	}
	if cash != nil {
		if err := o.machine.Complete(ctx, cash, remaining.IsNegative()); err != nil {
			return nil, err
		}
	}

	return o.OrderBreakdown(ctx, in.OrderID, in.Total)
}

// CancelOrder withdraws the order's SADAD and WALLET holds. CASH carries no
// persistent hold and is never cancelled independently.
func (o *transactionOrchestrator) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := o.machine.Cancel(ctx, orderID, domain.PaymentMethodSadad, false); err != nil {
		return false, err
	}
	if err := o.machine.Cancel(ctx, orderID, domain.PaymentMethodWallet, false); err != nil {
		return false, err
	}
	return true, nil
}

// RollbackOrder reverses the order's legs in SADAD, CASH, WALLET sequence.
// When cash was released and a wallet leg exists, the wallet rollback carries
// a walletAmount-cashAmount adjustment so the refund is not doubled. Any
// positive refunded WALLET+SADAD residual immediately re-opens collection as
// a fresh COD_WALLET order.
func (o *transactionOrchestrator) RollbackOrder(ctx context.Context, orderID, retailerID string) (bool, error) {
	sadad, err := o.findOptional(ctx, domain.IdempotencyKey(orderID, domain.PaymentMethodSadad))
	if err != nil {
		return false, err
	}
	if _, _, err := o.machine.Rollback(ctx, sadad, nil); err != nil {
		return false, err
	}

	cash, err := o.findOptional(ctx, domain.IdempotencyKey(orderID, domain.PaymentMethodCash))
	if err != nil {
		return false, err
	}
	_, cashReleased, err := o.machine.Rollback(ctx, cash, nil)
	if err != nil {
		return false, err
	}

	wallet, err := o.findOptional(ctx, domain.IdempotencyKey(orderID, domain.PaymentMethodWallet))
	if err != nil {
		return false, err
	}

	var adjustment *domain.Money
	if cash != nil && cashReleased && wallet != nil {
		adj := wallet.Money().Subtract(cash.Money())
		adjustment = &adj
	}
	if _, _, err := o.machine.Rollback(ctx, wallet, adjustment); err != nil {
		return false, err
	}

	currency := domain.CurrencyPKR
	switch {
	case cash != nil:
		currency = cash.Currency
	case wallet != nil:
		currency = wallet.Currency
	case sadad != nil:
		currency = sadad.Currency
	}

	residual := domain.ZeroMoney(currency)
	if wallet != nil {
		residual = residual.Add(wallet.Money())
	}
	if sadad != nil {
		residual = residual.Add(sadad.Money())
	}
	if residual.IsPositive() {
		if _, err := o.CreateOrder(ctx, CreateOrderInput{
			OrderID:            orderID,
			RetailerID:         retailerID,
			OrderPaymentMethod: domain.OrderPaymentCODWallet,
			Total:              residual,
			TransactionType:    domain.TransactionTypeOrderPayment,
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// orderLeg pairs a stored subtransaction with its 3P reference code, when the
// processor reported one.
type orderLeg struct {
	sub  *domain.Subtransaction
	code string
}

// activeSubtransactions returns the order's still-active legs keyed by
// payment method. A SADAD leg awaiting confirmation pulls the processor's
// status on demand; a completed intent promotes the leg to HOLD.
func (o *transactionOrchestrator) activeSubtransactions(ctx context.Context, orderID string) (map[domain.PaymentMethod]*orderLeg, error) {
	subs, err := o.store.FindAllByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	legs := make(map[domain.PaymentMethod]*orderLeg)
	for i := range subs {
		if subs[i].State.IsActive() {
			sub := subs[i]
			legs[sub.PaymentMethod] = &orderLeg{sub: &sub}
		}
	}

	if leg, ok := legs[domain.PaymentMethodSadad]; ok && leg.sub.State == domain.StateAwaitingPayment {
		status, err := o.payments.Status(ctx, leg.sub.ID)
		if err != nil {
			return nil, err
		}
		if status.State == "COMPLETED" {
			updated, err := o.store.SetState(ctx, leg.sub.ID, domain.StateHold, leg.sub.Version)
			if err != nil {
				return nil, err
			}
			leg.sub = updated
		}
		leg.code = status.Ref3P
	}
	return legs, nil
}

// orderLegs projects the active legs into breakdown entries and fills in the
// implied CASH leg: whatever the wallet does not cover is due in cash unless
// a SADAD leg owns the remainder. A wallet hold exceeding the total leaves no
// cash due at all.
func (o *transactionOrchestrator) orderLegs(ctx context.Context, orderID string, total domain.Money) (map[domain.PaymentMethod]LegBreakdown, error) {
	active, err := o.activeSubtransactions(ctx, orderID)
	if err != nil {
		return nil, err
	}

	legs := make(map[domain.PaymentMethod]LegBreakdown, len(active))
	for pm, leg := range active {
		createdAt := leg.sub.CreatedAt
		legs[pm] = LegBreakdown{
			Total:         leg.sub.Money(),
			State:         leg.sub.State,
			PaymentMethod: pm,
			ID:            leg.sub.ID,
			CreatedAt:     &createdAt,
			Is3P:          pm.Is3P(),
			Code:          leg.code,
		}
	}

	if _, ok := legs[domain.PaymentMethodSadad]; !ok {
		cashTotal := total
		if wallet, ok := legs[domain.PaymentMethodWallet]; ok {
			cashTotal = total.Subtract(wallet.Total)
		}
		if cashTotal.IsNegative() {
			delete(legs, domain.PaymentMethodCash)
		} else if _, ok := legs[domain.PaymentMethodCash]; !ok {
			legs[domain.PaymentMethodCash] = LegBreakdown{
				Total:         cashTotal,
				State:         domain.StateAwaitingPayment,
				PaymentMethod: domain.PaymentMethodCash,
				Is3P:          false,
			}
		}
	}
	return legs, nil
}

// OrderBreakdown reports the order's current per-method split and classifies
// the effective order payment method from the legs present.
func (o *transactionOrchestrator) OrderBreakdown(ctx context.Context, orderID string, total domain.Money) (*OrderBreakdown, error) {
	legs, err := o.orderLegs(ctx, orderID, total)
	if err != nil {
		return nil, err
	}

	var method domain.OrderPaymentMethod
	_, hasCash := legs[domain.PaymentMethodCash]
	_, hasSadad := legs[domain.PaymentMethodSadad]
	_, hasWallet := legs[domain.PaymentMethodWallet]
	switch {
	case hasSadad && hasWallet:
		method = domain.OrderPaymentSadadWallet
	case hasWallet:
		method = domain.OrderPaymentCODWallet
	case hasSadad:
		method = domain.OrderPaymentSadad
	case hasCash:
		method = domain.OrderPaymentCOD
	}

	return &OrderBreakdown{
		Order:     OrderSummary{OrderID: orderID, Total: total, PaymentMethod: method},
		Breakdown: legs,
	}, nil
}

// BatchBreakdown computes condensed breakdowns for many orders concurrently.
func (o *transactionOrchestrator) BatchBreakdown(ctx context.Context, batch []OrderTotal) (map[string]BatchAmounts, error) {
	results := make([]*OrderBreakdown, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, order := range batch {
		i, order := i, order
		g.Go(func() error {
			breakdown, err := o.OrderBreakdown(gctx, order.OrderID, order.Total)
			if err != nil {
				return err
			}
			results[i] = breakdown
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batchMap := make(map[string]BatchAmounts, len(batch))
	for i, breakdown := range results {
		zero := domain.ZeroMoney(batch[i].Total.Currency)
		amounts := BatchAmounts{CashAmount: zero, WalletAmount: zero, SadadAmount: zero}
		if leg, ok := breakdown.Breakdown[domain.PaymentMethodCash]; ok {
			amounts.CashAmount = leg.Total
		}
		if leg, ok := breakdown.Breakdown[domain.PaymentMethodWallet]; ok {
			amounts.WalletAmount = leg.Total
		}
		if leg, ok := breakdown.Breakdown[domain.PaymentMethodSadad]; ok {
			amounts.SadadAmount = leg.Total
		}
		batchMap[breakdown.Order.OrderID] = amounts
	}
	return batchMap, nil
}

// CashDue reports how much of the total is still collectable in cash after
// the wallet hold. Negative cash (wallet over-hold) clamps to zero.
func (o *transactionOrchestrator) CashDue(ctx context.Context, orderID string, total domain.Money) (CashDue, error) {
	wallet, err := o.findOptional(ctx, domain.IdempotencyKey(orderID, domain.PaymentMethodWallet))
	if err != nil {
		return CashDue{}, err
	}
	if wallet == nil {
		return CashDue{
			WalletAmount: domain.ZeroMoney(total.Currency),
			CashAmount:   total,
		}, nil
	}

	hold := wallet.Money()
	cash := total.Subtract(hold)
	due := CashDue{WalletAmount: hold, CashAmount: cash}
	if total.LessThanOrEqual(hold) {
		due.WalletAmount = total
	}
	if cash.IsNegative() {
		due.CashAmount = domain.ZeroMoney(total.Currency)
	}
	return due, nil
}

// BatchCashDue computes cash dues for many orders concurrently.
func (o *transactionOrchestrator) BatchCashDue(ctx context.Context, batch []OrderTotal) (map[string]CashDue, error) {
	results := make([]CashDue, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, order := range batch {
		i, order := i, order
		g.Go(func() error {
			due, err := o.CashDue(gctx, order.OrderID, order.Total)
			if err != nil {
				return err
			}
			results[i] = due
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batchMap := make(map[string]CashDue, len(batch))
	for i, order := range batch {
		batchMap[order.OrderID] = results[i]
	}
	return batchMap, nil
}

// ProspectiveBreakdown projects how a prospective order would split between
// wallet and the final collectable amount. The order total and the wallet
// balance are independent reads and run concurrently. A wallet balance
// exceeding the total caps the wallet share at the total.
func (o *transactionOrchestrator) ProspectiveBreakdown(ctx context.Context, in ProspectiveBreakdownInput) (*ProspectiveBreakdown, error) {
	// Best-effort balance warm-up for the downstream cache; never awaited.
	go func(ctx context.Context) {
		if _, err := o.oracle.FetchBalance(ctx, in.RetailerID, in.Currency); err != nil {
			o.logger.Debug("Balance warm-up call failed", "retailer_id", in.RetailerID, "error", err)
		}
	}(context.WithoutCancel(ctx))

	zero := domain.ZeroMoney(in.Currency)
	total := zero
	walletAmount := zero

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := o.cart.FetchOrderTotal(gctx, in.RetailerID, in.Payload, in.Currency)
		if err != nil {
			return err
		}
		total = fetched
		return nil
	})
	if in.PaymentMethod == domain.OrderPaymentCODWallet {
		g.Go(func() error {
			balance, err := o.oracle.FetchBalance(gctx, in.RetailerID, in.Currency)
			if err != nil {
				return err
			}
			walletAmount = balance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	finalAmount := total.Subtract(walletAmount)
	if finalAmount.IsNegative() {
		walletAmount = total
		finalAmount = zero
	}
	return &ProspectiveBreakdown{
		OrderTotal:   total,
		WalletAmount: walletAmount,
		FinalAmount:  finalAmount,
	}, nil
}

// PaymentNotification records the processor's asynchronous hold confirmation
// for a subtransaction. Returns whether the notification was applied.
func (o *transactionOrchestrator) PaymentNotification(ctx context.Context, subtransactionID string) (bool, error) {
	return o.machine.ConfirmHold(ctx, subtransactionID)
}

// notifyDeliveryCode generates the order's delivery verification code and
// pushes it to the retailer. Best-effort: failures are logged, never raised.
func (o *transactionOrchestrator) notifyDeliveryCode(ctx context.Context, orderID, retailerID string) {
	code, err := o.delivery.GenerateCode(ctx, orderID, retailerID)
	if err != nil {
		o.logger.Error("Failed to generate delivery code", "order_id", orderID, "error", err)
		return
	}
	if err := o.notifier.NotifyDeliveryCode(ctx, retailerID, orderID, code); err != nil {
		o.logger.Error("Failed to notify retailer of delivery code", "order_id", orderID, "error", err)
	}
}

// findOptional looks up a subtransaction by idempotency key, mapping a miss
// to nil: a not-yet-created subtransaction is not an error.
func (o *transactionOrchestrator) findOptional(ctx context.Context, key string) (*domain.Subtransaction, error) {
	sub, err := o.store.FindByIdempKey(ctx, key)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}
