// internal/service/orchestrator_test.go
package service

import (
	"context"
	"testing"

	"orderpay/internal/domain"
	"orderpay/internal/gateway"
	"orderpay/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orchestratorMocks struct {
	store    *MockSubtransactionStore
	payments *MockPaymentGateway
	oracle   *MockBalanceOracle
	cart     *MockCartClient
	delivery *MockDeliveryCodeService
	notifier *MockNotifier
}

func newTestOrchestrator() (TransactionService, *orchestratorMocks) {
	m := &orchestratorMocks{
		store:    new(MockSubtransactionStore),
		payments: new(MockPaymentGateway),
		oracle:   new(MockBalanceOracle),
		cart:     new(MockCartClient),
		delivery: new(MockDeliveryCodeService),
		notifier: new(MockNotifier),
	}
	// The delivery-code side channel runs on a detached goroutine and may or
	// may not land before the test finishes.
	m.delivery.On("GenerateCode", mock.Anything, mock.Anything, mock.Anything).Return("1234", nil).Maybe()
	m.notifier.On("NotifyDeliveryCode", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	machine := NewSubtransactionStateMachine(m.store, m.payments, testLogger())
	alloc := NewAllocationCalculator(m.store, m.oracle, machine)
	svc := NewTransactionOrchestrator(m.store, m.payments, m.oracle, m.cart, m.delivery, m.notifier, alloc, machine, testLogger())
	return svc, m
}

func orderSub(id string, pm domain.PaymentMethod, state domain.SubtransactionState, amount int64, currency domain.CurrencyCode) *domain.Subtransaction {
	return &domain.Subtransaction{
		ID:            id,
		OrderID:       "order-1",
		IdempKey:      domain.IdempotencyKey("order-1", pm),
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: pm,
		State:         state,
		Version:       2,
	}
}

func TestCreateOrderSplitsTotalAcrossWalletAndCash(t *testing.T) {
	svc, m := newTestOrchestrator()
	total := domain.NewMoney(100000, domain.CurrencyPKR) // 1000 PKR
	heldWallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)
	m.store.On("Create", mock.Anything, mock.MatchedBy(func(sub *domain.Subtransaction) bool {
		return sub.PaymentMethod == domain.PaymentMethodWallet && sub.Amount == 40000
	})).Return(nil)
	m.payments.On("Hold", mock.Anything, mock.Anything, "retailer-1", domain.NewMoney(40000, domain.CurrencyPKR), domain.PaymentMethodWallet, domain.TransactionTypeOrderPayment).Return(nil)
	m.store.On("SetState", mock.Anything, mock.Anything, domain.StateHold, mock.Anything).Return(heldWallet, nil)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*heldWallet}, nil)

	breakdown, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrderID:            "order-1",
		RetailerID:         "retailer-1",
		OrderPaymentMethod: domain.OrderPaymentCODWallet,
		Total:              total,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentCODWallet, breakdown.Order.PaymentMethod)

	wallet := breakdown.Breakdown[domain.PaymentMethodWallet]
	assert.Equal(t, int64(40000), wallet.Total.Amount)
	assert.Equal(t, domain.StateHold, wallet.State)

	cash := breakdown.Breakdown[domain.PaymentMethodCash]
	assert.Equal(t, int64(60000), cash.Total.Amount)
	assert.Equal(t, domain.StateAwaitingPayment, cash.State)
	assert.Empty(t, cash.ID) // implied leg, nothing stored

	// Allocation never exceeds the order total.
	assert.True(t, wallet.Total.Add(cash.Total).LessThanOrEqual(total))
	m.store.AssertExpectations(t)
	m.payments.AssertExpectations(t)
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	svc, m := newTestOrchestrator()
	heldWallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(heldWallet, nil)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*heldWallet}, nil)

	breakdown, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrderID:            "order-1",
		RetailerID:         "retailer-1",
		OrderPaymentMethod: domain.OrderPaymentCODWallet,
		Total:              domain.NewMoney(100000, domain.CurrencyPKR),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(40000), breakdown.Breakdown[domain.PaymentMethodWallet].Total.Amount)
	m.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.payments.AssertNotCalled(t, "Hold", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.oracle.AssertNotCalled(t, "FetchBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrderRaceLoserContinuesWithWinnerRow(t *testing.T) {
	svc, m := newTestOrchestrator()
	winner := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	// The pre-create lookups miss, then the insert collides with a concurrent
	// request and the orchestrator re-reads the winner's row.
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound).Twice()
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return(util.ErrDuplicateEntry)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(winner, nil)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*winner}, nil)

	breakdown, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrderID:            "order-1",
		RetailerID:         "retailer-1",
		OrderPaymentMethod: domain.OrderPaymentCODWallet,
		Total:              domain.NewMoney(100000, domain.CurrencyPKR),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(40000), breakdown.Breakdown[domain.PaymentMethodWallet].Total.Amount)
	m.payments.AssertNotCalled(t, "Hold", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrderSubtransactionPastHoldConflicts(t *testing.T) {
	svc, m := newTestOrchestrator()
	completed := orderSub("w-1", domain.PaymentMethodWallet, domain.StateCompleted, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(completed, nil)

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		OrderID:            "order-1",
		RetailerID:         "retailer-1",
		OrderPaymentMethod: domain.OrderPaymentCODWallet,
		Total:              domain.NewMoney(100000, domain.CurrencyPKR),
	})

	assert.True(t, util.IsStateConflict(err))
}

func TestCompleteOrderMismatchRaisesReconciliationError(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 20000, domain.CurrencySAR)
	sadad := orderSub("s-1", domain.PaymentMethodSadad, domain.StateHold, 20000, domain.CurrencySAR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*wallet, *sadad}, nil)

	// 500 total - 200 wallet - 200 sadad leaves 100 SAR unexplained.
	_, err := svc.CompleteOrder(context.Background(), CompleteOrderInput{
		OrderID: "order-1",
		Total:   domain.NewMoney(50000, domain.CurrencySAR),
	})

	require.Error(t, err)
	assert.True(t, util.IsReconciliationError(err))
	m.payments.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	m.payments.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	m.store.AssertNotCalled(t, "SetState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteOrderOnCancelledWalletFails(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateCancelled, 20000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)

	_, err := svc.CompleteOrder(context.Background(), CompleteOrderInput{
		OrderID: "order-1",
		Total:   domain.NewMoney(50000, domain.CurrencyPKR),
	})

	assert.True(t, util.IsError(err, util.ErrOrderCancelled))
	m.payments.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCompleteOrderCreatesAndSettlesCashLeg(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)
	heldCash := orderSub("c-1", domain.PaymentMethodCash, domain.StateHold, 60000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*wallet}, nil).Once()
	m.store.On("Create", mock.Anything, mock.MatchedBy(func(sub *domain.Subtransaction) bool {
		return sub.PaymentMethod == domain.PaymentMethodCash && sub.Amount == 60000
	})).Return(nil)
	m.payments.On("Hold", mock.Anything, mock.Anything, "retailer-1", domain.NewMoney(60000, domain.CurrencyPKR), domain.PaymentMethodCash, domain.TransactionTypeOrderPayment).Return(nil)
	m.store.On("SetState", mock.Anything, mock.Anything, domain.StateHold, mock.Anything).Return(heldCash, nil)

	walletProcessing := withState(wallet, domain.StateCompleteProcessing)
	cashProcessing := withState(heldCash, domain.StateCompleteProcessing)
	m.store.On("SetState", mock.Anything, "w-1", domain.StateCompleteProcessing, wallet.Version).Return(walletProcessing, nil)
	m.store.On("SetState", mock.Anything, "c-1", domain.StateCompleteProcessing, heldCash.Version).Return(cashProcessing, nil)
	m.payments.On("Charge", mock.Anything, "w-1").Return(nil)
	m.payments.On("Charge", mock.Anything, "c-1").Return(nil)
	m.store.On("SetState", mock.Anything, "w-1", domain.StateCompleted, walletProcessing.Version).Return(withState(walletProcessing, domain.StateCompleted), nil)
	m.store.On("SetState", mock.Anything, "c-1", domain.StateCompleted, cashProcessing.Version).Return(withState(cashProcessing, domain.StateCompleted), nil)

	settledWallet := withState(wallet, domain.StateCompleted)
	settledCash := withState(heldCash, domain.StateCompleted)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*settledWallet, *settledCash}, nil)

	breakdown, err := svc.CompleteOrder(context.Background(), CompleteOrderInput{
		OrderID:    "order-1",
		RetailerID: "retailer-1",
		Total:      domain.NewMoney(100000, domain.CurrencyPKR),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, breakdown.Breakdown[domain.PaymentMethodWallet].State)
	assert.Equal(t, domain.StateCompleted, breakdown.Breakdown[domain.PaymentMethodCash].State)
	m.payments.AssertExpectations(t)
	m.payments.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestCompleteOrderOverheldWalletTopsUpThroughCashLeg(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)
	heldCash := orderSub("c-1", domain.PaymentMethodCash, domain.StateHold, 10000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*wallet}, nil)
	// Final total 300 against a 400 hold: the cash leg records the 100 excess.
	m.store.On("Create", mock.Anything, mock.MatchedBy(func(sub *domain.Subtransaction) bool {
		return sub.PaymentMethod == domain.PaymentMethodCash && sub.Amount == 10000
	})).Return(nil)
	m.payments.On("Hold", mock.Anything, mock.Anything, "retailer-1", domain.NewMoney(10000, domain.CurrencyPKR), domain.PaymentMethodCash, domain.TransactionTypeOrderPayment).Return(nil)
	m.store.On("SetState", mock.Anything, mock.Anything, domain.StateHold, mock.Anything).Return(heldCash, nil)

	walletProcessing := withState(wallet, domain.StateCompleteProcessing)
	cashProcessing := withState(heldCash, domain.StateCompleteProcessing)
	m.store.On("SetState", mock.Anything, "w-1", domain.StateCompleteProcessing, wallet.Version).Return(walletProcessing, nil)
	m.store.On("SetState", mock.Anything, "c-1", domain.StateCompleteProcessing, heldCash.Version).Return(cashProcessing, nil)
	m.payments.On("Charge", mock.Anything, "w-1").Return(nil)
	m.payments.On("Release", mock.Anything, "c-1").Return(nil)
	m.store.On("SetState", mock.Anything, "w-1", domain.StateCompleted, walletProcessing.Version).Return(withState(walletProcessing, domain.StateCompleted), nil)
	m.store.On("SetState", mock.Anything, "c-1", domain.StateCompleted, cashProcessing.Version).Return(withState(cashProcessing, domain.StateCompleted), nil)

	_, err := svc.CompleteOrder(context.Background(), CompleteOrderInput{
		OrderID:    "order-1",
		RetailerID: "retailer-1",
		Total:      domain.NewMoney(30000, domain.CurrencyPKR),
	})

	require.NoError(t, err)
	m.payments.AssertExpectations(t)
	m.payments.AssertNotCalled(t, "Charge", mock.Anything, "c-1")
}

func TestCancelOrderOnCancelledSadadWithoutWalletSucceedsSilently(t *testing.T) {
	svc, m := newTestOrchestrator()
	sadad := orderSub("s-1", domain.PaymentMethodSadad, domain.StateCancelled, 30000, domain.CurrencySAR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(sadad, nil)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)

	cancelled, err := svc.CancelOrder(context.Background(), "order-1")

	require.NoError(t, err)
	assert.True(t, cancelled)
	m.payments.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestRollbackOrderReopensCollectionForResidual(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateCompleted, 40000, domain.CurrencyPKR)
	processing := withState(wallet, domain.StateRollbackProcessing)
	newWallet := orderSub("w-2", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	// The rollback phase sees the settled wallet; once its key is released the
	// re-created order starts from a clean slate.
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil).Once()
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)

	m.store.On("SetState", mock.Anything, "w-1", domain.StateRollbackProcessing, wallet.Version).Return(processing, nil)
	m.payments.On("Rollback", mock.Anything, "w-1", domain.ZeroMoney(domain.CurrencyPKR)).Return(gateway.RollbackResult{Released: false}, nil)
	m.store.On("Rollback", mock.Anything, "w-1").Return(withState(processing, domain.StateRollbacked), nil)

	// The refund lands back on the wallet, so the residual re-collection holds
	// it again under a fresh subtransaction.
	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)
	m.store.On("Create", mock.Anything, mock.MatchedBy(func(sub *domain.Subtransaction) bool {
		return sub.PaymentMethod == domain.PaymentMethodWallet && sub.Amount == 40000 && sub.ID != "w-1"
	})).Return(nil)
	m.payments.On("Hold", mock.Anything, mock.Anything, "retailer-1", domain.NewMoney(40000, domain.CurrencyPKR), domain.PaymentMethodWallet, domain.TransactionTypeOrderPayment).Return(nil)
	m.store.On("SetState", mock.Anything, mock.Anything, domain.StateHold, mock.Anything).Return(newWallet, nil)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*newWallet}, nil)

	rolledBack, err := svc.RollbackOrder(context.Background(), "order-1", "retailer-1")

	require.NoError(t, err)
	assert.True(t, rolledBack)
	m.store.AssertExpectations(t)
	m.payments.AssertExpectations(t)
}

func TestRollbackOrderWithoutSubtransactionsIsNoop(t *testing.T) {
	svc, m := newTestOrchestrator()

	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)

	rolledBack, err := svc.RollbackOrder(context.Background(), "order-1", "retailer-1")

	require.NoError(t, err)
	assert.True(t, rolledBack)
	m.payments.AssertNotCalled(t, "Rollback", mock.Anything, mock.Anything, mock.Anything)
	m.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRollbackOrderAdjustsWalletForReleasedCash(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateCompleted, 40000, domain.CurrencyPKR)
	cash := orderSub("c-1", domain.PaymentMethodCash, domain.StateCompleted, 60000, domain.CurrencyPKR)
	walletProcessing := withState(wallet, domain.StateRollbackProcessing)
	cashProcessing := withState(cash, domain.StateRollbackProcessing)
	newWallet := orderSub("w-2", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_SADAD").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(cash, nil).Once()
	m.store.On("FindByIdempKey", mock.Anything, "order-1_CASH").Return(nil, util.ErrNotFound)
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil).Once()
	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)

	m.store.On("SetState", mock.Anything, "c-1", domain.StateRollbackProcessing, cash.Version).Return(cashProcessing, nil)
	m.payments.On("Rollback", mock.Anything, "c-1", domain.ZeroMoney(domain.CurrencyPKR)).Return(gateway.RollbackResult{Released: true}, nil)
	m.store.On("Rollback", mock.Anything, "c-1").Return(withState(cashProcessing, domain.StateRollbacked), nil)

	// Cash was released, so the wallet rollback carries wallet-cash as its
	// adjustment (-200 PKR here) to avoid double refunding.
	m.store.On("SetState", mock.Anything, "w-1", domain.StateRollbackProcessing, wallet.Version).Return(walletProcessing, nil)
	m.payments.On("Rollback", mock.Anything, "w-1", domain.NewMoney(-20000, domain.CurrencyPKR)).Return(gateway.RollbackResult{Released: false}, nil)
	m.store.On("Rollback", mock.Anything, "w-1").Return(withState(walletProcessing, domain.StateRollbacked), nil)

	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)
	m.store.On("Create", mock.Anything, mock.Anything).Return(nil)
	m.payments.On("Hold", mock.Anything, mock.Anything, "retailer-1", domain.NewMoney(40000, domain.CurrencyPKR), domain.PaymentMethodWallet, domain.TransactionTypeOrderPayment).Return(nil)
	m.store.On("SetState", mock.Anything, mock.Anything, domain.StateHold, mock.Anything).Return(newWallet, nil)
	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*newWallet}, nil)

	rolledBack, err := svc.RollbackOrder(context.Background(), "order-1", "retailer-1")

	require.NoError(t, err)
	assert.True(t, rolledBack)
	m.payments.AssertExpectations(t)
}

func TestOrderBreakdownOmitsCashWhenWalletOverholds(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*wallet}, nil)

	breakdown, err := svc.OrderBreakdown(context.Background(), "order-1", domain.NewMoney(30000, domain.CurrencyPKR))

	require.NoError(t, err)
	_, hasCash := breakdown.Breakdown[domain.PaymentMethodCash]
	assert.False(t, hasCash)
	assert.Equal(t, domain.OrderPaymentCODWallet, breakdown.Order.PaymentMethod)
}

func TestOrderBreakdownPullsSadadStatusOnDemand(t *testing.T) {
	svc, m := newTestOrchestrator()
	sadad := orderSub("s-1", domain.PaymentMethodSadad, domain.StateAwaitingPayment, 30000, domain.CurrencySAR)
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 20000, domain.CurrencySAR)

	m.store.On("FindAllByOrderID", mock.Anything, "order-1").Return([]domain.Subtransaction{*wallet, *sadad}, nil)
	m.payments.On("Status", mock.Anything, "s-1").Return(gateway.PaymentStatus{State: "COMPLETED", Ref3P: "ref-9"}, nil)
	m.store.On("SetState", mock.Anything, "s-1", domain.StateHold, sadad.Version).Return(withState(sadad, domain.StateHold), nil)

	breakdown, err := svc.OrderBreakdown(context.Background(), "order-1", domain.NewMoney(50000, domain.CurrencySAR))

	require.NoError(t, err)
	leg := breakdown.Breakdown[domain.PaymentMethodSadad]
	assert.Equal(t, domain.StateHold, leg.State)
	assert.Equal(t, "ref-9", leg.Code)
	assert.Equal(t, domain.OrderPaymentSadadWallet, breakdown.Order.PaymentMethod)
	m.payments.AssertExpectations(t)
}

func TestCashDueSplitsTotal(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)

	due, err := svc.CashDue(context.Background(), "order-1", domain.NewMoney(100000, domain.CurrencyPKR))

	require.NoError(t, err)
	assert.Equal(t, int64(40000), due.WalletAmount.Amount)
	assert.Equal(t, int64(60000), due.CashAmount.Amount)
}

func TestCashDueClampsOverhold(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)

	due, err := svc.CashDue(context.Background(), "order-1", domain.NewMoney(30000, domain.CurrencyPKR))

	require.NoError(t, err)
	assert.Equal(t, int64(30000), due.WalletAmount.Amount)
	assert.True(t, due.CashAmount.IsZero())
}

func TestCashDueWithoutWalletIsAllCash(t *testing.T) {
	svc, m := newTestOrchestrator()

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(nil, util.ErrNotFound)

	due, err := svc.CashDue(context.Background(), "order-1", domain.NewMoney(100000, domain.CurrencyPKR))

	require.NoError(t, err)
	assert.True(t, due.WalletAmount.IsZero())
	assert.Equal(t, int64(100000), due.CashAmount.Amount)
}

func TestBatchCashDueKeysResultsByOrder(t *testing.T) {
	svc, m := newTestOrchestrator()
	wallet := orderSub("w-1", domain.PaymentMethodWallet, domain.StateHold, 40000, domain.CurrencyPKR)

	m.store.On("FindByIdempKey", mock.Anything, "order-1_WALLET").Return(wallet, nil)
	m.store.On("FindByIdempKey", mock.Anything, "order-2_WALLET").Return(nil, util.ErrNotFound)

	dues, err := svc.BatchCashDue(context.Background(), []OrderTotal{
		{OrderID: "order-1", Total: domain.NewMoney(100000, domain.CurrencyPKR)},
		{OrderID: "order-2", Total: domain.NewMoney(50000, domain.CurrencyPKR)},
	})

	require.NoError(t, err)
	require.Len(t, dues, 2)
	assert.Equal(t, int64(60000), dues["order-1"].CashAmount.Amount)
	assert.Equal(t, int64(50000), dues["order-2"].CashAmount.Amount)
}

func TestProspectiveBreakdownSubtractsWalletBalance(t *testing.T) {
	svc, m := newTestOrchestrator()
	payload := []byte(`{"items":[]}`)

	m.cart.On("FetchOrderTotal", mock.Anything, "retailer-1", mock.Anything, domain.CurrencyPKR).Return(domain.NewMoney(100000, domain.CurrencyPKR), nil)
	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)

	projected, err := svc.ProspectiveBreakdown(context.Background(), ProspectiveBreakdownInput{
		RetailerID:    "retailer-1",
		PaymentMethod: domain.OrderPaymentCODWallet,
		Currency:      domain.CurrencyPKR,
		Payload:       payload,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100000), projected.OrderTotal.Amount)
	assert.Equal(t, int64(40000), projected.WalletAmount.Amount)
	assert.Equal(t, int64(60000), projected.FinalAmount.Amount)
}

func TestProspectiveBreakdownClampsNegativeFinal(t *testing.T) {
	svc, m := newTestOrchestrator()
	payload := []byte(`{"items":[]}`)

	m.cart.On("FetchOrderTotal", mock.Anything, "retailer-1", mock.Anything, domain.CurrencyPKR).Return(domain.NewMoney(30000, domain.CurrencyPKR), nil)
	m.oracle.On("FetchBalance", mock.Anything, "retailer-1", domain.CurrencyPKR).Return(domain.NewMoney(40000, domain.CurrencyPKR), nil)

	projected, err := svc.ProspectiveBreakdown(context.Background(), ProspectiveBreakdownInput{
		RetailerID:    "retailer-1",
		PaymentMethod: domain.OrderPaymentCODWallet,
		Currency:      domain.CurrencyPKR,
		Payload:       payload,
	})

	require.NoError(t, err)
	assert.Equal(t, projected.OrderTotal, projected.WalletAmount)
	assert.True(t, projected.FinalAmount.IsZero())
}
