// internal/service/mocks_test.go
package service

import (
	"context"
	"encoding/json"

	"orderpay/internal/domain"
	"orderpay/internal/gateway"

	"github.com/stretchr/testify/mock"
)

// MockSubtransactionStore is a mock implementation of repository.SubtransactionStore.
type MockSubtransactionStore struct {
	mock.Mock
}

func (m *MockSubtransactionStore) Create(ctx context.Context, sub *domain.Subtransaction) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubtransactionStore) FindByIdempKey(ctx context.Context, idempKey string) (*domain.Subtransaction, error) {
	args := m.Called(ctx, idempKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subtransaction), args.Error(1)
}

func (m *MockSubtransactionStore) FindByID(ctx context.Context, id string) (*domain.Subtransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subtransaction), args.Error(1)
}

func (m *MockSubtransactionStore) FindAllByOrderID(ctx context.Context, orderID string) ([]domain.Subtransaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Subtransaction), args.Error(1)
}

func (m *MockSubtransactionStore) SetState(ctx context.Context, id string, state domain.SubtransactionState, fromVersion int64) (*domain.Subtransaction, error) {
	args := m.Called(ctx, id, state, fromVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subtransaction), args.Error(1)
}

func (m *MockSubtransactionStore) SetStates(ctx context.Context, ids []string, state domain.SubtransactionState) (bool, error) {
	args := m.Called(ctx, ids, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubtransactionStore) Rollback(ctx context.Context, id string) (*domain.Subtransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subtransaction), args.Error(1)
}

// MockPaymentGateway is a mock implementation of gateway.PaymentGateway.
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Hold(ctx context.Context, idempKey, account string, money domain.Money, method domain.PaymentMethod, txType domain.TransactionType) error {
	args := m.Called(ctx, idempKey, account, money, method, txType)
	return args.Error(0)
}

func (m *MockPaymentGateway) Charge(ctx context.Context, idempKey string) error {
	args := m.Called(ctx, idempKey)
	return args.Error(0)
}

func (m *MockPaymentGateway) Release(ctx context.Context, idempKey string) error {
	args := m.Called(ctx, idempKey)
	return args.Error(0)
}

func (m *MockPaymentGateway) Cancel(ctx context.Context, idempKey string) error {
	args := m.Called(ctx, idempKey)
	return args.Error(0)
}

func (m *MockPaymentGateway) Rollback(ctx context.Context, idempKey string, adjustment domain.Money) (gateway.RollbackResult, error) {
	args := m.Called(ctx, idempKey, adjustment)
	return args.Get(0).(gateway.RollbackResult), args.Error(1)
}

func (m *MockPaymentGateway) TopUp(ctx context.Context, idempKey, account string, money domain.Money, txType domain.TransactionType) error {
	args := m.Called(ctx, idempKey, account, money, txType)
	return args.Error(0)
}

func (m *MockPaymentGateway) Status(ctx context.Context, idempKey string) (gateway.PaymentStatus, error) {
	args := m.Called(ctx, idempKey)
	return args.Get(0).(gateway.PaymentStatus), args.Error(1)
}

// MockBalanceOracle is a mock implementation of gateway.BalanceOracle.
type MockBalanceOracle struct {
	mock.Mock
}

func (m *MockBalanceOracle) FetchBalance(ctx context.Context, account string, currency domain.CurrencyCode) (domain.Money, error) {
	args := m.Called(ctx, account, currency)
	return args.Get(0).(domain.Money), args.Error(1)
}

// MockCartClient is a mock implementation of gateway.CartClient.
type MockCartClient struct {
	mock.Mock
}

func (m *MockCartClient) FetchOrderTotal(ctx context.Context, retailerID string, payload json.RawMessage, currency domain.CurrencyCode) (domain.Money, error) {
	args := m.Called(ctx, retailerID, payload, currency)
	return args.Get(0).(domain.Money), args.Error(1)
}

// MockDeliveryCodeService is a mock implementation of gateway.DeliveryCodeService.
type MockDeliveryCodeService struct {
	mock.Mock
}

func (m *MockDeliveryCodeService) GenerateCode(ctx context.Context, orderID, retailerID string) (string, error) {
	args := m.Called(ctx, orderID, retailerID)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of gateway.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyDeliveryCode(ctx context.Context, retailerID, orderID, code string) error {
	args := m.Called(ctx, retailerID, orderID, code)
	return args.Error(0)
}
