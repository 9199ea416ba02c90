// internal/gateway/payment.go
package gateway

import (
	"context"

	"orderpay/internal/domain"

	"github.com/go-resty/resty/v2"
)

// RollbackResult reports whether the processor released held funds during a
// rollback (as opposed to reversing a settled charge).
type RollbackResult struct {
	Released bool `json:"isReleased"`
}

// PaymentStatus is the processor's view of one payment intent.
type PaymentStatus struct {
	State string `json:"state"`
	Ref3P string `json:"ref3P"`
}

// PaymentGateway exposes the payment processor's operations. Every call is
// keyed by the subtransaction id acting as idempotency key, so re-invoking a
// call after a crash is safe.
type PaymentGateway interface {
	Hold(ctx context.Context, idempKey, account string, money domain.Money, method domain.PaymentMethod, txType domain.TransactionType) error
	Charge(ctx context.Context, idempKey string) error
	Release(ctx context.Context, idempKey string) error
	Cancel(ctx context.Context, idempKey string) error
	Rollback(ctx context.Context, idempKey string, adjustment domain.Money) (RollbackResult, error)
	// TopUp credits an account directly, outside any order saga. Part of the
	// processor contract for wallet recharges.
	TopUp(ctx context.Context, idempKey, account string, money domain.Money, txType domain.TransactionType) error
	Status(ctx context.Context, idempKey string) (PaymentStatus, error)
}

// paymentClient implements PaymentGateway over the processor's HTTP API.
type paymentClient struct {
	client *resty.Client
}

// NewPaymentGateway creates a PaymentGateway for the given endpoint.
func NewPaymentGateway(endpoint string, cfg ClientConfig) PaymentGateway {
	return &paymentClient{client: newClient(endpoint, cfg)}
}

type holdRequest struct {
	Account         string                 `json:"account"`
	Money           domain.Money           `json:"money"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod"`
	TransactionType domain.TransactionType `json:"transactionType"`
}

func (c *paymentClient) Hold(ctx context.Context, idempKey, account string, money domain.Money, method domain.PaymentMethod, txType domain.TransactionType) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(idempotencyKeyHeader, idempKey).
		SetBody(holdRequest{Account: account, Money: money, PaymentMethod: method, TransactionType: txType}).
		Post("/hold")
	if err != nil || resp.IsError() {
		return upstreamError("payment", resp, err)
	}
	return nil
}

func (c *paymentClient) Charge(ctx context.Context, idempKey string) error {
	return c.post(ctx, idempKey, "/charge", map[string]any{
		"transactionType": domain.TransactionTypeOrderPayment,
	})
}

func (c *paymentClient) Release(ctx context.Context, idempKey string) error {
	return c.post(ctx, idempKey, "/release", map[string]any{
		"transactionType": domain.TransactionTypeOrderRefund,
	})
}

func (c *paymentClient) Cancel(ctx context.Context, idempKey string) error {
	return c.post(ctx, idempKey, "/cancel", map[string]any{
		"transactionType": domain.TransactionTypeOrderRefund,
	})
}

func (c *paymentClient) Rollback(ctx context.Context, idempKey string, adjustment domain.Money) (RollbackResult, error) {
	var out struct {
		Data RollbackResult `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(idempotencyKeyHeader, idempKey).
		SetBody(map[string]any{
			"transactionType": domain.TransactionTypeOrderRefund,
			"adjustedMoney":   adjustment,
		}).
		SetResult(&out).
		Post("/rollback")
	if err != nil || resp.IsError() {
		return RollbackResult{}, upstreamError("payment", resp, err)
	}
	return out.Data, nil
}

func (c *paymentClient) TopUp(ctx context.Context, idempKey, account string, money domain.Money, txType domain.TransactionType) error {
	return c.post(ctx, idempKey, "/topup", holdRequest{
		Account:         account,
		Money:           money,
		PaymentMethod:   domain.PaymentMethodWallet,
		TransactionType: txType,
	})
}

func (c *paymentClient) Status(ctx context.Context, idempKey string) (PaymentStatus, error) {
	var out struct {
		Data PaymentStatus `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(idempotencyKeyHeader, idempKey).
		SetResult(&out).
		Get("/status")
	if err != nil || resp.IsError() {
		return PaymentStatus{}, upstreamError("payment", resp, err)
	}
	return out.Data, nil
}

func (c *paymentClient) post(ctx context.Context, idempKey, path string, body any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(idempotencyKeyHeader, idempKey).
		SetBody(body).
		Post(path)
	if err != nil || resp.IsError() {
		return upstreamError("payment", resp, err)
	}
	return nil
}
