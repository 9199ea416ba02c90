// internal/gateway/cart.go
package gateway

import (
	"context"
	"encoding/json"

	"orderpay/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// CartClient computes the payable total for a prospective order.
type CartClient interface {
	FetchOrderTotal(ctx context.Context, retailerID string, payload json.RawMessage, currency domain.CurrencyCode) (domain.Money, error)
}

type cartClient struct {
	client     *resty.Client
	currencies domain.CurrencyTable
}

// NewCartClient creates a CartClient for the given cart endpoint.
func NewCartClient(endpoint string, cfg ClientConfig, currencies domain.CurrencyTable) CartClient {
	return &cartClient{client: newClient(endpoint, cfg), currencies: currencies}
}

// FetchOrderTotal submits the cart payload for validation and returns the
// amount payable in the requested currency.
func (c *cartClient) FetchOrderTotal(ctx context.Context, retailerID string, payload json.RawMessage, currency domain.CurrencyCode) (domain.Money, error) {
	var out struct {
		Data struct {
			AmountPayable decimal.Decimal `json:"amountPayable"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"calculateTotal":   "true",
			"customerId":       retailerID,
			"validateCoupon":   "true",
			"validateCredit":   "false",
			"validateProducts": "true",
		}).
		SetBody(payload).
		SetResult(&out).
		Put("")
	if err != nil || resp.IsError() {
		return domain.Money{}, upstreamError("cart", resp, err)
	}
	return c.currencies.FromMajor(out.Data.AmountPayable, currency)
}
