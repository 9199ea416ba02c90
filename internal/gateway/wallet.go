// internal/gateway/wallet.go
package gateway

import (
	"context"
	"fmt"

	"orderpay/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// BalanceOracle answers how much prepaid balance an account currently holds.
type BalanceOracle interface {
	FetchBalance(ctx context.Context, account string, currency domain.CurrencyCode) (domain.Money, error)
}

// walletClient implements BalanceOracle over the wallet ledger's HTTP API.
type walletClient struct {
	client     *resty.Client
	currencies domain.CurrencyTable
}

// NewBalanceOracle creates a BalanceOracle for the given wallet endpoint.
func NewBalanceOracle(endpoint string, cfg ClientConfig, currencies domain.CurrencyTable) BalanceOracle {
	return &walletClient{client: newClient(endpoint, cfg), currencies: currencies}
}

// FetchBalance returns the account's balance. The wallet ledger reports
// amounts in major units; they are floored into minor units here.
func (c *walletClient) FetchBalance(ctx context.Context, account string, currency domain.CurrencyCode) (domain.Money, error) {
	var out struct {
		Data struct {
			Amount   decimal.Decimal     `json:"amount"`
			Currency domain.CurrencyCode `json:"currency"`
		} `json:"data"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("currency", string(currency)).
		SetResult(&out).
		Get(fmt.Sprintf("/balance/%s", account))
	if err != nil || resp.IsError() {
		return domain.Money{}, upstreamError("wallet", resp, err)
	}
	return c.currencies.FromMajor(out.Data.Amount, out.Data.Currency)
}
