// internal/domain/money.go
package domain

import (
	"fmt"

	"github.com/shopspring/decimal" // For precise major/minor unit conversion
)

// CurrencyCode identifies a supported currency.
type CurrencyCode string

const (
	CurrencyPKR CurrencyCode = "PKR"
	CurrencySAR CurrencyCode = "SAR"
	CurrencyAED CurrencyCode = "AED"
)

// CurrencyConfig describes one currency's denomination rules.
type CurrencyConfig struct {
	Code          CurrencyCode
	Country       string
	MinorPerMajor int64 // minor units per major unit, e.g. 100 paisa per rupee
	Precision     int32
	MinorLabel    string
}

// CurrencyTable maps currency codes to their denomination rules. It is injected
// into money construction instead of being read from package-level constants.
type CurrencyTable map[CurrencyCode]CurrencyConfig

// DefaultCurrencyTable returns the currencies the service settles in.
func DefaultCurrencyTable() CurrencyTable {
	return CurrencyTable{
		CurrencyPKR: {Code: CurrencyPKR, Country: "PAKISTAN", MinorPerMajor: 100, Precision: 2, MinorLabel: "PAISA"},
		CurrencySAR: {Code: CurrencySAR, Country: "SAUDI ARABIA", MinorPerMajor: 100, Precision: 2, MinorLabel: "HALALA"},
		CurrencyAED: {Code: CurrencyAED, Country: "UNITED ARAB EMIRATES", MinorPerMajor: 100, Precision: 2, MinorLabel: "FILS"},
	}
}

// FromMajor converts a major-unit amount (e.g. rupees) into Money in minor
// units. Fractional minor units are floored.
func (t CurrencyTable) FromMajor(amount decimal.Decimal, currency CurrencyCode) (Money, error) {
	cfg, ok := t[currency]
	if !ok {
		return Money{}, fmt.Errorf("unsupported currency %q", currency)
	}
	minor := amount.Mul(decimal.NewFromInt(cfg.MinorPerMajor)).Floor()
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

// MajorUnits converts Money back to major units for presentation. Negative
// amounts render as zero.
func (t CurrencyTable) MajorUnits(m Money) (decimal.Decimal, error) {
	cfg, ok := t[m.Currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency %q", m.Currency)
	}
	amt := m.Amount
	if amt < 0 {
		amt = 0
	}
	return decimal.NewFromInt(amt).Div(decimal.NewFromInt(cfg.MinorPerMajor)).Round(cfg.Precision), nil
}

// almostZeroTolerance is the reconciliation tolerance in minor units. Amounts
// whose magnitude is below one major unit are treated as settled.
const almostZeroTolerance = 100

// Money is an exact integer amount in minor currency units. Values are
// immutable; arithmetic returns new values in the same currency.
type Money struct {
	Amount   int64        `json:"amount"`
	Currency CurrencyCode `json:"currency"`
}

// NewMoney builds a Money from an amount already expressed in minor units.
func NewMoney(amount int64, currency CurrencyCode) Money {
	return Money{Amount: amount, Currency: currency}
}

// ZeroMoney returns a zero value in the given currency.
func ZeroMoney(currency CurrencyCode) Money {
	return Money{Amount: 0, Currency: currency}
}

// MinMoney returns the smaller of two amounts, in the receiver set's currency.
func MinMoney(a, b Money) Money {
	if b.Amount < a.Amount {
		return b
	}
	return a
}

func (m Money) Add(addend Money) Money {
	return Money{Amount: m.Amount + addend.Amount, Currency: m.Currency}
}

func (m Money) Subtract(subtrahend Money) Money {
	return Money{Amount: m.Amount - subtrahend.Amount, Currency: m.Currency}
}

func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount, Currency: m.Currency}
	}
	return m
}

func (m Money) GreaterThan(other Money) bool        { return m.Amount > other.Amount }
func (m Money) LessThan(other Money) bool           { return m.Amount < other.Amount }
func (m Money) GreaterThanOrEqual(other Money) bool { return m.Amount >= other.Amount }
func (m Money) LessThanOrEqual(other Money) bool    { return m.Amount <= other.Amount }

func (m Money) IsZero() bool           { return m.Amount == 0 }
func (m Money) IsPositive() bool       { return m.Amount > 0 }
func (m Money) IsNegative() bool       { return m.Amount < 0 }
func (m Money) IsZeroOrPositive() bool { return m.Amount >= 0 }
func (m Money) IsZeroOrNegative() bool { return m.Amount <= 0 }

// IsAlmostZero reports whether the amount is within the reconciliation
// tolerance of zero. This is a settlement check, not equality.
func (m Money) IsAlmostZero() bool {
	return m.Amount > -almostZeroTolerance && m.Amount < almostZeroTolerance
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}
