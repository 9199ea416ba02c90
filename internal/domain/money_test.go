// internal/domain/money_test.go
package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajorFloorsFractionalMinorUnits(t *testing.T) {
	table := DefaultCurrencyTable()

	money, err := table.FromMajor(decimal.NewFromFloat(10.559), CurrencyPKR)
	require.NoError(t, err)
	assert.Equal(t, int64(1055), money.Amount)
	assert.Equal(t, CurrencyPKR, money.Currency)

	money, err = table.FromMajor(decimal.NewFromInt(4), CurrencySAR)
	require.NoError(t, err)
	assert.Equal(t, int64(400), money.Amount)
}

func TestFromMajorRejectsUnknownCurrency(t *testing.T) {
	table := DefaultCurrencyTable()
	_, err := table.FromMajor(decimal.NewFromInt(1), CurrencyCode("USD"))
	assert.Error(t, err)
}

func TestMajorUnitsClampsNegativeToZero(t *testing.T) {
	table := DefaultCurrencyTable()

	major, err := table.MajorUnits(NewMoney(-500, CurrencyPKR))
	require.NoError(t, err)
	assert.True(t, major.IsZero())

	major, err = table.MajorUnits(NewMoney(1055, CurrencyPKR))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(10.55).Equal(major))
}

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoney(1000, CurrencyPKR)
	b := NewMoney(400, CurrencyPKR)

	assert.Equal(t, int64(1400), a.Add(b).Amount)
	assert.Equal(t, int64(600), a.Subtract(b).Amount)
	assert.Equal(t, int64(600), b.Subtract(a).Abs().Amount)
	assert.Equal(t, b, MinMoney(a, b))
	assert.Equal(t, b, MinMoney(b, a))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.LessThanOrEqual(a))
}

func TestIsAlmostZeroTolerance(t *testing.T) {
	assert.True(t, NewMoney(0, CurrencySAR).IsAlmostZero())
	assert.True(t, NewMoney(99, CurrencySAR).IsAlmostZero())
	assert.True(t, NewMoney(-99, CurrencySAR).IsAlmostZero())
	assert.False(t, NewMoney(100, CurrencySAR).IsAlmostZero())
	assert.False(t, NewMoney(-100, CurrencySAR).IsAlmostZero())
}

func TestMoneySignPredicates(t *testing.T) {
	assert.True(t, ZeroMoney(CurrencyAED).IsZero())
	assert.True(t, NewMoney(1, CurrencyAED).IsPositive())
	assert.True(t, NewMoney(-1, CurrencyAED).IsNegative())
	assert.True(t, ZeroMoney(CurrencyAED).IsZeroOrPositive())
	assert.True(t, ZeroMoney(CurrencyAED).IsZeroOrNegative())
}
