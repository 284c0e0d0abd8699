package model

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func krw(v int64) Money {
	return Money{Amount: v, Currency: CurrencyKRW}
}

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency Currency
		wantErr  error
	}{
		{name: "zero", amount: 0, currency: CurrencyKRW},
		{name: "positive", amount: 10000, currency: CurrencyUSD},
		{name: "negative", amount: -1, currency: CurrencyKRW, wantErr: ErrNegativeAmount},
		{name: "unknown currency", amount: 1, currency: "EUR", wantErr: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoney(tt.amount, tt.currency)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, m.Amount)
			assert.Equal(t, tt.currency, m.Currency)
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	sum, err := krw(6000).Add(krw(4000))
	require.NoError(t, err)
	assert.Equal(t, krw(10000), sum)

	rest, err := krw(10000).Sub(krw(6000))
	require.NoError(t, err)
	assert.Equal(t, krw(4000), rest)

	_, err = krw(6000).Sub(krw(6001))
	assert.ErrorIs(t, err, ErrNegativeAmount)

	total, err := krw(4000).MulInt(3)
	require.NoError(t, err)
	assert.Equal(t, krw(12000), total)

	_, err = krw(4000).MulInt(-1)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	usd := Money{Amount: 1, Currency: CurrencyUSD}

	_, err := krw(1).Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = krw(1).Sub(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = krw(1).Cmp(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyOverflow(t *testing.T) {
	_, err := krw(math.MaxInt64).Add(krw(1))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = krw(math.MaxInt64 / 2).MulInt(3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMoneyMulRatioRoundsTowardZero(t *testing.T) {
	tests := []struct {
		amount int64
		ratio  string
		want   int64
	}{
		{amount: 10000, ratio: "0", want: 0},
		{amount: 10000, ratio: "0.01", want: 100},
		{amount: 999, ratio: "0.01", want: 9},
		{amount: 3, ratio: "0.5", want: 1},
		{amount: 10000, ratio: "1", want: 10000},
	}

	for _, tt := range tests {
		got, err := krw(tt.amount).MulRatio(decimal.RequireFromString(tt.ratio))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Amount, "%d * %s", tt.amount, tt.ratio)
	}

	_, err := krw(1).MulRatio(decimal.RequireFromString("-0.1"))
	assert.True(t, errors.Is(err, ErrNegativeAmount))
}

func TestMoneyCmpAndDiff(t *testing.T) {
	c, err := krw(1).Cmp(krw(2))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = krw(2).Cmp(krw(2))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	d, err := Diff(krw(9000), krw(10000))
	require.NoError(t, err)
	assert.Equal(t, krw(1000), d)

	d, err = Diff(krw(10000), krw(9000))
	require.NoError(t, err)
	assert.Equal(t, krw(1000), d)
}

func TestPaymentRefundable(t *testing.T) {
	p := Payment{RequestedAmount: krw(10000), RefundedAmount: krw(0)}
	assert.Equal(t, krw(0), p.Refundable())

	approved := krw(10000)
	p.ApprovedAmount = &approved
	p.RefundedAmount = krw(6000)
	assert.Equal(t, krw(4000), p.Refundable())
}
