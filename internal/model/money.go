package model

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Currency описывает валюту суммы.
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

// Valid сообщает, поддерживается ли валюта.
func (c Currency) Valid() bool {
	switch c {
	case CurrencyKRW, CurrencyUSD:
		return true
	}
	return false
}

// Money содержит сумму в минимальных единицах валюты (вон, центы).
type Money struct {
	Amount   int64    `json:"amount" validate:"gte=0"`
	Currency Currency `json:"currency" validate:"currency"`
}

// NewMoney создаёт сумму, проверяя знак и валюту.
func NewMoney(amount int64, currency Currency) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}
	if !currency.Valid() {
		return Money{}, fmt.Errorf("%w: unknown currency %q", ErrInvalidArgument, currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Zero возвращает нулевую сумму в валюте c.
func Zero(c Currency) Money {
	return Money{Currency: c}
}

// IsZero сообщает, равна ли сумма нулю.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsPositive сообщает, больше ли сумма нуля.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// String форматирует сумму вместе с кодом валюты.
func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

// Add складывает две суммы одной валюты.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if o.Amount > 0 && m.Amount > math.MaxInt64-o.Amount {
		return Money{}, fmt.Errorf("%w: overflow adding %s and %s", ErrInvalidArgument, m, o)
	}
	return checked(m.Amount+o.Amount, m.Currency)
}

// Sub вычитает o из m. При отрицательном результате возвращается ErrNegativeAmount.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return checked(m.Amount-o.Amount, m.Currency)
}

// MulInt умножает сумму на целое неотрицательное n.
func (m Money) MulInt(n int64) (Money, error) {
	if n < 0 {
		return Money{}, fmt.Errorf("%w: multiplier %d", ErrNegativeAmount, n)
	}
	if n != 0 && m.Amount > math.MaxInt64/n {
		return Money{}, fmt.Errorf("%w: overflow multiplying %s by %d", ErrInvalidArgument, m, n)
	}
	return checked(m.Amount*n, m.Currency)
}

// MulRatio умножает сумму на дробный коэффициент. Результат округляется к нулю:
// дробная минимальная единица никогда не достаётся получателю.
func (m Money) MulRatio(ratio decimal.Decimal) (Money, error) {
	if ratio.IsNegative() {
		return Money{}, fmt.Errorf("%w: ratio %s", ErrNegativeAmount, ratio)
	}
	v := decimal.NewFromInt(m.Amount).Mul(ratio).Truncate(0)
	if v.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, fmt.Errorf("%w: overflow scaling %s by %s", ErrInvalidArgument, m, ratio)
	}
	return checked(v.IntPart(), m.Currency)
}

// Cmp сравнивает суммы: -1, 0 или 1. Суммы должны быть в одной валюте.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	}
	return 0, nil
}

// Diff возвращает модуль разности двух сумм.
func Diff(a, b Money) (Money, error) {
	if err := a.sameCurrency(b); err != nil {
		return Money{}, err
	}
	if a.Amount >= b.Amount {
		return a.Sub(b)
	}
	return b.Sub(a)
}

func checked(amount int64, c Currency) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("%w: %d %s", ErrNegativeAmount, amount, c)
	}
	return Money{Amount: amount, Currency: c}, nil
}
