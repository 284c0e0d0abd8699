// Package model содержит доменные сущности ядра платежей и заявок маркетплейса.
package model

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus описывает статус платежа.
type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "PENDING"
	PaymentStatusApproved        PaymentStatus = "APPROVED"
	PaymentStatusPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
	PaymentStatusRefunded        PaymentStatus = "REFUNDED"
	PaymentStatusCancelled       PaymentStatus = "CANCELLED"
	PaymentStatusFailed          PaymentStatus = "FAILED"
)

// Terminal сообщает, что из статуса нет переходов.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusRefunded, PaymentStatusCancelled, PaymentStatusFailed:
		return true
	}
	return false
}

// Active сообщает, что платёж занимает checkout: он не провален и не отменён.
func (s PaymentStatus) Active() bool {
	return s != PaymentStatusFailed && s != PaymentStatusCancelled
}

// PgProvider определяет платёжный шлюз, через который проводится платёж.
type PgProvider string

const (
	PgProviderToss    PgProvider = "TOSS"
	PgProviderPortOne PgProvider = "PORTONE"
	PgProviderNicePay PgProvider = "NICEPAY"
)

// Valid сообщает, известен ли провайдер.
func (p PgProvider) Valid() bool {
	switch p {
	case PgProviderToss, PgProviderPortOne, PgProviderNicePay:
		return true
	}
	return false
}

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodVirtualAccount PaymentMethod = "VIRTUAL_ACCOUNT"
	PaymentMethodTransfer       PaymentMethod = "TRANSFER"
	PaymentMethodMobile         PaymentMethod = "MOBILE"
	PaymentMethodEasyPay        PaymentMethod = "EASY_PAY"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodVirtualAccount, PaymentMethodTransfer, PaymentMethodMobile, PaymentMethodEasyPay:
		return true
	}
	return false
}

// RefundReason описывает основание возврата.
type RefundReason string

const (
	RefundReasonClaim RefundReason = "CLAIM"
	RefundReasonAdmin RefundReason = "ADMIN"
)

// Payment представляет агрегат платежа. Изменяется только операциями пакета payment,
// физически не удаляется.
type Payment struct {
	ID              uuid.UUID
	OrderID         string
	CheckoutID      string
	PgProvider      PgProvider
	PgTransactionID string
	Method          PaymentMethod
	Status          PaymentStatus
	RequestedAmount Money
	// ApprovedAmount задаётся ровно один раз, при одобрении.
	ApprovedAmount *Money
	RefundedAmount Money
	FailureReason  string
	CancelReason   string
	ApprovedAt     *time.Time
	FailedAt       *time.Time
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Refundable возвращает сумму, которую ещё можно вернуть.
func (p Payment) Refundable() Money {
	if p.ApprovedAmount == nil {
		return Zero(p.RequestedAmount.Currency)
	}
	rest, err := p.ApprovedAmount.Sub(p.RefundedAmount)
	if err != nil {
		return Zero(p.RequestedAmount.Currency)
	}
	return rest
}

// CheckoutStatus описывает статус checkout, по которому создаётся платёж.
type CheckoutStatus string

const (
	CheckoutStatusOpen    CheckoutStatus = "OPEN"
	CheckoutStatusReady   CheckoutStatus = "READY"
	CheckoutStatusExpired CheckoutStatus = "EXPIRED"
)

// Checkout представляет зафиксированное намерение покупки. Отдельный агрегат вне ядра;
// сюда приходит только его снимок.
type Checkout struct {
	ID          string
	OrderID     string
	Status      CheckoutStatus
	FinalAmount Money
	Items       []OrderItem
}

// OrderItem содержит снимок позиции заказа с ценой на момент оплаты.
type OrderItem struct {
	OrderID   string
	ItemID    string
	UnitPrice Money
	Quantity  int
}
