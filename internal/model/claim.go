package model

import (
	"time"

	"github.com/google/uuid"
)

// ClaimType описывает тип заявки после покупки.
type ClaimType string

const (
	ClaimTypeCancel   ClaimType = "CANCEL"
	ClaimTypeReturn   ClaimType = "RETURN"
	ClaimTypeExchange ClaimType = "EXCHANGE"
)

// Valid сообщает, известен ли тип заявки.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimTypeCancel, ClaimTypeReturn, ClaimTypeExchange:
		return true
	}
	return false
}

// ClaimReason описывает причину заявки.
type ClaimReason string

const (
	ClaimReasonChangeOfMind    ClaimReason = "CHANGE_OF_MIND"
	ClaimReasonDefective       ClaimReason = "DEFECTIVE"
	ClaimReasonWrongDelivery   ClaimReason = "WRONG_DELIVERY"
	ClaimReasonDelayedDelivery ClaimReason = "DELAYED_DELIVERY"
	ClaimReasonOutOfStock      ClaimReason = "OUT_OF_STOCK"
	ClaimReasonOther           ClaimReason = "OTHER"
)

// Valid сообщает, известна ли причина.
func (r ClaimReason) Valid() bool {
	switch r {
	case ClaimReasonChangeOfMind, ClaimReasonDefective, ClaimReasonWrongDelivery,
		ClaimReasonDelayedDelivery, ClaimReasonOutOfStock, ClaimReasonOther:
		return true
	}
	return false
}

// ClaimStatus описывает статус заявки.
type ClaimStatus string

const (
	ClaimStatusRequested ClaimStatus = "REQUESTED"
	ClaimStatusApproved  ClaimStatus = "APPROVED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
	ClaimStatusCompleted ClaimStatus = "COMPLETED"
)

// Open сообщает, что заявка ещё не разрешена окончательно.
func (s ClaimStatus) Open() bool {
	return s == ClaimStatusRequested || s == ClaimStatusApproved
}

// Claim представляет заявку на отмену, возврат или обмен позиции заказа.
type Claim struct {
	ID                uuid.UUID
	OrderID           string
	OrderItemID       string
	ClaimType         ClaimType
	ClaimReason       ClaimReason
	ClaimReasonDetail string
	Quantity          int
	// RefundAmount вычисляется политикой возврата, клиент его не передаёт.
	RefundAmount Money
	Status       ClaimStatus
	// PaymentID заполняется при завершении: платёж, по которому прошёл возврат.
	PaymentID   *uuid.UUID
	RequestedBy Actor
	DecidedBy   *Actor
	RequestedAt time.Time
	DecidedAt   *time.Time
	ResolvedAt  *time.Time
}

// ClaimRequest содержит входные данные для открытия заявки.
type ClaimRequest struct {
	OrderID     string
	OrderItemID string
	ClaimType   ClaimType
	Reason      ClaimReason
	Detail      string
	Quantity    int
	Actor       Actor
}
