package model

import "time"

// EventType описывает тип записи в журнале заказа.
type EventType string

const (
	EventPaymentRequested       EventType = "PAYMENT_REQUESTED"
	EventPaymentApproved        EventType = "PAYMENT_APPROVED"
	EventPaymentFailed          EventType = "PAYMENT_FAILED"
	EventPaymentPartialRefunded EventType = "PAYMENT_PARTIAL_REFUNDED"
	EventPaymentRefunded        EventType = "PAYMENT_REFUNDED"
	EventPaymentCancelled       EventType = "PAYMENT_CANCELLED"
	EventPaymentAmountMismatch  EventType = "PAYMENT_AMOUNT_MISMATCH"
	EventPgStateConflict        EventType = "PG_STATE_CONFLICT"
	EventClaimRequested         EventType = "CLAIM_REQUESTED"
	EventClaimApproved          EventType = "CLAIM_APPROVED"
	EventClaimRejected          EventType = "CLAIM_REJECTED"
	EventClaimCompleted         EventType = "CLAIM_COMPLETED"
)

// EventSource указывает агрегат, породивший событие.
type EventSource string

const (
	EventSourcePayment EventSource = "PAYMENT"
	EventSourceClaim   EventSource = "CLAIM"
)

// ActorType описывает, кто инициировал переход.
type ActorType string

const (
	ActorSystem ActorType = "SYSTEM"
	ActorAdmin  ActorType = "ADMIN"
	ActorMember ActorType = "MEMBER"
	ActorPG     ActorType = "PG"
)

// Valid сообщает, известен ли тип инициатора.
func (a ActorType) Valid() bool {
	switch a {
	case ActorSystem, ActorAdmin, ActorMember, ActorPG:
		return true
	}
	return false
}

// Actor представляет инициатора операции.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor используется как инициатор автоматических операций.
var SystemActor = Actor{Type: ActorSystem}

// OrderEvent представляет неизменяемую запись аудита. ID назначает хранилище при вставке;
// внутри заказа записи упорядочены по (CreatedAt, ID).
type OrderEvent struct {
	ID             int64             `json:"id"`
	OrderID        string            `json:"orderId"`
	EventType      EventType         `json:"eventType"`
	EventSource    EventSource       `json:"eventSource"`
	SourceID       string            `json:"sourceId"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	CurrentStatus  string            `json:"currentStatus,omitempty"`
	ActorType      ActorType         `json:"actorType"`
	ActorID        string            `json:"actorId,omitempty"`
	Description    string            `json:"description,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Before сообщает, предшествует ли e событию o в журнале заказа.
func (e OrderEvent) Before(o OrderEvent) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.ID < o.ID
}

// TimelineFilter ограничивает выборку журнала для постраничного чтения.
// AfterID указывает последнее прочитанное событие: записи заказа фиксируются
// по одной транзакции за раз, поэтому позже закоммиченное событие всегда
// оказывается после курсора.
type TimelineFilter struct {
	AfterID int64
	Limit   int
}
