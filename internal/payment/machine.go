// Package payment реализует конечный автомат платежа.
//
// Функции пакета чистые: принимают текущее состояние и момент времени,
// возвращают новое состояние и события журнала. Сохранение состояния и
// событий одной транзакцией остаётся за вызывающим.
package payment

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderpay/internal/model"
)

var transitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentStatusPending:         {model.PaymentStatusApproved, model.PaymentStatusFailed},
	model.PaymentStatusApproved:        {model.PaymentStatusPartialRefunded, model.PaymentStatusRefunded, model.PaymentStatusCancelled},
	model.PaymentStatusPartialRefunded: {model.PaymentStatusPartialRefunded, model.PaymentStatusRefunded},
}

// CanTransition сообщает, входит ли переход from → to в допустимый граф.
func CanTransition(from, to model.PaymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine хранит политику одобрения. Нулевое значение требует точного совпадения сумм.
type Machine struct {
	// Tolerance задаёт допустимую долю расхождения суммы PG с запрошенной.
	Tolerance decimal.Decimal
}

// NewMachine создаёт автомат с указанным допуском расхождения сумм.
func NewMachine(tolerance decimal.Decimal) Machine {
	return Machine{Tolerance: tolerance}
}

// Create создаёт платёж в статусе PENDING по зафиксированному checkout.
func Create(c model.Checkout, provider model.PgProvider, method model.PaymentMethod, id uuid.UUID, actor model.Actor, now time.Time) (model.Payment, []model.OrderEvent, error) {
	if c.Status != model.CheckoutStatusReady {
		return model.Payment{}, nil, fmt.Errorf("%w: checkout %s is %s", model.ErrCheckoutNotFinalizable, c.ID, c.Status)
	}
	if !c.FinalAmount.IsPositive() || !c.FinalAmount.Currency.Valid() {
		return model.Payment{}, nil, fmt.Errorf("%w: checkout %s final amount %s", model.ErrCheckoutNotFinalizable, c.ID, c.FinalAmount)
	}
	if c.OrderID == "" {
		return model.Payment{}, nil, fmt.Errorf("%w: checkout %s has no order", model.ErrCheckoutNotFinalizable, c.ID)
	}
	if !provider.Valid() {
		return model.Payment{}, nil, fmt.Errorf("%w: pg provider %q", model.ErrInvalidArgument, provider)
	}
	if !method.Valid() {
		return model.Payment{}, nil, fmt.Errorf("%w: payment method %q", model.ErrInvalidArgument, method)
	}

	p := model.Payment{
		ID:              id,
		OrderID:         c.OrderID,
		CheckoutID:      c.ID,
		PgProvider:      provider,
		Method:          method,
		Status:          model.PaymentStatusPending,
		RequestedAmount: c.FinalAmount,
		RefundedAmount:  model.Zero(c.FinalAmount.Currency),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	ev := event(p, model.EventPaymentRequested, "", actor, now, "payment requested", map[string]string{
		"checkoutId":      c.ID,
		"pgProvider":      string(provider),
		"method":          string(method),
		"requestedAmount": amount(p.RequestedAmount),
	})
	return p, []model.OrderEvent{ev}, nil
}

// Approve переводит платёж PENDING → APPROVED. Повторное одобрение с тем же
// pgTransactionID уже одобренного платежа проходит успешно и без событий.
func (m Machine) Approve(p model.Payment, pgTxID string, approved model.Money, actor model.Actor, now time.Time) (model.Payment, []model.OrderEvent, error) {
	if pgTxID == "" {
		return p, nil, fmt.Errorf("%w: empty pg transaction id", model.ErrInvalidArgument)
	}
	if p.ApprovedAt != nil && p.PgTransactionID == pgTxID {
		return p, nil, nil
	}
	if p.Status != model.PaymentStatusPending {
		return p, nil, invalid(p, model.PaymentStatusApproved)
	}
	if err := m.checkAmount(p.RequestedAmount, approved); err != nil {
		return p, nil, err
	}

	prev := p.Status
	p.Status = model.PaymentStatusApproved
	p.PgTransactionID = pgTxID
	p.ApprovedAmount = &approved
	p.ApprovedAt = &now
	p.UpdatedAt = now

	ev := event(p, model.EventPaymentApproved, prev, actor, now, "payment approved", map[string]string{
		"pgTransactionId": pgTxID,
		"approvedAmount":  amount(approved),
	})
	return p, []model.OrderEvent{ev}, nil
}

func (m Machine) checkAmount(requested, approved model.Money) error {
	diff, err := model.Diff(requested, approved)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrAmountMismatch, err)
	}
	allowed, err := requested.MulRatio(m.Tolerance)
	if err != nil {
		return err
	}
	if diff.Amount > allowed.Amount {
		return fmt.Errorf("%w: requested %s, pg reported %s", model.ErrAmountMismatch, requested, approved)
	}
	return nil
}

// Fail переводит платёж PENDING → FAILED.
func Fail(p model.Payment, reason string, actor model.Actor, now time.Time) (model.Payment, []model.OrderEvent, error) {
	if p.Status != model.PaymentStatusPending {
		return p, nil, invalid(p, model.PaymentStatusFailed)
	}

	prev := p.Status
	p.Status = model.PaymentStatusFailed
	p.FailureReason = reason
	p.FailedAt = &now
	p.UpdatedAt = now

	ev := event(p, model.EventPaymentFailed, prev, actor, now, reason, nil)
	return p, []model.OrderEvent{ev}, nil
}

// ApplyRefund применяет возврат к одобренному платежу. Единственное место,
// где меняется RefundedAmount.
func ApplyRefund(p model.Payment, refund model.Money, reason model.RefundReason, actor model.Actor, now time.Time) (model.Payment, []model.OrderEvent, error) {
	if p.Status != model.PaymentStatusApproved && p.Status != model.PaymentStatusPartialRefunded {
		return p, nil, invalid(p, model.PaymentStatusRefunded)
	}
	if !refund.IsPositive() {
		return p, nil, fmt.Errorf("%w: refund amount %s must be positive", model.ErrInvalidArgument, refund)
	}

	total, err := p.RefundedAmount.Add(refund)
	if err != nil {
		return p, nil, err
	}
	cmp, err := total.Cmp(*p.ApprovedAmount)
	if err != nil {
		return p, nil, err
	}
	if cmp > 0 {
		return p, nil, fmt.Errorf("%w: refunded %s + %s > approved %s",
			model.ErrRefundExceedsApproved, p.RefundedAmount, refund, *p.ApprovedAmount)
	}

	prev := p.Status
	eventType := model.EventPaymentPartialRefunded
	p.Status = model.PaymentStatusPartialRefunded
	if cmp == 0 {
		eventType = model.EventPaymentRefunded
		p.Status = model.PaymentStatusRefunded
	}
	p.RefundedAmount = total
	p.UpdatedAt = now

	ev := event(p, eventType, prev, actor, now, "refund applied", map[string]string{
		"refundAmount":   amount(refund),
		"refundedAmount": amount(total),
		"reason":         string(reason),
	})
	return p, []model.OrderEvent{ev}, nil
}

// Cancel отменяет одобренный платёж, по которому ещё не было возвратов.
func Cancel(p model.Payment, reason string, actor model.Actor, now time.Time) (model.Payment, []model.OrderEvent, error) {
	if p.Status != model.PaymentStatusApproved {
		return p, nil, invalid(p, model.PaymentStatusCancelled)
	}
	if !p.RefundedAmount.IsZero() {
		return p, nil, fmt.Errorf("%w: payment %s already refunded %s", model.ErrInvalidTransition, p.ID, p.RefundedAmount)
	}

	prev := p.Status
	p.Status = model.PaymentStatusCancelled
	p.CancelReason = reason
	p.CancelledAt = &now
	p.UpdatedAt = now

	ev := event(p, model.EventPaymentCancelled, prev, actor, now, reason, nil)
	return p, []model.OrderEvent{ev}, nil
}

// Anomaly фиксирует расхождение между PG и внутренним состоянием, не меняя платёж.
func Anomaly(p model.Payment, eventType model.EventType, description string, metadata map[string]string, now time.Time) model.OrderEvent {
	return event(p, eventType, p.Status, model.Actor{Type: model.ActorPG}, now, description, metadata)
}

func invalid(p model.Payment, to model.PaymentStatus) error {
	return fmt.Errorf("%w: payment %s %s -> %s", model.ErrInvalidTransition, p.ID, p.Status, to)
}

func event(p model.Payment, t model.EventType, prev model.PaymentStatus, actor model.Actor, now time.Time, description string, metadata map[string]string) model.OrderEvent {
	return model.OrderEvent{
		OrderID:        p.OrderID,
		EventType:      t,
		EventSource:    model.EventSourcePayment,
		SourceID:       p.ID.String(),
		PreviousStatus: string(prev),
		CurrentStatus:  string(p.Status),
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		Description:    description,
		Metadata:       metadata,
		CreatedAt:      now,
	}
}

func amount(m model.Money) string {
	return strconv.FormatInt(m.Amount, 10)
}
