// Package webhook принимает уведомления PG и переводит их в переходы платежа.
//
// Каждое уведомление обрабатывается не более одного раза по ключу
// pgTransactionId:eventKind. Ключ пишется в журнал той же транзакцией, что
// и изменение платежа, поэтому повтор после сбоя либо применит уведомление
// целиком, либо увидит его уже обработанным.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/events"
	"github.com/mmeshcher/orderpay/internal/idempotency"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/payment"
	"github.com/mmeshcher/orderpay/internal/repository"
	"github.com/mmeshcher/orderpay/internal/validation"
)

// EventKind описывает тип уведомления PG.
type EventKind string

const (
	KindApproved  EventKind = "APPROVED"
	KindFailed    EventKind = "FAILED"
	KindCancelled EventKind = "CANCELLED"
)

// Delivery представляет одно уведомление PG. MerchantCorrelationID содержит идентификатор
// платежа, переданный в PG при оплате, либо идентификатор checkout.
// Amount передаётся в минимальных единицах валюты; без Currency берётся валюта платежа.
type Delivery struct {
	PgTransactionID       string         `json:"pgTransactionId" validate:"required,max=128"`
	EventKind             EventKind      `json:"eventKind" validate:"required,oneof=APPROVED FAILED CANCELLED"`
	Amount                *int64         `json:"amount,omitempty" validate:"required_if=EventKind APPROVED"`
	Currency              model.Currency `json:"currency,omitempty" validate:"omitempty,currency"`
	MerchantCorrelationID string         `json:"merchantCorrelationId" validate:"required,max=128"`
	Reason                string         `json:"reason,omitempty" validate:"max=500"`
}

// IdempotencyKey возвращает ключ журнала обработанных уведомлений.
func (d Delivery) IdempotencyKey() string {
	return d.PgTransactionID + ":" + string(d.EventKind)
}

// money возвращает сумму уведомления в валюте платежа, если PG её не указал.
func (d Delivery) money(p model.Payment) model.Money {
	currency := d.Currency
	if currency == "" {
		currency = p.RequestedAmount.Currency
	}
	return model.Money{Amount: *d.Amount, Currency: currency}
}

// Outcome описывает итог обработки уведомления. Любой итог означает, что уведомление принято.
type Outcome string

const (
	OutcomeApplied   Outcome = "APPLIED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeAnomaly   Outcome = "ANOMALY"
)

// Result описывает обработанное уведомление.
type Result struct {
	Outcome   Outcome
	PaymentID uuid.UUID
	Status    model.PaymentStatus
	Events    []model.OrderEvent
}

// Store описывает транзакционный доступ к хранилищу.
type Store interface {
	WithinTx(ctx context.Context, fn repository.TxFunc) error
}

// Options содержит зависимости шлюза. Пустые поля заменяются значениями по умолчанию.
type Options struct {
	Machine   payment.Machine
	Clock     model.Clock
	Cache     idempotency.Cache
	Publisher events.Publisher
	Logger    *zap.Logger
	// Timeout ограничивает обработку одного уведомления вместе с ожиданием блокировок.
	Timeout time.Duration
}

// Gateway обрабатывает уведомления PG.
type Gateway struct {
	store     Store
	machine   payment.Machine
	clock     model.Clock
	cache     idempotency.Cache
	publisher events.Publisher
	logger    *zap.Logger
	timeout   time.Duration
}

// NewGateway создаёт шлюз поверх хранилища.
func NewGateway(store Store, opts Options) *Gateway {
	g := &Gateway{
		store:     store,
		machine:   opts.Machine,
		clock:     opts.Clock,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		timeout:   opts.Timeout,
	}
	if g.clock == nil {
		g.clock = model.SystemClock{}
	}
	if g.cache == nil {
		g.cache = idempotency.Nop{}
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.publisher == nil {
		g.publisher = events.NewLogPublisher(g.logger)
	}
	return g
}

var pgActor = model.Actor{Type: model.ActorPG}

// Ingest обрабатывает уведомление. Ошибка означает, что уведомление не принято
// и PG должен повторить его: ErrNotFound для неизвестного платежа, ErrBusy при
// исчерпании времени на блокировку, ErrInvalidArgument для некорректных данных.
func (g *Gateway) Ingest(ctx context.Context, d Delivery) (Result, error) {
	if err := validation.Struct(d); err != nil {
		return Result{}, err
	}
	if d.EventKind == KindApproved && *d.Amount <= 0 {
		return Result{}, fmt.Errorf("%w: approved amount %d must be positive", model.ErrInvalidArgument, *d.Amount)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	key := d.IdempotencyKey()
	log := g.logger.With(
		zap.String("pgTransactionID", d.PgTransactionID),
		zap.String("eventKind", string(d.EventKind)),
		zap.String("correlationID", d.MerchantCorrelationID))

	seen, err := g.cache.Seen(ctx, key)
	if err != nil {
		log.Warn("idempotency cache lookup failed", zap.Error(err))
	}
	if seen {
		log.Debug("webhook replay answered from cache")
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	var res Result
	err = g.store.WithinTx(ctx, func(tx repository.Tx) error {
		res = Result{}
		now := g.clock.Now()

		fresh, err := tx.RecordWebhook(ctx, key, now)
		if err != nil {
			return err
		}
		if !fresh {
			res.Outcome = OutcomeDuplicate
			return nil
		}

		p, err := g.resolve(ctx, tx, d)
		if err != nil {
			return err
		}

		next, evs, outcome, err := g.translate(p, d, now)
		if err != nil {
			return err
		}
		res.Outcome, res.PaymentID, res.Status = outcome, next.ID, next.Status

		if outcome == OutcomeApplied {
			if err := tx.UpdatePayment(ctx, next); err != nil {
				return err
			}
		}
		if len(evs) > 0 {
			res.Events, err = tx.AppendEvents(ctx, evs)
		}
		return err
	})
	if err != nil {
		log.Warn("webhook not acknowledged", zap.Error(err))
		return Result{}, err
	}

	// Уведомление уже закоммичено: отмена запроса не должна мешать кешу и публикации.
	after := context.WithoutCancel(ctx)
	if err := g.cache.Mark(after, key); err != nil {
		log.Warn("idempotency cache update failed", zap.Error(err))
	}

	switch res.Outcome {
	case OutcomeAnomaly:
		for _, e := range res.Events {
			log.Error("pg state anomaly",
				zap.String("paymentID", res.PaymentID.String()),
				zap.String("orderID", e.OrderID),
				zap.String("type", string(e.EventType)),
				zap.String("status", string(res.Status)),
				zap.String("description", e.Description))
		}
	case OutcomeApplied:
		log.Info("webhook applied",
			zap.String("paymentID", res.PaymentID.String()),
			zap.String("status", string(res.Status)))
	}

	if len(res.Events) > 0 {
		if err := g.publisher.Publish(after, res.Events); err != nil {
			log.Warn("publish order events", zap.Error(err))
		}
	}
	return res, nil
}

// resolve находит и блокирует платёж: по pgTransactionId, затем по
// идентификатору платежа из correlation id, затем по последнему платежу checkout
// в любом статусе, чтобы запоздавшее уведомление по закрытому платежу попало в журнал.
func (g *Gateway) resolve(ctx context.Context, tx repository.Tx, d Delivery) (model.Payment, error) {
	p, err := tx.LockPaymentByTransactionID(ctx, d.PgTransactionID)
	if !errors.Is(err, model.ErrNotFound) {
		return p, err
	}

	if id, perr := uuid.Parse(d.MerchantCorrelationID); perr == nil {
		p, err = tx.LockPayment(ctx, id)
		if !errors.Is(err, model.ErrNotFound) {
			return p, err
		}
	}

	p, err = tx.LockLatestPaymentByCheckout(ctx, d.MerchantCorrelationID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Payment{}, fmt.Errorf("%w: payment for pg transaction %s, correlation %s",
			model.ErrNotFound, d.PgTransactionID, d.MerchantCorrelationID)
	}
	return p, err
}

// translate сопоставляет уведомление со статусом платежа. Всё, что не
// является допустимым переходом или повтором, фиксируется как аномалия
// без изменения платежа.
func (g *Gateway) translate(p model.Payment, d Delivery, now time.Time) (model.Payment, []model.OrderEvent, Outcome, error) {
	switch d.EventKind {
	case KindApproved:
		if p.Status == model.PaymentStatusPending || (p.ApprovedAt != nil && p.PgTransactionID == d.PgTransactionID) {
			reported := d.money(p)
			next, evs, err := g.machine.Approve(p, d.PgTransactionID, reported, pgActor, now)
			switch {
			case errors.Is(err, model.ErrAmountMismatch):
				meta := metadata(d, p)
				meta["requestedAmount"] = p.RequestedAmount.String()
				meta["reportedAmount"] = reported.String()
				return p, []model.OrderEvent{payment.Anomaly(p, model.EventPaymentAmountMismatch, err.Error(), meta, now)}, OutcomeAnomaly, nil
			case err != nil:
				return p, nil, "", err
			}
			return applied(next, evs)
		}

	case KindFailed:
		switch p.Status {
		case model.PaymentStatusPending:
			next, evs, err := payment.Fail(p, reasonOr(d.Reason, "failed at PG"), pgActor, now)
			if err != nil {
				return p, nil, "", err
			}
			return applied(bind(next, d), evs)
		case model.PaymentStatusFailed:
			return p, nil, OutcomeDuplicate, nil
		}

	case KindCancelled:
		switch p.Status {
		case model.PaymentStatusApproved:
			if p.PgTransactionID == d.PgTransactionID && p.RefundedAmount.IsZero() {
				next, evs, err := payment.Cancel(p, reasonOr(d.Reason, "cancelled at PG"), pgActor, now)
				if err != nil {
					return p, nil, "", err
				}
				return applied(next, evs)
			}
		case model.PaymentStatusPending:
			next, evs, err := payment.Fail(p, "cancelled at PG before approval", pgActor, now)
			if err != nil {
				return p, nil, "", err
			}
			return applied(bind(next, d), evs)
		case model.PaymentStatusCancelled:
			return p, nil, OutcomeDuplicate, nil
		}
	}

	desc := fmt.Sprintf("pg reported %s for payment in status %s", d.EventKind, p.Status)
	return p, []model.OrderEvent{payment.Anomaly(p, model.EventPgStateConflict, desc, metadata(d, p), now)}, OutcomeAnomaly, nil
}

func applied(p model.Payment, evs []model.OrderEvent) (model.Payment, []model.OrderEvent, Outcome, error) {
	if len(evs) == 0 {
		return p, nil, OutcomeDuplicate, nil
	}
	return p, evs, OutcomeApplied, nil
}

// bind закрепляет за платежом транзакцию PG, если её ещё нет.
func bind(p model.Payment, d Delivery) model.Payment {
	if p.PgTransactionID == "" {
		p.PgTransactionID = d.PgTransactionID
	}
	return p
}

func metadata(d Delivery, p model.Payment) map[string]string {
	return map[string]string{
		"pgTransactionId":       d.PgTransactionID,
		"eventKind":             string(d.EventKind),
		"merchantCorrelationId": d.MerchantCorrelationID,
		"paymentStatus":         string(p.Status),
		"boundPgTransactionId":  p.PgTransactionID,
	}
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
