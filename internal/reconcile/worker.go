// Package reconcile сверяет зависшие платежи с PG.
//
// Платёж, оставшийся PENDING дольше порога, скорее всего потерял уведомление.
// Воркер спрашивает PG о транзакции вне блокировок и передаёт ответ в шлюз
// уведомлений как обычную доставку, поэтому повтор настоящего вебхука
// отсекается тем же журналом идемпотентности.
package reconcile

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/pgclient"
	"github.com/mmeshcher/orderpay/internal/webhook"
)

const batchSize = 100

// Store отдаёт платежи, ожидающие сверки.
type Store interface {
	ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]model.Payment, error)
}

// PGClient запрашивает состояние транзакции в PG.
type PGClient interface {
	GetTransaction(ctx context.Context, correlationID string) (*pgclient.Transaction, int, time.Duration, error)
}

// Ingester применяет уведомление PG.
type Ingester interface {
	Ingest(ctx context.Context, d webhook.Delivery) (webhook.Result, error)
}

// Worker периодически сверяет платежи PENDING.
type Worker struct {
	store      Store
	client     PGClient
	ingester   Ingester
	clock      model.Clock
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
}

// NewWorker создаёт воркер сверки.
func NewWorker(store Store, client PGClient, ingester Ingester, clock model.Clock, logger *zap.Logger, interval, staleAfter time.Duration) *Worker {
	return &Worker{
		store:      store,
		client:     client,
		ingester:   ingester,
		clock:      clock,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run запускает сверку по таймеру до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	stale, err := w.store.ListStalePendingPayments(ctx, w.clock.Now().Add(-w.staleAfter), batchSize)
	if err != nil {
		w.logger.Warn("list stale payments", zap.Error(err))
		return
	}

	for _, p := range stale {
		tx, statusCode, retryAfter, err := w.client.GetTransaction(ctx, p.ID.String())
		if err != nil {
			w.logger.Warn("query pg transaction",
				zap.String("paymentID", p.ID.String()),
				zap.Error(err))
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if tx == nil {
			continue
		}

		d, ok := delivery(p, tx)
		if !ok {
			continue
		}

		res, err := w.ingester.Ingest(ctx, d)
		if err != nil {
			if errors.Is(err, model.ErrBusy) {
				continue
			}
			w.logger.Warn("reconcile payment",
				zap.String("paymentID", p.ID.String()),
				zap.Error(err))
			continue
		}

		w.logger.Info("payment reconciled",
			zap.String("paymentID", p.ID.String()),
			zap.String("outcome", string(res.Outcome)),
			zap.String("status", string(res.Status)))
	}
}

// delivery превращает ответ PG в уведомление. Незавершённые транзакции пропускаются.
func delivery(p model.Payment, tx *pgclient.Transaction) (webhook.Delivery, bool) {
	d := webhook.Delivery{
		PgTransactionID:       tx.PgTransactionID,
		MerchantCorrelationID: p.ID.String(),
		Reason:                tx.Reason,
	}

	switch tx.Status {
	case pgclient.StatusApproved:
		d.EventKind = webhook.KindApproved
		amount := tx.Amount
		d.Amount = &amount
		d.Currency = tx.Currency
	case pgclient.StatusFailed:
		d.EventKind = webhook.KindFailed
	case pgclient.StatusCancelled:
		d.EventKind = webhook.KindCancelled
	default:
		return webhook.Delivery{}, false
	}
	return d, true
}
