package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/payment"
	"github.com/mmeshcher/orderpay/internal/repository"
)

// CreateFromCheckout создаёт платёж PENDING по зафиксированному checkout и
// сохраняет снимок позиций заказа для последующих заявок.
func (s *Service) CreateFromCheckout(ctx context.Context, c model.Checkout, provider model.PgProvider, method model.PaymentMethod, actor model.Actor) (model.Payment, error) {
	for i := range c.Items {
		it := &c.Items[i]
		if it.OrderID == "" {
			it.OrderID = c.OrderID
		}
		if it.OrderID != c.OrderID || it.ItemID == "" || it.Quantity <= 0 || it.UnitPrice.Amount < 0 {
			return model.Payment{}, fmt.Errorf("%w: checkout %s item %q", model.ErrInvalidArgument, c.ID, it.ItemID)
		}
	}

	now := s.clock.Now()
	p, evs, err := payment.Create(c, provider, method, s.newID(), actor, now)
	if err != nil {
		return model.Payment{}, err
	}

	var committed []model.OrderEvent
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		existing, err := tx.LockActivePaymentByCheckout(ctx, c.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: checkout %s has payment %s", model.ErrPaymentExists, c.ID, existing.ID)
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		if err := tx.UpsertOrderItems(ctx, c.Items); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		committed, err = tx.AppendEvents(ctx, evs)
		return err
	})
	if err != nil {
		return model.Payment{}, err
	}

	s.logger.Info("payment created",
		zap.String("paymentID", p.ID.String()),
		zap.String("orderID", p.OrderID),
		zap.String("checkoutID", p.CheckoutID))
	s.publish(ctx, committed)
	return p, nil
}

type paymentTransition func(p model.Payment, now time.Time) (model.Payment, []model.OrderEvent, error)

// mutatePayment блокирует платёж, применяет переход и сохраняет результат.
// Переход без событий считается повтором и ничего не пишет.
func (s *Service) mutatePayment(ctx context.Context, id uuid.UUID, apply paymentTransition) (model.Payment, error) {
	var (
		res       model.Payment
		committed []model.OrderEvent
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		p, err := tx.LockPayment(ctx, id)
		if err != nil {
			return err
		}

		next, evs, err := apply(p, s.clock.Now())
		if err != nil {
			return err
		}
		res = next
		if len(evs) == 0 {
			return nil
		}

		if err := tx.UpdatePayment(ctx, next); err != nil {
			return err
		}
		committed, err = tx.AppendEvents(ctx, evs)
		return err
	})
	if err != nil {
		return model.Payment{}, err
	}

	s.publish(ctx, committed)
	return res, nil
}

// Approve одобряет платёж по ответу PG.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, pgTxID string, approved model.Money, actor model.Actor) (model.Payment, error) {
	return s.mutatePayment(ctx, id, func(p model.Payment, now time.Time) (model.Payment, []model.OrderEvent, error) {
		return s.machine.Approve(p, pgTxID, approved, actor, now)
	})
}

// Fail отмечает платёж проваленным.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (model.Payment, error) {
	return s.mutatePayment(ctx, id, func(p model.Payment, now time.Time) (model.Payment, []model.OrderEvent, error) {
		return payment.Fail(p, reason, actor, now)
	})
}

// ApplyRefund применяет административный возврат.
func (s *Service) ApplyRefund(ctx context.Context, id uuid.UUID, amount model.Money, actor model.Actor) (model.Payment, error) {
	p, err := s.mutatePayment(ctx, id, func(p model.Payment, now time.Time) (model.Payment, []model.OrderEvent, error) {
		return payment.ApplyRefund(p, amount, model.RefundReasonAdmin, actor, now)
	})
	if err != nil {
		return model.Payment{}, err
	}

	s.logger.Info("refund applied",
		zap.String("paymentID", p.ID.String()),
		zap.Int64("amount", amount.Amount),
		zap.String("status", string(p.Status)))
	return p, nil
}

// Cancel отменяет одобренный платёж без возвратов.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (model.Payment, error) {
	return s.mutatePayment(ctx, id, func(p model.Payment, now time.Time) (model.Payment, []model.OrderEvent, error) {
		return payment.Cancel(p, reason, actor, now)
	})
}
