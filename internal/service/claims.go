package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/claim"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/payment"
	"github.com/mmeshcher/orderpay/internal/repository"
)

// RequestClaim открывает заявку на позицию заказа. Строка позиции блокируется,
// поэтому проверка открытых заявок и остатка количества не гоняется с соседями.
func (s *Service) RequestClaim(ctx context.Context, req model.ClaimRequest) (model.Claim, error) {
	ctx, cancel := s.withClaimTimeout(ctx)
	defer cancel()

	var (
		res       model.Claim
		committed []model.OrderEvent
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		item, err := tx.LockOrderItem(ctx, req.OrderID, req.OrderItemID)
		if err != nil {
			return err
		}

		open, err := tx.HasOpenClaim(ctx, req.OrderID, req.OrderItemID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: order %s item %s", model.ErrDuplicateOpenClaim, req.OrderID, req.OrderItemID)
		}

		claimed, err := tx.ClaimedQuantity(ctx, req.OrderID, req.OrderItemID)
		if err != nil {
			return err
		}

		c, evs, err := claim.Request(req, item, claimed, s.newID(), s.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertClaim(ctx, c); err != nil {
			return err
		}
		committed, err = tx.AppendEvents(ctx, evs)
		res = c
		return err
	})
	if err != nil {
		return model.Claim{}, err
	}

	s.logger.Info("claim requested",
		zap.String("claimID", res.ID.String()),
		zap.String("orderID", res.OrderID),
		zap.String("type", string(res.ClaimType)),
		zap.Int("quantity", res.Quantity))
	s.publish(ctx, committed)
	return res, nil
}

// DecideClaim одобряет или отклоняет заявку.
func (s *Service) DecideClaim(ctx context.Context, id uuid.UUID, approve bool, actor model.Actor) (model.Claim, error) {
	ctx, cancel := s.withClaimTimeout(ctx)
	defer cancel()

	var (
		res       model.Claim
		committed []model.OrderEvent
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockClaim(ctx, id)
		if err != nil {
			return err
		}

		next, evs, err := claim.Decide(c, approve, actor, s.clock.Now())
		if err != nil {
			return err
		}
		if err := tx.UpdateClaim(ctx, next); err != nil {
			return err
		}
		committed, err = tx.AppendEvents(ctx, evs)
		res = next
		return err
	})
	if err != nil {
		return model.Claim{}, err
	}

	s.publish(ctx, committed)
	return res, nil
}

// CompleteClaim возвращает деньги по одобренной заявке и завершает её.
// Возврат и завершение коммитятся вместе: при отказе возврата заявка
// остаётся APPROVED. Сначала блокируется заявка, затем платёж.
func (s *Service) CompleteClaim(ctx context.Context, id uuid.UUID, actor model.Actor) (model.Claim, error) {
	ctx, cancel := s.withClaimTimeout(ctx)
	defer cancel()

	var (
		res       model.Claim
		committed []model.OrderEvent
	)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		c, err := tx.LockClaim(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != model.ClaimStatusApproved {
			_, _, err := claim.Complete(c, uuid.Nil, actor, s.clock.Now())
			return err
		}

		p, err := tx.LockActivePaymentByOrder(ctx, c.OrderID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		done, claimEvents, err := claim.Complete(c, p.ID, actor, now)
		if err != nil {
			return err
		}

		var evs []model.OrderEvent
		if c.RefundAmount.IsPositive() {
			refunded, refundEvents, err := payment.ApplyRefund(p, c.RefundAmount, model.RefundReasonClaim, actor, now)
			if err != nil {
				return err
			}
			if err := tx.UpdatePayment(ctx, refunded); err != nil {
				return err
			}
			evs = append(evs, refundEvents...)
		}
		evs = append(evs, claimEvents...)

		if err := tx.UpdateClaim(ctx, done); err != nil {
			return err
		}
		committed, err = tx.AppendEvents(ctx, evs)
		res = done
		return err
	})
	if err != nil {
		s.logger.Warn("complete claim",
			zap.String("claimID", id.String()),
			zap.Error(err))
		return model.Claim{}, err
	}

	s.logger.Info("claim completed",
		zap.String("claimID", res.ID.String()),
		zap.String("orderID", res.OrderID),
		zap.Int64("refund", res.RefundAmount.Amount))
	s.publish(ctx, committed)
	return res, nil
}
