package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
)

const maxTimelineLimit = 500

// PaymentStatusView содержит снимок платежа для сверки и поддержки.
type PaymentStatusView struct {
	ID         uuid.UUID           `json:"id"`
	OrderID    string              `json:"orderId"`
	Status     model.PaymentStatus `json:"status"`
	Requested  model.Money         `json:"requested"`
	Approved   *model.Money        `json:"approved,omitempty"`
	Refunded   model.Money         `json:"refunded"`
	Refundable model.Money         `json:"refundable"`
}

// GetPaymentStatus возвращает текущее состояние платежа.
func (s *Service) GetPaymentStatus(ctx context.Context, id uuid.UUID) (PaymentStatusView, error) {
	p, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return PaymentStatusView{}, err
	}
	return PaymentStatusView{
		ID:         p.ID,
		OrderID:    p.OrderID,
		Status:     p.Status,
		Requested:  p.RequestedAmount,
		Approved:   p.ApprovedAmount,
		Refunded:   p.RefundedAmount,
		Refundable: p.Refundable(),
	}, nil
}

// GetPayment возвращает платёж целиком.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (model.Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// GetClaim возвращает заявку по идентификатору.
func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	return s.store.GetClaim(ctx, id)
}

// ListClaims возвращает заявки заказа в порядке подачи.
func (s *Service) ListClaims(ctx context.Context, orderID string) ([]model.Claim, error) {
	return s.store.ListClaimsByOrder(ctx, orderID)
}

// GetTimeline возвращает журнал заказа. Limit 0 означает максимум страницы.
func (s *Service) GetTimeline(ctx context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error) {
	if f.Limit < 0 || f.AfterID < 0 {
		return nil, fmt.Errorf("%w: timeline limit %d after %d", model.ErrInvalidArgument, f.Limit, f.AfterID)
	}
	if f.Limit == 0 || f.Limit > maxTimelineLimit {
		f.Limit = maxTimelineLimit
	}
	return s.store.Timeline(ctx, orderID, f)
}
