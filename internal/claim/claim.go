// Package claim содержит правила жизненного цикла заявок на отмену, возврат и обмен.
package claim

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
)

const maxDetailLength = 1000

// RefundAmount рассчитывает сумму возврата по пропорциональной политике:
// цена позиции × количество. Обмен денег не возвращает.
func RefundAmount(t model.ClaimType, unitPrice model.Money, quantity int) (model.Money, error) {
	if t == model.ClaimTypeExchange {
		return model.Zero(unitPrice.Currency), nil
	}
	return unitPrice.MulInt(int64(quantity))
}

// Request открывает заявку. claimed содержит количество позиции, уже занятое
// не отклонёнными заявками.
func Request(req model.ClaimRequest, item model.OrderItem, claimed int, id uuid.UUID, now time.Time) (model.Claim, []model.OrderEvent, error) {
	if !req.ClaimType.Valid() {
		return model.Claim{}, nil, fmt.Errorf("%w: claim type %q", model.ErrInvalidArgument, req.ClaimType)
	}
	if !req.Reason.Valid() {
		return model.Claim{}, nil, fmt.Errorf("%w: claim reason %q", model.ErrInvalidArgument, req.Reason)
	}
	if len(req.Detail) > maxDetailLength {
		return model.Claim{}, nil, fmt.Errorf("%w: reason detail longer than %d", model.ErrInvalidArgument, maxDetailLength)
	}
	available := item.Quantity - claimed
	if req.Quantity <= 0 || req.Quantity > available {
		return model.Claim{}, nil, fmt.Errorf("%w: requested %d, available %d", model.ErrInvalidQuantity, req.Quantity, available)
	}

	refund, err := RefundAmount(req.ClaimType, item.UnitPrice, req.Quantity)
	if err != nil {
		return model.Claim{}, nil, err
	}

	c := model.Claim{
		ID:                id,
		OrderID:           req.OrderID,
		OrderItemID:       req.OrderItemID,
		ClaimType:         req.ClaimType,
		ClaimReason:       req.Reason,
		ClaimReasonDetail: strings.TrimSpace(req.Detail),
		Quantity:          req.Quantity,
		RefundAmount:      refund,
		Status:            model.ClaimStatusRequested,
		RequestedBy:       req.Actor,
		RequestedAt:       now,
	}

	ev := event(c, model.EventClaimRequested, "", req.Actor, now, string(req.Reason), map[string]string{
		"orderItemId":  c.OrderItemID,
		"claimType":    string(c.ClaimType),
		"quantity":     strconv.Itoa(c.Quantity),
		"refundAmount": strconv.FormatInt(refund.Amount, 10),
	})
	return c, []model.OrderEvent{ev}, nil
}

// Decide одобряет или отклоняет заявку в статусе REQUESTED.
func Decide(c model.Claim, approve bool, actor model.Actor, now time.Time) (model.Claim, []model.OrderEvent, error) {
	if c.Status != model.ClaimStatusRequested {
		target := model.ClaimStatusRejected
		if approve {
			target = model.ClaimStatusApproved
		}
		return c, nil, invalid(c, target)
	}

	prev := c.Status
	eventType := model.EventClaimRejected
	c.Status = model.ClaimStatusRejected
	c.ResolvedAt = &now
	if approve {
		eventType = model.EventClaimApproved
		c.Status = model.ClaimStatusApproved
		c.ResolvedAt = nil
	}
	c.DecidedBy = &actor
	c.DecidedAt = &now

	ev := event(c, eventType, prev, actor, now, "claim decided", nil)
	return c, []model.OrderEvent{ev}, nil
}

// Complete завершает одобренную заявку после успешного возврата по платежу paymentID.
func Complete(c model.Claim, paymentID uuid.UUID, actor model.Actor, now time.Time) (model.Claim, []model.OrderEvent, error) {
	if c.Status != model.ClaimStatusApproved {
		return c, nil, invalid(c, model.ClaimStatusCompleted)
	}

	prev := c.Status
	c.Status = model.ClaimStatusCompleted
	c.PaymentID = &paymentID
	c.ResolvedAt = &now

	ev := event(c, model.EventClaimCompleted, prev, actor, now, "claim completed", map[string]string{
		"paymentId":    paymentID.String(),
		"refundAmount": strconv.FormatInt(c.RefundAmount.Amount, 10),
	})
	return c, []model.OrderEvent{ev}, nil
}

func invalid(c model.Claim, to model.ClaimStatus) error {
	return fmt.Errorf("%w: claim %s %s -> %s", model.ErrInvalidTransition, c.ID, c.Status, to)
}

func event(c model.Claim, t model.EventType, prev model.ClaimStatus, actor model.Actor, now time.Time, description string, metadata map[string]string) model.OrderEvent {
	return model.OrderEvent{
		OrderID:        c.OrderID,
		EventType:      t,
		EventSource:    model.EventSourceClaim,
		SourceID:       c.ID.String(),
		PreviousStatus: string(prev),
		CurrentStatus:  string(c.Status),
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		Description:    description,
		Metadata:       metadata,
		CreatedAt:      now,
	}
}
