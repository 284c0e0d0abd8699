package claim

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/orderpay/internal/model"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var member = model.Actor{Type: model.ActorMember, ID: "member-7"}

func item() model.OrderItem {
	return model.OrderItem{
		OrderID:   "order-1",
		ItemID:    "item-1",
		UnitPrice: model.Money{Amount: 4000, Currency: model.CurrencyKRW},
		Quantity:  2,
	}
}

func request(t model.ClaimType, qty int) model.ClaimRequest {
	return model.ClaimRequest{
		OrderID:     "order-1",
		OrderItemID: "item-1",
		ClaimType:   t,
		Reason:      model.ClaimReasonDefective,
		Detail:      "  scratched  ",
		Quantity:    qty,
		Actor:       member,
	}
}

func TestRequestComputesProportionalRefund(t *testing.T) {
	id := uuid.New()
	c, events, err := Request(request(model.ClaimTypeReturn, 1), item(), 0, id, testNow)
	require.NoError(t, err)

	assert.Equal(t, id, c.ID)
	assert.Equal(t, model.ClaimStatusRequested, c.Status)
	assert.Equal(t, int64(4000), c.RefundAmount.Amount)
	assert.Equal(t, "scratched", c.ClaimReasonDetail)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventClaimRequested, events[0].EventType)
	assert.Equal(t, model.EventSourceClaim, events[0].EventSource)
	assert.Equal(t, model.ActorMember, events[0].ActorType)
}

func TestRefundAmountByType(t *testing.T) {
	price := model.Money{Amount: 2500, Currency: model.CurrencyKRW}

	got, err := RefundAmount(model.ClaimTypeCancel, price, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Amount)

	got, err = RefundAmount(model.ClaimTypeExchange, price, 2)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestRequestQuantityBounds(t *testing.T) {
	tests := []struct {
		name    string
		qty     int
		claimed int
		wantErr bool
	}{
		{name: "zero", qty: 0, wantErr: true},
		{name: "negative", qty: -1, wantErr: true},
		{name: "all", qty: 2},
		{name: "more than bought", qty: 3, wantErr: true},
		{name: "more than remaining", qty: 2, claimed: 1, wantErr: true},
		{name: "remaining", qty: 1, claimed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Request(request(model.ClaimTypeCancel, tt.qty), item(), tt.claimed, uuid.New(), testNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrInvalidQuantity)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRequestRejectsUnknownEnums(t *testing.T) {
	req := request("REPAIR", 1)
	_, _, err := Request(req, item(), 0, uuid.New(), testNow)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	req = request(model.ClaimTypeReturn, 1)
	req.Reason = "BORED"
	_, _, err = Request(req, item(), 0, uuid.New(), testNow)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestDecide(t *testing.T) {
	c, _, err := Request(request(model.ClaimTypeReturn, 1), item(), 0, uuid.New(), testNow)
	require.NoError(t, err)

	admin := model.Actor{Type: model.ActorAdmin, ID: "ops-1"}

	approved, events, err := Decide(c, true, admin, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusApproved, approved.Status)
	assert.Nil(t, approved.ResolvedAt)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, admin, *approved.DecidedBy)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventClaimApproved, events[0].EventType)

	rejected, events, err := Decide(c, false, admin, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusRejected, rejected.Status)
	assert.NotNil(t, rejected.ResolvedAt)
	assert.Equal(t, model.EventClaimRejected, events[0].EventType)

	_, _, err = Decide(approved, false, admin, testNow)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestComplete(t *testing.T) {
	c, _, err := Request(request(model.ClaimTypeReturn, 1), item(), 0, uuid.New(), testNow)
	require.NoError(t, err)

	paymentID := uuid.New()
	_, _, err = Complete(c, paymentID, model.SystemActor, testNow)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	c, _, err = Decide(c, true, model.SystemActor, testNow)
	require.NoError(t, err)

	done, events, err := Complete(c, paymentID, model.SystemActor, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimStatusCompleted, done.Status)
	require.NotNil(t, done.PaymentID)
	assert.Equal(t, paymentID, *done.PaymentID)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventClaimCompleted, events[0].EventType)
	assert.Equal(t, c.ID.String(), events[0].SourceID)
	assert.False(t, done.Status.Open())
}
