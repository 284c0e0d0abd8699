package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/validation"
)

type itemRequest struct {
	ItemID    string      `json:"itemId" validate:"required,max=64"`
	UnitPrice model.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity" validate:"gt=0"`
}

type createPaymentRequest struct {
	CheckoutID     string               `json:"checkoutId" validate:"required,max=64"`
	OrderID        string               `json:"orderId" validate:"required,max=64"`
	CheckoutStatus model.CheckoutStatus `json:"checkoutStatus" validate:"required"`
	FinalAmount    model.Money          `json:"finalAmount"`
	PgProvider     model.PgProvider     `json:"pgProvider" validate:"pgprovider"`
	Method         model.PaymentMethod  `json:"method" validate:"paymethod"`
	Items          []itemRequest        `json:"items" validate:"dive"`
}

type paymentResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderID         string              `json:"orderId"`
	CheckoutID      string              `json:"checkoutId"`
	PgProvider      model.PgProvider    `json:"pgProvider"`
	PgTransactionID string              `json:"pgTransactionId,omitempty"`
	Method          model.PaymentMethod `json:"method"`
	Status          model.PaymentStatus `json:"status"`
	RequestedAmount model.Money         `json:"requestedAmount"`
	ApprovedAmount  *model.Money        `json:"approvedAmount,omitempty"`
	RefundedAmount  model.Money         `json:"refundedAmount"`
	FailureReason   string              `json:"failureReason,omitempty"`
	CancelReason    string              `json:"cancelReason,omitempty"`
	ApprovedAt      string              `json:"approvedAt,omitempty"`
	FailedAt        string              `json:"failedAt,omitempty"`
	CancelledAt     string              `json:"cancelledAt,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func newPaymentResponse(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		OrderID:         p.OrderID,
		CheckoutID:      p.CheckoutID,
		PgProvider:      p.PgProvider,
		PgTransactionID: p.PgTransactionID,
		Method:          p.Method,
		Status:          p.Status,
		RequestedAmount: p.RequestedAmount,
		ApprovedAmount:  p.ApprovedAmount,
		RefundedAmount:  p.RefundedAmount,
		FailureReason:   p.FailureReason,
		CancelReason:    p.CancelReason,
		ApprovedAt:      formatTime(p.ApprovedAt),
		FailedAt:        formatTime(p.FailedAt),
		CancelledAt:     formatTime(p.CancelledAt),
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreatePayment создаёт платёж по зафиксированному checkout.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, "create payment", err)
		return
	}

	c := model.Checkout{
		ID:          req.CheckoutID,
		OrderID:     req.OrderID,
		Status:      req.CheckoutStatus,
		FinalAmount: req.FinalAmount,
		Items:       make([]model.OrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		c.Items = append(c.Items, model.OrderItem{
			OrderID:   req.OrderID,
			ItemID:    it.ItemID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	p, err := h.service.CreateFromCheckout(r.Context(), c, req.PgProvider, req.Method, actorFrom(r))
	if err != nil {
		h.writeError(w, "create payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, newPaymentResponse(p))
}

// GetPayment возвращает платёж.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, "get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}

// GetPaymentStatus возвращает суммы и статус платежа для сверки.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	view, err := h.service.GetPaymentStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, "get payment status", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CancelPayment отменяет одобренный платёж без возвратов.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, "cancel payment", err)
		return
	}

	p, err := h.service.Cancel(r.Context(), id, req.Reason, actorFrom(r))
	if err != nil {
		h.writeError(w, "cancel payment", err)
		return
	}

	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}

type refundRequest struct {
	Amount model.Money `json:"amount"`
}

// RefundPayment применяет административный возврат.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, "refund payment", err)
		return
	}

	p, err := h.service.ApplyRefund(r.Context(), id, req.Amount, actorFrom(r))
	if err != nil {
		h.writeError(w, "refund payment", err)
		return
	}

	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}
