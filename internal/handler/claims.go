package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/validation"
)

type claimRequest struct {
	OrderID     string            `json:"orderId" validate:"required,max=64"`
	OrderItemID string            `json:"orderItemId" validate:"required,max=64"`
	ClaimType   model.ClaimType   `json:"claimType" validate:"claimtype"`
	ClaimReason model.ClaimReason `json:"claimReason" validate:"claimreason"`
	Detail      string            `json:"claimReasonDetail" validate:"max=1000"`
	Quantity    int               `json:"quantity"`
}

type claimResponse struct {
	ID                uuid.UUID         `json:"id"`
	OrderID           string            `json:"orderId"`
	OrderItemID       string            `json:"orderItemId"`
	ClaimType         model.ClaimType   `json:"claimType"`
	ClaimReason       model.ClaimReason `json:"claimReason"`
	ClaimReasonDetail string            `json:"claimReasonDetail,omitempty"`
	Quantity          int               `json:"quantity"`
	RefundAmount      model.Money       `json:"refundAmount"`
	Status            model.ClaimStatus `json:"status"`
	PaymentID         *uuid.UUID        `json:"paymentId,omitempty"`
	RequestedBy       model.Actor       `json:"requestedBy"`
	DecidedBy         *model.Actor      `json:"decidedBy,omitempty"`
	RequestedAt       string            `json:"requestedAt"`
	DecidedAt         string            `json:"decidedAt,omitempty"`
	ResolvedAt        string            `json:"resolvedAt,omitempty"`
}

func newClaimResponse(c model.Claim) claimResponse {
	return claimResponse{
		ID:                c.ID,
		OrderID:           c.OrderID,
		OrderItemID:       c.OrderItemID,
		ClaimType:         c.ClaimType,
		ClaimReason:       c.ClaimReason,
		ClaimReasonDetail: c.ClaimReasonDetail,
		Quantity:          c.Quantity,
		RefundAmount:      c.RefundAmount,
		Status:            c.Status,
		PaymentID:         c.PaymentID,
		RequestedBy:       c.RequestedBy,
		DecidedBy:         c.DecidedBy,
		RequestedAt:       c.RequestedAt.Format(time.RFC3339),
		DecidedAt:         formatTime(c.DecidedAt),
		ResolvedAt:        formatTime(c.ResolvedAt),
	}
}

// RequestClaim открывает заявку на позицию заказа.
func (h *Handler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, "request claim", err)
		return
	}

	c, err := h.service.RequestClaim(r.Context(), model.ClaimRequest{
		OrderID:     req.OrderID,
		OrderItemID: req.OrderItemID,
		ClaimType:   req.ClaimType,
		Reason:      req.ClaimReason,
		Detail:      req.Detail,
		Quantity:    req.Quantity,
		Actor:       actorFrom(r),
	})
	if err != nil {
		h.writeError(w, "request claim", err)
		return
	}

	writeJSON(w, http.StatusCreated, newClaimResponse(c))
}

// GetClaim возвращает заявку.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "claimID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.GetClaim(r.Context(), id)
	if err != nil {
		h.writeError(w, "get claim", err)
		return
	}

	writeJSON(w, http.StatusOK, newClaimResponse(c))
}

type decisionRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// DecideClaim одобряет или отклоняет заявку.
func (h *Handler) DecideClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "claimID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, "decide claim", err)
		return
	}

	c, err := h.service.DecideClaim(r.Context(), id, *req.Approve, actorFrom(r))
	if err != nil {
		h.writeError(w, "decide claim", err)
		return
	}

	writeJSON(w, http.StatusOK, newClaimResponse(c))
}

// CompleteClaim проводит возврат по одобренной заявке и завершает её.
func (h *Handler) CompleteClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "claimID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.CompleteClaim(r.Context(), id, actorFrom(r))
	if err != nil {
		h.writeError(w, "complete claim", err)
		return
	}

	writeJSON(w, http.StatusOK, newClaimResponse(c))
}

// ListClaims возвращает заявки заказа.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.service.ListClaims(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, "list claims", err)
		return
	}

	if len(claims) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]claimResponse, 0, len(claims))
	for _, c := range claims {
		resp = append(resp, newClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTimeline возвращает журнал заказа. Параметры after и limit задают страницу.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	var f model.TimelineFilter
	q := r.URL.Query()

	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.AfterID = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.Limit = limit
	}

	events, err := h.service.GetTimeline(r.Context(), chi.URLParam(r, "orderID"), f)
	if err != nil {
		h.writeError(w, "get timeline", err)
		return
	}

	if events == nil {
		events = []model.OrderEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
