package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/webhook"
)

type webhookResponse struct {
	Outcome   webhook.Outcome     `json:"outcome"`
	PaymentID *uuid.UUID          `json:"paymentId,omitempty"`
	Status    model.PaymentStatus `json:"status,omitempty"`
}

// Webhook принимает уведомление PG. 200 означает, что уведомление принято и
// повторять его не нужно; любой другой ответ PG повторит.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	// Уведомление PG может содержать дополнительные поля, они игнорируются.
	var d webhook.Delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.gateway.Ingest(r.Context(), d)
	if err != nil {
		h.writeError(w, "ingest webhook", err)
		return
	}

	resp := webhookResponse{Outcome: res.Outcome, Status: res.Status}
	if res.PaymentID != uuid.Nil {
		resp.PaymentID = &res.PaymentID
	}
	writeJSON(w, http.StatusOK, resp)
}
