// Package handler содержит HTTP-обработчики API платежей и заявок.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/middleware"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/service"
	"github.com/mmeshcher/orderpay/internal/webhook"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateFromCheckout(ctx context.Context, c model.Checkout, provider model.PgProvider, method model.PaymentMethod, actor model.Actor) (model.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (model.Payment, error)
	GetPaymentStatus(ctx context.Context, id uuid.UUID) (service.PaymentStatusView, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (model.Payment, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, amount model.Money, actor model.Actor) (model.Payment, error)

	RequestClaim(ctx context.Context, req model.ClaimRequest) (model.Claim, error)
	GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error)
	DecideClaim(ctx context.Context, id uuid.UUID, approve bool, actor model.Actor) (model.Claim, error)
	CompleteClaim(ctx context.Context, id uuid.UUID, actor model.Actor) (model.Claim, error)
	ListClaims(ctx context.Context, orderID string) ([]model.Claim, error)
	GetTimeline(ctx context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error)
}

// Gateway принимает уведомления PG.
type Gateway interface {
	Ingest(ctx context.Context, d webhook.Delivery) (webhook.Result, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service   Service
	gateway   Gateway
	logger    *zap.Logger
	signature *middleware.SignatureMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, g Gateway, logger *zap.Logger, signature *middleware.SignatureMiddleware) *Handler {
	return &Handler{
		service:   s,
		gateway:   g,
		logger:    logger,
		signature: signature,
	}
}

// writeError переводит доменную ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)

	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		h.logger.Warn(op, zap.Error(err))
	case status >= http.StatusInternalServerError:
		h.logger.Error(op, zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}

	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrRefundExceedsApproved),
		errors.Is(err, model.ErrDuplicateOpenClaim),
		errors.Is(err, model.ErrPaymentExists),
		errors.Is(err, model.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, model.ErrAmountMismatch),
		errors.Is(err, model.ErrCheckoutNotFinalizable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrNegativeAmount),
		errors.Is(err, model.ErrInvalidQuantity),
		errors.Is(err, model.ErrCurrencyMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func actorFrom(r *http.Request) model.Actor {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		return model.SystemActor
	}
	return actor
}
