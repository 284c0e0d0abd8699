package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/orderpay/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Compress(5, "application/json"))

	r.Route("/api", func(r chi.Router) {
		r.With(h.signature.Middleware).Post("/pg/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.Actor)

			r.Post("/payments", h.CreatePayment)
			r.Get("/payments/{paymentID}", h.GetPayment)
			r.Get("/payments/{paymentID}/status", h.GetPaymentStatus)
			r.Post("/payments/{paymentID}/cancel", h.CancelPayment)
			r.Post("/payments/{paymentID}/refunds", h.RefundPayment)

			r.Post("/claims", h.RequestClaim)
			r.Get("/claims/{claimID}", h.GetClaim)
			r.Post("/claims/{claimID}/decision", h.DecideClaim)
			r.Post("/claims/{claimID}/complete", h.CompleteClaim)

			r.Get("/orders/{orderID}/claims", h.ListClaims)
			r.Get("/orders/{orderID}/timeline", h.GetTimeline)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
