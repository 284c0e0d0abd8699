package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/orderpay/internal/middleware"
	"github.com/mmeshcher/orderpay/internal/model"
	"github.com/mmeshcher/orderpay/internal/service"
	"github.com/mmeshcher/orderpay/internal/webhook"
)

type stubService struct {
	payment    model.Payment
	paymentErr error

	statusView service.PaymentStatusView

	claim    model.Claim
	claimErr error

	claimsResp []model.Claim

	timelineResp   []model.OrderEvent
	timelineFilter model.TimelineFilter

	gotCheckout model.Checkout
	gotActor    model.Actor
	gotAmount   model.Money
	gotApprove  bool
	gotClaimReq model.ClaimRequest
}

func (s *stubService) CreateFromCheckout(ctx context.Context, c model.Checkout, provider model.PgProvider, method model.PaymentMethod, actor model.Actor) (model.Payment, error) {
	s.gotCheckout = c
	s.gotActor = actor
	return s.payment, s.paymentErr
}

func (s *stubService) GetPayment(ctx context.Context, id uuid.UUID) (model.Payment, error) {
	return s.payment, s.paymentErr
}

func (s *stubService) GetPaymentStatus(ctx context.Context, id uuid.UUID) (service.PaymentStatusView, error) {
	return s.statusView, s.paymentErr
}

func (s *stubService) Cancel(ctx context.Context, id uuid.UUID, reason string, actor model.Actor) (model.Payment, error) {
	s.gotActor = actor
	return s.payment, s.paymentErr
}

func (s *stubService) ApplyRefund(ctx context.Context, id uuid.UUID, amount model.Money, actor model.Actor) (model.Payment, error) {
	s.gotAmount = amount
	s.gotActor = actor
	return s.payment, s.paymentErr
}

func (s *stubService) RequestClaim(ctx context.Context, req model.ClaimRequest) (model.Claim, error) {
	s.gotClaimReq = req
	return s.claim, s.claimErr
}

func (s *stubService) GetClaim(ctx context.Context, id uuid.UUID) (model.Claim, error) {
	return s.claim, s.claimErr
}

func (s *stubService) DecideClaim(ctx context.Context, id uuid.UUID, approve bool, actor model.Actor) (model.Claim, error) {
	s.gotApprove = approve
	s.gotActor = actor
	return s.claim, s.claimErr
}

func (s *stubService) CompleteClaim(ctx context.Context, id uuid.UUID, actor model.Actor) (model.Claim, error) {
	s.gotActor = actor
	return s.claim, s.claimErr
}

func (s *stubService) ListClaims(ctx context.Context, orderID string) ([]model.Claim, error) {
	return s.claimsResp, s.claimErr
}

func (s *stubService) GetTimeline(ctx context.Context, orderID string, f model.TimelineFilter) ([]model.OrderEvent, error) {
	s.timelineFilter = f
	return s.timelineResp, nil
}

type stubGateway struct {
	result webhook.Result
	err    error
	calls  int
	got    webhook.Delivery
}

func (g *stubGateway) Ingest(ctx context.Context, d webhook.Delivery) (webhook.Result, error) {
	g.calls++
	g.got = d
	return g.result, g.err
}

const testSecret = "test-secret"

func newTestHandler(t *testing.T, svc Service, gw Gateway) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, gw, logger, middleware.NewSignatureMiddleware(testSecret))
}

func doRequest(t *testing.T, h *Handler, method, path string, body any, actor model.ActorType) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(middleware.ActorTypeHeader, string(actor))
		req.Header.Set(middleware.ActorIDHeader, "actor-1")
	}
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func samplePayment() model.Payment {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.Payment{
		ID:              uuid.New(),
		OrderID:         "order-1",
		CheckoutID:      "co-1",
		PgProvider:      model.PgProviderToss,
		Method:          model.PaymentMethodCard,
		Status:          model.PaymentStatusPending,
		RequestedAmount: model.Money{Amount: 10000, Currency: model.CurrencyKRW},
		RefundedAmount:  model.Money{Amount: 0, Currency: model.CurrencyKRW},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreatePayment_Created(t *testing.T) {
	svc := &stubService{payment: samplePayment()}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments", map[string]any{
		"checkoutId":     "co-1",
		"orderId":        "order-1",
		"checkoutStatus": "READY",
		"finalAmount":    map[string]any{"amount": 10000, "currency": "KRW"},
		"pgProvider":     "TOSS",
		"method":         "CARD",
		"items": []map[string]any{
			{"itemId": "item-1", "unitPrice": map[string]any{"amount": 5000, "currency": "KRW"}, "quantity": 2},
		},
	}, model.ActorMember)

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}
	if len(svc.gotCheckout.Items) != 1 || svc.gotCheckout.Items[0].OrderID != "order-1" {
		t.Fatalf("items = %+v, want one item bound to order-1", svc.gotCheckout.Items)
	}
	if svc.gotActor.Type != model.ActorMember || svc.gotActor.ID != "actor-1" {
		t.Fatalf("actor = %+v, want MEMBER actor-1", svc.gotActor)
	}

	var resp paymentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != model.PaymentStatusPending {
		t.Fatalf("status = %s, want PENDING", resp.Status)
	}
	if resp.ApprovedAt != "" {
		t.Fatalf("approvedAt = %q, want empty", resp.ApprovedAt)
	}
}

func TestCreatePayment_ValidationFailure(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments", map[string]any{
		"checkoutId":     "co-1",
		"orderId":        "order-1",
		"checkoutStatus": "READY",
		"finalAmount":    map[string]any{"amount": 10000, "currency": "EUR"},
		"pgProvider":     "UNKNOWN",
		"method":         "CARD",
	}, model.ActorMember)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if svc.gotCheckout.ID != "" {
		t.Fatalf("service must not be called on invalid input")
	}
}

func TestCreatePayment_UnknownField(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments", `{"checkoutId":"co-1","bogus":1}`, model.ActorMember)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCreatePayment_RequiresActor(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments", `{}`, "")

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", model.ErrNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("refund: %w", model.ErrInvalidTransition), http.StatusConflict},
		{"refund exceeds", model.ErrRefundExceedsApproved, http.StatusConflict},
		{"payment exists", model.ErrPaymentExists, http.StatusConflict},
		{"amount mismatch", model.ErrAmountMismatch, http.StatusUnprocessableEntity},
		{"checkout not finalizable", model.ErrCheckoutNotFinalizable, http.StatusUnprocessableEntity},
		{"negative", model.ErrNegativeAmount, http.StatusBadRequest},
		{"currency", model.ErrCurrencyMismatch, http.StatusBadRequest},
		{"busy", model.ErrBusy, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayment()
			svc := &stubService{paymentErr: tt.err}
			h := newTestHandler(t, svc, &stubGateway{})

			res := doRequest(t, h, http.MethodGet, "/api/payments/"+p.ID.String(), nil, model.ActorAdmin)

			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
			if tt.want == http.StatusServiceUnavailable && res.Header.Get("Retry-After") == "" {
				t.Fatalf("Retry-After header missing")
			}
		})
	}
}

func TestGetPayment_BadID(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/payments/not-a-uuid", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestGetPaymentStatus(t *testing.T) {
	p := samplePayment()
	svc := &stubService{statusView: service.PaymentStatusView{
		ID:         p.ID,
		OrderID:    p.OrderID,
		Status:     model.PaymentStatusApproved,
		Requested:  p.RequestedAmount,
		Refunded:   model.Money{Amount: 3000, Currency: model.CurrencyKRW},
		Refundable: model.Money{Amount: 7000, Currency: model.CurrencyKRW},
	}}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/payments/"+p.ID.String()+"/status", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var view service.PaymentStatusView
	if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Refundable.Amount != 7000 {
		t.Fatalf("refundable = %d, want 7000", view.Refundable.Amount)
	}
}

func TestRefundPayment(t *testing.T) {
	p := samplePayment()
	svc := &stubService{payment: p}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments/"+p.ID.String()+"/refunds",
		map[string]any{"amount": map[string]any{"amount": 3000, "currency": "KRW"}}, model.ActorAdmin)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.gotAmount.Amount != 3000 || svc.gotActor.Type != model.ActorAdmin {
		t.Fatalf("amount = %+v, actor = %+v", svc.gotAmount, svc.gotActor)
	}
}

func TestRefundPayment_NegativeAmount(t *testing.T) {
	p := samplePayment()
	svc := &stubService{payment: p}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments/"+p.ID.String()+"/refunds",
		map[string]any{"amount": map[string]any{"amount": -1, "currency": "KRW"}}, model.ActorAdmin)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestCancelPayment_RequiresReason(t *testing.T) {
	p := samplePayment()
	h := newTestHandler(t, &stubService{payment: p}, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/payments/"+p.ID.String()+"/cancel",
		map[string]any{"reason": ""}, model.ActorAdmin)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestRequestClaim(t *testing.T) {
	svc := &stubService{claim: model.Claim{
		ID:          uuid.New(),
		OrderID:     "order-1",
		OrderItemID: "item-1",
		ClaimType:   model.ClaimTypeReturn,
		ClaimReason: model.ClaimReasonDefective,
		Quantity:    1,
		Status:      model.ClaimStatusRequested,
		RequestedAt: time.Now().UTC(),
	}}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/claims", map[string]any{
		"orderId":     "order-1",
		"orderItemId": "item-1",
		"claimType":   "RETURN",
		"claimReason": "DEFECTIVE",
		"quantity":    1,
	}, model.ActorMember)

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if svc.gotClaimReq.Reason != model.ClaimReasonDefective || svc.gotClaimReq.Actor.Type != model.ActorMember {
		t.Fatalf("claim request = %+v", svc.gotClaimReq)
	}
}

func TestRequestClaim_DuplicateOpen(t *testing.T) {
	svc := &stubService{claimErr: model.ErrDuplicateOpenClaim}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/claims", map[string]any{
		"orderId":     "order-1",
		"orderItemId": "item-1",
		"claimType":   "CANCEL",
		"claimReason": "CHANGE_OF_MIND",
		"quantity":    1,
	}, model.ActorMember)

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestDecideClaim_RequiresApproveFlag(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/claims/"+uuid.NewString()+"/decision", `{}`, model.ActorAdmin)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestDecideClaim_Reject(t *testing.T) {
	svc := &stubService{gotApprove: true, claim: model.Claim{ID: uuid.New(), Status: model.ClaimStatusRejected}}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodPost, "/api/claims/"+uuid.NewString()+"/decision",
		map[string]any{"approve": false}, model.ActorAdmin)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.gotApprove {
		t.Fatalf("approve = true, want false")
	}
}

func TestListClaims_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/orders/order-1/claims", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestGetTimeline_Paging(t *testing.T) {
	svc := &stubService{timelineResp: []model.OrderEvent{{ID: 5, OrderID: "order-1"}}}
	h := newTestHandler(t, svc, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/orders/order-1/timeline?after=4&limit=10", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.timelineFilter.AfterID != 4 || svc.timelineFilter.Limit != 10 {
		t.Fatalf("filter = %+v, want after 4 limit 10", svc.timelineFilter)
	}
}

func TestGetTimeline_BadLimit(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/orders/order-1/timeline?limit=ten", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func signedWebhook(t *testing.T, h *Handler, body string, signature string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/pg/webhook", strings.NewReader(body))
	req.Header.Set(middleware.SignatureHeader, signature)
	rec := httptest.NewRecorder()

	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestWebhook_Acked(t *testing.T) {
	id := uuid.New()
	gw := &stubGateway{result: webhook.Result{
		Outcome:   webhook.OutcomeApplied,
		PaymentID: id,
		Status:    model.PaymentStatusApproved,
	}}
	h := newTestHandler(t, &stubService{}, gw)

	body := `{"pgTransactionId":"pg-1","eventKind":"APPROVED","amount":10000,"merchantCorrelationId":"` + id.String() + `","approvedAt":"2026-01-01T00:00:00Z"}`
	res := signedWebhook(t, h, body, middleware.NewSignatureMiddleware(testSecret).Sign([]byte(body)))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp webhookResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != webhook.OutcomeApplied || resp.PaymentID == nil || *resp.PaymentID != id {
		t.Fatalf("response = %+v", resp)
	}

	if gw.calls != 1 {
		t.Fatalf("gateway called %d times, want 1", gw.calls)
	}
	if gw.got.Amount == nil || *gw.got.Amount != 10000 {
		t.Fatalf("amount = %v, want 10000 minor units", gw.got.Amount)
	}
	if gw.got.Currency != "" {
		t.Fatalf("currency = %q, want empty", gw.got.Currency)
	}
}

func TestWebhook_BadSignature(t *testing.T) {
	gw := &stubGateway{}
	h := newTestHandler(t, &stubService{}, gw)

	body := `{"pgTransactionId":"pg-1","eventKind":"FAILED","merchantCorrelationId":"co-1"}`
	res := signedWebhook(t, h, body, "deadbeef")

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times, want 0", gw.calls)
	}
}

func TestWebhook_NotAckedOnUnknownPayment(t *testing.T) {
	gw := &stubGateway{err: model.ErrNotFound}
	h := newTestHandler(t, &stubService{}, gw)

	body := `{"pgTransactionId":"pg-1","eventKind":"FAILED","merchantCorrelationId":"co-x"}`
	res := signedWebhook(t, h, body, middleware.NewSignatureMiddleware(testSecret).Sign([]byte(body)))

	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestRouter_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubGateway{})

	res := doRequest(t, h, http.MethodGet, "/api/unknown", nil, model.ActorAdmin)

	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}
