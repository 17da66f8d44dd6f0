package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payline-dev/payline/infra/response"
	"github.com/payline-dev/payline/provider"
)

// mockPaymentService implements PaymentServiceInterface with scriptable results
type mockPaymentService struct {
	paymentResponse *provider.PaymentResponse
	refundResponse  *provider.RefundResponse
	session         *provider.PaymentSession
	webhookEvent    *provider.WebhookEvent
	webhookSession  *provider.PaymentSession
	err             error

	lastProvider  string
	lastPaymentID string
	lastBody      []byte
}

func (m *mockPaymentService) CreatePayment(ctx context.Context, providerName string, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	m.lastProvider = providerName
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) AuthorizePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, paymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) CapturePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, paymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) CancelPayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, paymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) RefundPayment(ctx context.Context, providerName string, request provider.RefundRequest) (*provider.RefundResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, request.PaymentID
	return m.refundResponse, m.err
}

func (m *mockPaymentService) UpdatePayment(ctx context.Context, providerName string, request provider.UpdateRequest) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, request.PaymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) RetrievePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, paymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) GetPaymentStatus(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error) {
	m.lastProvider, m.lastPaymentID = providerName, paymentID
	return m.paymentResponse, m.err
}

func (m *mockPaymentService) GetSession(ctx context.Context, paymentID string) (*provider.PaymentSession, error) {
	m.lastPaymentID = paymentID
	return m.session, m.err
}

func (m *mockPaymentService) HandleWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (*provider.WebhookEvent, *provider.PaymentSession, error) {
	m.lastProvider = providerName
	m.lastBody = body
	return m.webhookEvent, m.webhookSession, m.err
}

func newTestHandler(mock *mockPaymentService) *PaymentHandler {
	return NewPaymentHandler(mock, validator.New())
}

// requestWithParams builds a request carrying chi URL parameters
func requestWithParams(method, target string, body []byte, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))

	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}

	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	mock := &mockPaymentService{
		paymentResponse: &provider.PaymentResponse{
			Success:   true,
			Status:    provider.StatusPending,
			PaymentID: "fp_1",
			Amount:    1000,
			Currency:  "EUR",
		},
	}
	h := newTestHandler(mock)

	body, _ := json.Marshal(provider.PaymentRequest{
		Amount:   1000,
		Currency: "EUR",
	})

	req := requestWithParams("POST", "/v1/payments/flowpay", body, map[string]string{"provider": "flowpay"})
	w := httptest.NewRecorder()

	h.CreatePayment(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if mock.lastProvider != "flowpay" {
		t.Errorf("Expected provider flowpay, got %s", mock.lastProvider)
	}

	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Error("Expected success response")
	}
}

func TestPaymentHandler_CreatePayment_Validation(t *testing.T) {
	h := newTestHandler(&mockPaymentService{})

	tests := []struct {
		name string
		body string
	}{
		{
			name: "malformed JSON",
			body: `{"amount": `,
		},
		{
			name: "zero amount",
			body: `{"amount": 0, "currency": "EUR"}`,
		},
		{
			name: "missing currency",
			body: `{"amount": 1000}`,
		},
		{
			name: "bad currency length",
			body: `{"amount": 1000, "currency": "EURO"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithParams("POST", "/v1/payments/flowpay", []byte(tt.body), map[string]string{"provider": "flowpay"})
			w := httptest.NewRecorder()

			h.CreatePayment(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestPaymentHandler_PaymentAction_MissingID(t *testing.T) {
	h := newTestHandler(&mockPaymentService{})

	req := requestWithParams("POST", "/v1/payments/flowpay//capture", nil, map[string]string{"provider": "flowpay"})
	w := httptest.NewRecorder()

	h.CapturePayment(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestPaymentHandler_CapturePayment_GatewayError(t *testing.T) {
	mock := &mockPaymentService{
		err: provider.NewGatewayError(provider.ErrCodeCaptureFailed, "insufficient balance"),
	}
	h := newTestHandler(mock)

	req := requestWithParams("POST", "/v1/payments/flowpay/fp_1/capture", nil,
		map[string]string{"provider": "flowpay", "paymentID": "fp_1"})
	w := httptest.NewRecorder()

	h.CapturePayment(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected status 502, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected data object, got %T", resp.Data)
	}
	if data["errorCode"] != "capture_failed" {
		t.Errorf("Expected errorCode capture_failed, got %v", data["errorCode"])
	}
}

func TestPaymentHandler_AuthorizePayment_PrematureIsConflict(t *testing.T) {
	mock := &mockPaymentService{
		err: provider.NewGatewayError(provider.ErrCodeNotAuthorized, "payment not authorized by customer"),
	}
	h := newTestHandler(mock)

	req := requestWithParams("POST", "/v1/payments/flowpay/fp_1/authorize", nil,
		map[string]string{"provider": "flowpay", "paymentID": "fp_1"})
	w := httptest.NewRecorder()

	h.AuthorizePayment(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestPaymentHandler_RefundPayment(t *testing.T) {
	mock := &mockPaymentService{
		refundResponse: &provider.RefundResponse{
			Success:   true,
			RefundID:  "re_1",
			PaymentID: "fp_1",
			Status:    "settled",
			Amount:    500,
		},
	}
	h := newTestHandler(mock)

	body := []byte(`{"amount": 500, "reason": "requested_by_customer"}`)
	req := requestWithParams("POST", "/v1/payments/flowpay/fp_1/refund", body,
		map[string]string{"provider": "flowpay", "paymentID": "fp_1"})
	w := httptest.NewRecorder()

	h.RefundPayment(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	// Path parameter fills a missing body paymentId
	if mock.lastPaymentID != "fp_1" {
		t.Errorf("Expected payment ID from path, got %s", mock.lastPaymentID)
	}
}

func TestPaymentHandler_UpdatePayment_Validation(t *testing.T) {
	h := newTestHandler(&mockPaymentService{})

	body := []byte(`{"amount": 1500, "currency": "EURO"}`)
	req := requestWithParams("PUT", "/v1/payments/flowpay/fp_1", body,
		map[string]string{"provider": "flowpay", "paymentID": "fp_1"})
	w := httptest.NewRecorder()

	h.UpdatePayment(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestPaymentHandler_GetSession(t *testing.T) {
	mock := &mockPaymentService{
		session: &provider.PaymentSession{
			PaymentID: "fp_1",
			Provider:  "flowpay",
			Amount:    1000,
			Currency:  "EUR",
			Status:    provider.StatusPending,
		},
	}
	h := newTestHandler(mock)

	req := requestWithParams("GET", "/v1/sessions/fp_1", nil, map[string]string{"paymentID": "fp_1"})
	w := httptest.NewRecorder()

	h.GetSession(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
}

func TestPaymentHandler_GetSession_NotFound(t *testing.T) {
	mock := &mockPaymentService{err: provider.ErrSessionNotFound}
	h := newTestHandler(mock)

	req := requestWithParams("GET", "/v1/sessions/fp_missing", nil, map[string]string{"paymentID": "fp_missing"})
	w := httptest.NewRecorder()

	h.GetSession(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestPaymentHandler_HandleWebhook(t *testing.T) {
	mock := &mockPaymentService{
		webhookEvent: &provider.WebhookEvent{
			Action:    provider.WebhookCaptured,
			EventType: "payment_captured",
			PaymentID: "fp_1",
			Amount:    1000,
		},
		webhookSession: &provider.PaymentSession{
			PaymentID: "fp_1",
			Status:    provider.StatusCaptured,
		},
	}
	h := newTestHandler(mock)

	body := []byte(`{"event_type":"payment_captured","session_id":"fp_1","amount":1000}`)
	req := requestWithParams("POST", "/v1/webhooks/flowpay", body, map[string]string{"provider": "flowpay"})
	req.Header.Set("X-Flowpay-Signature", "abc123")
	w := httptest.NewRecorder()

	h.HandleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(mock.lastBody, body) {
		t.Error("Expected raw body passed through unmodified")
	}

	resp := decodeResponse(t, w)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected data object, got %T", resp.Data)
	}
	if data["action"] != "captured" {
		t.Errorf("Expected action captured, got %v", data["action"])
	}
	if data["status"] != "captured" {
		t.Errorf("Expected session status captured, got %v", data["status"])
	}
}

func TestPaymentHandler_HandleWebhook_VerificationFailure(t *testing.T) {
	mock := &mockPaymentService{
		err: &provider.VerificationError{Detail: "signature mismatch"},
	}
	h := newTestHandler(mock)

	body := []byte(`{"event_type":"payment_captured","session_id":"fp_1"}`)
	req := requestWithParams("POST", "/v1/webhooks/flowpay", body, map[string]string{"provider": "flowpay"})
	req.Header.Set("X-Flowpay-Signature", "tampered")
	w := httptest.NewRecorder()

	h.HandleWebhook(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Success {
		t.Error("Expected failure response")
	}
	// The response must not leak verification details
	if resp.Error != "" {
		t.Errorf("Expected no error detail in rejection, got %q", resp.Error)
	}
}

func TestPaymentHandler_HandleWebhook_MissingProvider(t *testing.T) {
	h := newTestHandler(&mockPaymentService{})

	req := requestWithParams("POST", "/v1/webhooks/", nil, map[string]string{})
	w := httptest.NewRecorder()

	h.HandleWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
