package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payline-dev/payline/handler"
	"github.com/payline-dev/payline/provider"
)

// stubPaymentService satisfies the handler service interface without real providers
type stubPaymentService struct {
	handler.PaymentServiceInterface
}

func (s *stubPaymentService) HandleWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (*provider.WebhookEvent, *provider.PaymentSession, error) {
	return &provider.WebhookEvent{Action: provider.WebhookNotSupported, EventType: "test"}, nil, nil
}

func newRouter(t *testing.T) *chi.Mux {
	t.Helper()

	paymentHandler := handler.NewPaymentHandler(&stubPaymentService{}, validator.New())

	r := chi.NewRouter()
	require.NotPanics(t, func() {
		Routes(r, paymentHandler)
	})
	return r
}

func TestRoutes_RegistersProviders(t *testing.T) {
	newRouter(t)

	// Side-effect imports register the shipped adapters
	names := provider.DefaultRegistry.ProviderNames()
	assert.Contains(t, names, "flowpay")
	assert.Contains(t, names, "stripe")
}

func TestRoutes_PaymentEndpointsRequireAuth(t *testing.T) {
	os.Setenv("API_KEY", "test-api-key")
	defer os.Unsetenv("API_KEY")

	r := newRouter(t)

	protected := []struct {
		method string
		path   string
	}{
		{"POST", "/v1/payments/flowpay"},
		{"GET", "/v1/payments/flowpay/fp_1"},
		{"GET", "/v1/payments/flowpay/fp_1/status"},
		{"POST", "/v1/payments/flowpay/fp_1/capture"},
		{"DELETE", "/v1/payments/flowpay/fp_1"},
		{"GET", "/v1/sessions/fp_1"},
	}

	for _, tt := range protected {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s should require auth", tt.method, tt.path)
	}
}

func TestRoutes_WebhookEndpointSkipsAuth(t *testing.T) {
	os.Setenv("API_KEY", "test-api-key")
	defer os.Unsetenv("API_KEY")

	r := newRouter(t)

	req := httptest.NewRequest("POST", "/v1/webhooks/flowpay", strings.NewReader("{}"))
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "webhook route must not demand an API key")
}

func TestRoutes_UnknownRoute(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest("GET", "/v1/unknown", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
