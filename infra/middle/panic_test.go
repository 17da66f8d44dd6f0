package middle

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/payline-dev/payline/infra/response"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name: "Normal request - no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("success"))
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Handler panics with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "Handler panics with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "Handler panics with nil map write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var m map[string]string
				m["key"] = "value"
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PanicRecoveryMiddleware()(tt.handler)

			req := httptest.NewRequest("POST", "/v1/payments/flowpay", nil)
			req.Header.Set("X-Request-ID", "test-request-id")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedStatus == http.StatusInternalServerError {
				var resp response.Response
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if resp.Success {
					t.Error("Expected success false in panic response")
				}
				if resp.Message != "Internal server error" {
					t.Errorf("Expected generic message, got %q", resp.Message)
				}
			}
		})
	}
}

func TestPanicRecoveryWithCustomHandler(t *testing.T) {
	var captured any

	middleware := PanicRecoveryWithCustomHandler(func(w http.ResponseWriter, r *http.Request, err any) {
		captured = err
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("custom panic")
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if captured != "custom panic" {
		t.Errorf("Expected panic value passed to handler, got %v", captured)
	}
}
