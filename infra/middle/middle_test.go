package middle

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	os.Setenv("API_KEY", "test-api-key")
	defer os.Unsetenv("API_KEY")

	handler := AuthMiddleware()(okHandler())

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "Valid API key",
			authHeader:     "Bearer test-api-key",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Invalid API key",
			authHeader:     "Bearer wrong-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Missing Authorization header",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid format",
			authHeader:     "Basic test-api-key",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Empty Bearer token",
			authHeader:     "Bearer ",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/payments/flowpay", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddleware_NoAPIKeyConfigured(t *testing.T) {
	os.Unsetenv("API_KEY")

	handler := AuthMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/v1/payments/flowpay", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}

	for header, expected := range expectedHeaders {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("Expected %s header %q, got %q", header, expected, got)
		}
	}
}

func TestIPWhitelistMiddleware(t *testing.T) {
	handler := IPWhitelistMiddleware()(okHandler())

	t.Run("No whitelist allows all", func(t *testing.T) {
		os.Unsetenv("IP_WHITELIST")

		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("Whitelisted IP allowed", func(t *testing.T) {
		os.Setenv("IP_WHITELIST", "203.0.113.7, 198.51.100.1")
		defer os.Unsetenv("IP_WHITELIST")

		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("Unlisted IP rejected", func(t *testing.T) {
		os.Setenv("IP_WHITELIST", "198.51.100.1")
		defer os.Unsetenv("IP_WHITELIST")

		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:12345"
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
	})
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler())

	tests := []struct {
		name           string
		method         string
		path           string
		contentType    string
		expectedStatus int
	}{
		{
			name:           "GET without content type",
			method:         "GET",
			path:           "/v1/payments/flowpay/fp_1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST with JSON content type",
			method:         "POST",
			path:           "/v1/payments/flowpay",
			contentType:    "application/json",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST without content type",
			method:         "POST",
			path:           "/v1/payments/flowpay",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "POST with unsupported content type",
			method:         "POST",
			path:           "/v1/payments/flowpay",
			contentType:    "text/plain",
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "Webhook accepts form encoding",
			method:         "POST",
			path:           "/v1/webhooks/flowpay",
			contentType:    "application/x-www-form-urlencoded",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Webhook without content type",
			method:         "POST",
			path:           "/v1/webhooks/flowpay",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	os.Setenv("RATE_LIMIT_PER_MINUTE", "3")
	defer os.Unsetenv("RATE_LIMIT_PER_MINUTE")

	rl := NewRateLimiter()

	for i := 0; i < 3; i++ {
		if !rl.Allow("203.0.113.7") {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
	}

	if rl.Allow("203.0.113.7") {
		t.Error("Expected request over the limit to be rejected")
	}

	// Other clients have their own budget
	if !rl.Allow("198.51.100.1") {
		t.Error("Expected different IP to be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	os.Setenv("RATE_LIMIT_PER_MINUTE", "2")
	defer os.Unsetenv("RATE_LIMIT_PER_MINUTE")

	handler := RateLimitMiddleware(NewRateLimiter())(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "203.0.113.7:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200 on request %d, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "203.0.113.7:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For single IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Forwarded-For multiple IPs",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			remoteAddr: "10.0.0.1:12345",
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "198.51.100.1"},
			remoteAddr: "10.0.0.1:12345",
			expected:   "198.51.100.1",
		},
		{
			name:       "RemoteAddr fallback",
			remoteAddr: "203.0.113.7:12345",
			expected:   "203.0.113.7",
		},
		{
			name:       "IPv6 localhost",
			remoteAddr: "[::1]:12345",
			expected:   "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			if got := GetClientIP(req); got != tt.expected {
				t.Errorf("GetClientIP() = %s, want %s", got, tt.expected)
			}
		})
	}
}
