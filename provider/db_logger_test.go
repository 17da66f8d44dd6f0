package provider

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func newTestPaymentLogger(t *testing.T) *SQLitePaymentLogger {
	t.Helper()
	logger, err := NewSQLitePaymentLogger(filepath.Join(t.TempDir(), "payment_logs.db"))
	if err != nil {
		t.Fatalf("failed to open payment logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestSQLitePaymentLogger_RequestResponseCycle(t *testing.T) {
	logger := newTestPaymentLogger(t)
	ctx := context.Background()

	logID, err := logger.LogRequest(ctx, "flowpay", "POST", "/payment/initiate",
		map[string]any{"amount": 1000, "currency": "EUR"}, "test-agent", "203.0.113.7")
	if err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}
	if logID == 0 {
		t.Fatal("Expected non-zero log ID")
	}

	err = logger.LogResponse(ctx, logID, map[string]any{"paymentId": "fp_1", "status": "pending"}, 42)
	if err != nil {
		t.Fatalf("LogResponse() error = %v", err)
	}

	var response string
	var processingMs int64
	err = logger.db.QueryRow(`SELECT response, processing_ms FROM payment_logs WHERE id = ?`, logID).
		Scan(&response, &processingMs)
	if err != nil {
		t.Fatalf("failed to read log row: %v", err)
	}
	if !strings.Contains(response, "fp_1") {
		t.Errorf("Expected response payload stored, got %q", response)
	}
	if processingMs != 42 {
		t.Errorf("Expected 42ms, got %d", processingMs)
	}
}

func TestSQLitePaymentLogger_LogError(t *testing.T) {
	logger := newTestPaymentLogger(t)
	ctx := context.Background()

	logID, err := logger.LogRequest(ctx, "flowpay", "POST", "/payment/capture",
		map[string]string{"paymentId": "fp_1"}, "", "")
	if err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}

	err = logger.LogError(ctx, logID, "capture_failed", "insufficient balance", 17)
	if err != nil {
		t.Fatalf("LogError() error = %v", err)
	}

	var errorCode, errorMsg string
	err = logger.db.QueryRow(`SELECT error_code, error_message FROM payment_logs WHERE id = ?`, logID).
		Scan(&errorCode, &errorMsg)
	if err != nil {
		t.Fatalf("failed to read log row: %v", err)
	}
	if errorCode != "capture_failed" {
		t.Errorf("Expected capture_failed, got %s", errorCode)
	}
	if errorMsg != "insufficient balance" {
		t.Errorf("Expected error message stored, got %q", errorMsg)
	}
}

func TestSQLitePaymentLogger_MasksCredentials(t *testing.T) {
	logger := newTestPaymentLogger(t)
	ctx := context.Background()

	logID, err := logger.LogRequest(ctx, "flowpay", "POST", "/token", map[string]any{
		"projectAccessKey": "fp_access_visible",
		"projectSecretKey": "fp_secret_should_hide",
		"nested": map[string]any{
			"webhookSecret": "whsec_should_hide",
			"amount":        1000,
		},
	}, "", "")
	if err != nil {
		t.Fatalf("LogRequest() error = %v", err)
	}

	var request string
	if err := logger.db.QueryRow(`SELECT request FROM payment_logs WHERE id = ?`, logID).Scan(&request); err != nil {
		t.Fatalf("failed to read log row: %v", err)
	}

	if strings.Contains(request, "fp_secret_should_hide") {
		t.Error("Expected secret key masked in stored request")
	}
	if strings.Contains(request, "whsec_should_hide") {
		t.Error("Expected nested webhook secret masked in stored request")
	}
	if !strings.Contains(request, "fp_access_visible") {
		t.Error("Expected non-sensitive field preserved")
	}
}

func Test_marshalSanitized(t *testing.T) {
	out, err := marshalSanitized(map[string]any{
		"secretKey":   "hide_me",
		"accessToken": "hide_me_too",
		"amount":      1000,
	})
	if err != nil {
		t.Fatalf("marshalSanitized() error = %v", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if parsed["secretKey"] != "***" {
		t.Errorf("Expected masked secretKey, got %v", parsed["secretKey"])
	}
	if parsed["accessToken"] != "***" {
		t.Errorf("Expected masked accessToken, got %v", parsed["accessToken"])
	}
	if parsed["amount"] != float64(1000) {
		t.Errorf("Expected amount preserved, got %v", parsed["amount"])
	}

	// Non-object payloads are stored as-is
	out, err = marshalSanitized([]string{"a", "b"})
	if err != nil {
		t.Fatalf("marshalSanitized() error = %v", err)
	}
	if out != `["a","b"]` {
		t.Errorf("Expected array passthrough, got %s", out)
	}
}
