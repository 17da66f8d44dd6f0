package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSessionStore(t *testing.T) *SQLiteSessionStore {
	t.Helper()
	store, err := NewSQLiteSessionStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open session store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func saveTestSession(t *testing.T, store *SQLiteSessionStore, paymentID string, status PaymentStatus) {
	t.Helper()
	err := store.Save(context.Background(), &PaymentSession{
		PaymentID: paymentID,
		Provider:  "flowpay",
		Amount:    1000,
		Currency:  "EUR",
		Status:    status,
		Memo:      "Demo Store Order 1001",
	})
	if err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func TestSQLiteSessionStore_SaveAndGet(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()

	session := &PaymentSession{
		PaymentID: "fp_1",
		Provider:  "flowpay",
		Amount:    1000,
		Currency:  "EUR",
		Memo:      "Demo Store Order 1001",
		QRCodeURL: "https://pay.flowpay.io/qr/fp_1",
		ProviderData: map[string]any{
			"qrCodeUrl": "https://pay.flowpay.io/qr/fp_1",
		},
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Status defaults to pending when unset
	if session.Status != StatusPending {
		t.Errorf("Expected defaulted pending status, got %v", session.Status)
	}

	loaded, err := store.Get(ctx, "fp_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Amount != 1000 || loaded.Currency != "EUR" {
		t.Errorf("Expected 1000 EUR, got %d %s", loaded.Amount, loaded.Currency)
	}
	if loaded.Memo != "Demo Store Order 1001" {
		t.Errorf("Expected memo, got %q", loaded.Memo)
	}
	if loaded.ProviderData["qrCodeUrl"] != "https://pay.flowpay.io/qr/fp_1" {
		t.Errorf("Expected provider data round-trip, got %v", loaded.ProviderData)
	}
}

func TestSQLiteSessionStore_GetNotFound(t *testing.T) {
	store := newTestSessionStore(t)

	_, err := store.Get(context.Background(), "fp_missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteSessionStore_SaveRequiresPaymentID(t *testing.T) {
	store := newTestSessionStore(t)

	if err := store.Save(context.Background(), &PaymentSession{}); err == nil {
		t.Error("Expected error for empty payment ID")
	}
}

func TestSQLiteSessionStore_StatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		wantErr bool
	}{
		{"pending to authorized", StatusPending, StatusAuthorized, false},
		{"pending to captured", StatusPending, StatusCaptured, false},
		{"pending to canceled", StatusPending, StatusCanceled, false},
		{"pending to error", StatusPending, StatusError, false},
		{"authorized to captured", StatusAuthorized, StatusCaptured, false},
		{"authorized to canceled", StatusAuthorized, StatusCanceled, false},
		{"captured stays terminal", StatusCaptured, StatusAuthorized, true},
		{"captured cannot cancel", StatusCaptured, StatusCanceled, true},
		{"canceled stays terminal", StatusCanceled, StatusAuthorized, true},
		{"canceled cannot capture", StatusCanceled, StatusCaptured, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestSessionStore(t)
			ctx := context.Background()
			saveTestSession(t, store, "fp_1", tt.from)

			updated, err := store.SetStatus(ctx, "fp_1", tt.to)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Expected ErrInvalidTransition, got %v", err)
				}
				// Rejected transitions leave the session untouched
				session, _ := store.Get(ctx, "fp_1")
				if session.Status != tt.from {
					t.Errorf("Expected status unchanged at %v, got %v", tt.from, session.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("SetStatus() error = %v", err)
			}
			if updated.Status != tt.to {
				t.Errorf("Expected status %v, got %v", tt.to, updated.Status)
			}
		})
	}
}

func TestSQLiteSessionStore_SetStatusSameStatusIsNoOp(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()
	saveTestSession(t, store, "fp_1", StatusCanceled)

	// Repeating a cancel on a canceled session succeeds without a transition
	session, err := store.SetStatus(ctx, "fp_1", StatusCanceled)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if session.Status != StatusCanceled {
		t.Errorf("Expected canceled, got %v", session.Status)
	}
}

func TestSQLiteSessionStore_SetStatusNotFound(t *testing.T) {
	store := newTestSessionStore(t)

	_, err := store.SetStatus(context.Background(), "fp_missing", StatusAuthorized)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteSessionStore_ApplyWebhook(t *testing.T) {
	tests := []struct {
		name       string
		action     WebhookAction
		wantStatus PaymentStatus
	}{
		{"authorized event advances session", WebhookAuthorized, StatusAuthorized},
		{"captured event advances session", WebhookCaptured, StatusCaptured},
		{"unsupported event changes nothing", WebhookNotSupported, StatusPending},
		{"failed event changes nothing", WebhookFailed, StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestSessionStore(t)
			saveTestSession(t, store, "fp_1", StatusPending)

			session, err := store.ApplyWebhook(context.Background(), &WebhookEvent{
				Action:    tt.action,
				PaymentID: "fp_1",
				Amount:    1000,
			})
			if err != nil {
				t.Fatalf("ApplyWebhook() error = %v", err)
			}
			if session.Status != tt.wantStatus {
				t.Errorf("Expected status %v, got %v", tt.wantStatus, session.Status)
			}
		})
	}
}

func TestSQLiteSessionStore_ApplyWebhookWithoutPaymentID(t *testing.T) {
	store := newTestSessionStore(t)

	_, err := store.ApplyWebhook(context.Background(), &WebhookEvent{Action: WebhookCaptured})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteSessionStore_SaveUpserts(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()
	saveTestSession(t, store, "fp_1", StatusPending)

	session, _ := store.Get(ctx, "fp_1")
	session.Amount = 1500
	session.Memo = "Demo Store Order 1002"
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(ctx, "fp_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Amount != 1500 {
		t.Errorf("Expected amended amount 1500, got %d", loaded.Amount)
	}
	if loaded.Memo != "Demo Store Order 1002" {
		t.Errorf("Expected amended memo, got %q", loaded.Memo)
	}
}

func TestSQLiteSessionStore_Delete(t *testing.T) {
	store := newTestSessionStore(t)
	ctx := context.Background()
	saveTestSession(t, store, "fp_1", StatusPending)

	if err := store.Delete(ctx, "fp_1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Get(ctx, "fp_1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   PaymentStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusAuthorized, false},
		{StatusCaptured, true},
		{StatusCanceled, true},
		{StatusError, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}
