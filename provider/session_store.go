package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned when no session exists for a payment ID
var ErrSessionNotFound = errors.New("payment session not found")

// ErrInvalidTransition is returned when a status change would leave a
// terminal state
var ErrInvalidTransition = errors.New("invalid payment session transition")

// PaymentSession is the persisted record of one payment attempt, keyed by
// the processor-assigned payment ID. The ID is immutable once assigned and
// is the sole key correlating gateway calls and webhook events.
type PaymentSession struct {
	PaymentID    string         `json:"paymentId"`
	Provider     string         `json:"provider"`
	Amount       int64          `json:"amount"`
	Currency     string         `json:"currency"`
	Status       PaymentStatus  `json:"status"`
	Memo         string         `json:"memo,omitempty"`
	QRCodeURL    string         `json:"qrCodeUrl,omitempty"`
	ProviderData map[string]any `json:"providerData,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// SessionStore persists payment sessions and applies state transitions
type SessionStore interface {
	// Save inserts a new session or replaces the stored provider data
	Save(ctx context.Context, session *PaymentSession) error

	// Get returns the session for a payment ID
	Get(ctx context.Context, paymentID string) (*PaymentSession, error)

	// SetStatus transitions a session. Transitions out of captured or
	// canceled are rejected; setting the current status again is a no-op.
	SetStatus(ctx context.Context, paymentID string, status PaymentStatus) (*PaymentSession, error)

	// ApplyWebhook applies a verified webhook event to the matching session
	ApplyWebhook(ctx context.Context, event *WebhookEvent) (*PaymentSession, error)

	// Delete removes a session
	Delete(ctx context.Context, paymentID string) error

	// Close releases the underlying database handle
	Close() error
}

// SQLiteSessionStore implements SessionStore on SQLite with an LRU read cache
type SQLiteSessionStore struct {
	db    *sql.DB
	cache SessionCache
}

// NewSQLiteSessionStore opens (or creates) the session database at dbPath
func NewSQLiteSessionStore(dbPath string) (*SQLiteSessionStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL keeps readers from blocking the webhook writer
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteSessionStore{
		db:    db,
		cache: NewSessionCache(1000, time.Hour),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return store, nil
}

// DB exposes the underlying handle for health checks
func (s *SQLiteSessionStore) DB() *sql.DB {
	return s.db
}

// CacheStats reports hit ratio and eviction counters of the read cache
func (s *SQLiteSessionStore) CacheStats() CacheStats {
	return s.cache.Stats()
}

// initSchema creates the necessary tables
func (s *SQLiteSessionStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payment_sessions (
		payment_id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		memo TEXT,
		qr_code_url TEXT,
		provider_data TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_provider_status ON payment_sessions(provider, status);
	`

	_, err := s.db.Exec(query)
	return err
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (s *SQLiteSessionStore) retryOperation(operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			lastErr = err
			if attempt < maxRetries {
				backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
				time.Sleep(backoff)
				continue
			}
		} else {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

// Save inserts a new session or replaces the stored provider data
func (s *SQLiteSessionStore) Save(ctx context.Context, session *PaymentSession) error {
	if session.PaymentID == "" {
		return errors.New("session payment ID is required")
	}

	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = StatusPending
	}

	providerData := "{}"
	if session.ProviderData != nil {
		raw, err := json.Marshal(session.ProviderData)
		if err != nil {
			return fmt.Errorf("failed to marshal provider data: %w", err)
		}
		providerData = string(raw)
	}

	query := `
	INSERT INTO payment_sessions (payment_id, provider, amount, currency, status, memo, qr_code_url, provider_data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(payment_id) DO UPDATE SET
		amount = excluded.amount,
		currency = excluded.currency,
		memo = excluded.memo,
		qr_code_url = excluded.qr_code_url,
		provider_data = excluded.provider_data,
		updated_at = excluded.updated_at
	`

	err := s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.PaymentID, session.Provider, session.Amount, strings.ToUpper(session.Currency),
			string(session.Status), session.Memo, session.QRCodeURL, providerData,
			session.CreatedAt, session.UpdatedAt,
		)
		return err
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.PaymentID, err)
	}

	s.cache.Set(session.PaymentID, session)
	return nil
}

// Get returns the session for a payment ID
func (s *SQLiteSessionStore) Get(ctx context.Context, paymentID string) (*PaymentSession, error) {
	if cached := s.cache.Get(paymentID); cached != nil {
		return cached, nil
	}

	query := `
	SELECT payment_id, provider, amount, currency, status, memo, qr_code_url, provider_data, created_at, updated_at
	FROM payment_sessions WHERE payment_id = ?
	`

	session := &PaymentSession{}
	var status, providerData string

	err := s.db.QueryRowContext(ctx, query, paymentID).Scan(
		&session.PaymentID, &session.Provider, &session.Amount, &session.Currency,
		&status, &session.Memo, &session.QRCodeURL, &providerData,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", paymentID, err)
	}

	session.Status = PaymentStatus(status)
	if providerData != "" && providerData != "{}" {
		if err := json.Unmarshal([]byte(providerData), &session.ProviderData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provider data for %s: %w", paymentID, err)
		}
	}

	s.cache.Set(paymentID, session)
	return session, nil
}

// SetStatus transitions a session, enforcing that captured and canceled are terminal
func (s *SQLiteSessionStore) SetStatus(ctx context.Context, paymentID string, status PaymentStatus) (*PaymentSession, error) {
	session, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if session.Status == status {
		return session, nil
	}

	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, session.Status, status, paymentID)
	}

	now := time.Now().UTC()
	err = s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE payment_sessions SET status = ?, updated_at = ? WHERE payment_id = ?`,
			string(status), now, paymentID,
		)
		return err
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", paymentID, err)
	}

	updated := *session
	updated.Status = status
	updated.UpdatedAt = now
	s.cache.Set(paymentID, &updated)

	return &updated, nil
}

// ApplyWebhook applies a verified webhook event to the matching session.
// Unsupported and failed events change nothing and return the session as-is.
func (s *SQLiteSessionStore) ApplyWebhook(ctx context.Context, event *WebhookEvent) (*PaymentSession, error) {
	if event.PaymentID == "" {
		return nil, ErrSessionNotFound
	}

	switch event.Action {
	case WebhookAuthorized:
		return s.SetStatus(ctx, event.PaymentID, StatusAuthorized)
	case WebhookCaptured:
		return s.SetStatus(ctx, event.PaymentID, StatusCaptured)
	default:
		return s.Get(ctx, event.PaymentID)
	}
}

// Delete removes a session
func (s *SQLiteSessionStore) Delete(ctx context.Context, paymentID string) error {
	err := s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM payment_sessions WHERE payment_id = ?`, paymentID)
		return err
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", paymentID, err)
	}

	s.cache.Delete(paymentID)
	return nil
}

// Close releases the underlying database handle
func (s *SQLiteSessionStore) Close() error {
	s.cache.Clear()
	return s.db.Close()
}
