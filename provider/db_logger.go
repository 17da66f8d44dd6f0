package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PaymentLogger records payment operations for audit and diagnostics
type PaymentLogger interface {
	LogRequest(ctx context.Context, providerName, method, endpoint string, request any, userAgent, clientIP string) (int64, error)
	LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error
	LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error
}

// sensitiveLogKeys are masked before any request reaches the log
var sensitiveLogKeys = []string{
	"secretKey", "projectSecretKey", "accessToken", "webhookSecret",
	"apiKey", "authorization", "password",
}

// SQLitePaymentLogger implements PaymentLogger on a SQLite database
type SQLitePaymentLogger struct {
	db *sql.DB
}

// NewSQLitePaymentLogger opens (or creates) the payment log database
func NewSQLitePaymentLogger(dbPath string) (*SQLitePaymentLogger, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=20000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment log database: %w", err)
	}

	logger := &SQLitePaymentLogger{db: db}
	if err := logger.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize payment log schema: %w", err)
	}

	return logger, nil
}

func (l *SQLitePaymentLogger) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payment_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		method TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		request TEXT,
		response TEXT,
		error_code TEXT,
		error_message TEXT,
		processing_ms INTEGER,
		user_agent TEXT,
		client_ip TEXT,
		request_at DATETIME NOT NULL,
		response_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_payment_logs_provider ON payment_logs(provider, request_at);
	`

	_, err := l.db.Exec(query)
	return err
}

// LogRequest records an outgoing payment operation and returns its log ID
func (l *SQLitePaymentLogger) LogRequest(ctx context.Context, providerName, method, endpoint string, request any, userAgent, clientIP string) (int64, error) {
	requestJSON, err := marshalSanitized(request)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	result, err := l.db.ExecContext(ctx, `
		INSERT INTO payment_logs (provider, method, endpoint, request, user_agent, client_ip, request_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, providerName, method, endpoint, requestJSON, userAgent, clientIP, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to log request: %w", err)
	}

	return result.LastInsertId()
}

// LogResponse completes a log entry with the operation's result
func (l *SQLitePaymentLogger) LogResponse(ctx context.Context, logID int64, response any, processingMs int64) error {
	responseJSON, err := marshalSanitized(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		UPDATE payment_logs SET response = ?, processing_ms = ?, response_at = ? WHERE id = ?
	`, responseJSON, processingMs, time.Now().UTC(), logID)
	if err != nil {
		return fmt.Errorf("failed to log response: %w", err)
	}

	return nil
}

// LogError completes a log entry with the operation's failure
func (l *SQLitePaymentLogger) LogError(ctx context.Context, logID int64, errorCode, errorMsg string, processingMs int64) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE payment_logs SET error_code = ?, error_message = ?, processing_ms = ?, response_at = ? WHERE id = ?
	`, errorCode, errorMsg, processingMs, time.Now().UTC(), logID)
	if err != nil {
		return fmt.Errorf("failed to log error: %w", err)
	}

	return nil
}

// Close releases the underlying database handle
func (l *SQLitePaymentLogger) Close() error {
	return l.db.Close()
}

// marshalSanitized serializes a payload with credential fields masked
func marshalSanitized(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		// Not an object; log as-is
		return string(raw), nil
	}

	sanitizeMap(asMap)

	sanitized, err := json.Marshal(asMap)
	if err != nil {
		return "", err
	}
	return string(sanitized), nil
}

func sanitizeMap(m map[string]any) {
	for key, value := range m {
		if isSensitiveKey(key) {
			m[key] = "***"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			sanitizeMap(nested)
		}
	}
}

func isSensitiveKey(key string) bool {
	for _, sensitive := range sensitiveLogKeys {
		if strings.EqualFold(key, sensitive) {
			return true
		}
	}
	return false
}
