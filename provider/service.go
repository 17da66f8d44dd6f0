package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/payline-dev/payline/infra/logger"
)

// PaymentService manages payment operations through registered providers.
// It resolves the adapter, executes the operation, persists the resulting
// session transition and records an audit log entry per call.
type PaymentService struct {
	providers       map[string]PaymentProvider
	defaultProvider string
	sessions        SessionStore
	logger          PaymentLogger
	mu              sync.RWMutex
}

// NewPaymentService creates a new payment service
func NewPaymentService(sessions SessionStore, paymentLogger PaymentLogger) *PaymentService {
	return &PaymentService{
		providers: make(map[string]PaymentProvider),
		sessions:  sessions,
		logger:    paymentLogger,
	}
}

// AddProvider creates, validates and initializes a provider from the default registry
func (s *PaymentService) AddProvider(name string, config map[string]string) error {
	prov, err := CreateProvider(name)
	if err != nil {
		return err
	}

	if err := prov.ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration for provider %s: %w", name, err)
	}

	if err := prov.Initialize(config); err != nil {
		return fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = prov

	return nil
}

// SetDefaultProvider sets the provider used when no name is given
func (s *PaymentService) SetDefaultProvider(name string) error {
	s.mu.RLock()
	_, exists := s.providers[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("provider %s is not configured", name)
	}

	s.mu.Lock()
	s.defaultProvider = name
	s.mu.Unlock()

	return nil
}

// AvailableProviders returns the names of all configured providers
func (s *PaymentService) AvailableProviders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// resolveProvider returns the named provider, or the default when name is empty
func (s *PaymentService) resolveProvider(name string) (PaymentProvider, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name == "" {
		name = s.defaultProvider
	}
	if name == "" {
		return nil, "", fmt.Errorf("no provider specified and no default provider configured")
	}

	prov, exists := s.providers[name]
	if !exists {
		return nil, name, fmt.Errorf("provider %s is not configured", name)
	}

	return prov, name, nil
}

// CreatePayment initiates a payment and persists the resulting pending session
func (s *PaymentService) CreatePayment(ctx context.Context, providerName string, request PaymentRequest) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/initiate", request, request.ClientUserAgent, request.ClientIP)

	response, err := prov.CreatePayment(ctx, request)
	s.logOutcome(ctx, logID, providerName, "INIT_ERROR", response, err, start)
	if err != nil {
		return response, err
	}

	session := &PaymentSession{
		PaymentID:    response.PaymentID,
		Provider:     providerName,
		Amount:       request.Amount,
		Currency:     strings.ToUpper(request.Currency),
		Status:       StatusPending,
		Memo:         response.Memo,
		QRCodeURL:    response.QRCodeURL,
		ProviderData: response.ProviderData,
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		logger.Warn("Failed to persist payment session", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"payment_id": response.PaymentID,
				"error":      saveErr.Error(),
			},
		})
	}

	return response, nil
}

// AuthorizePayment confirms authorization with the processor and advances the session
func (s *PaymentService) AuthorizePayment(ctx context.Context, providerName, paymentID string) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/authorize", map[string]string{"paymentId": paymentID}, "", "")

	response, err := prov.AuthorizePayment(ctx, paymentID)
	s.logOutcome(ctx, logID, providerName, "AUTHORIZE_ERROR", response, err, start)
	if err != nil {
		// not_authorized is non-fatal; the session stays pending
		return response, err
	}

	s.applyTransition(ctx, providerName, paymentID, StatusAuthorized)
	return response, nil
}

// CapturePayment captures an authorized payment and finalizes the session
func (s *PaymentService) CapturePayment(ctx context.Context, providerName, paymentID string) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/capture", map[string]string{"paymentId": paymentID}, "", "")

	response, err := prov.CapturePayment(ctx, paymentID)
	s.logOutcome(ctx, logID, providerName, "CAPTURE_ERROR", response, err, start)
	if err != nil {
		return response, err
	}

	s.applyTransition(ctx, providerName, paymentID, StatusCaptured)
	return response, nil
}

// CancelPayment cancels an open payment. Repeating the call is safe; the
// session stays canceled.
func (s *PaymentService) CancelPayment(ctx context.Context, providerName, paymentID string) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/cancel", map[string]string{"paymentId": paymentID}, "", "")

	response, err := prov.CancelPayment(ctx, paymentID)
	s.logOutcome(ctx, logID, providerName, "CANCEL_ERROR", response, err, start)
	if err != nil {
		return response, err
	}

	s.applyTransition(ctx, providerName, paymentID, StatusCanceled)
	return response, nil
}

// RefundPayment issues a refund for a captured payment. The session status
// does not change; refunds are the host's ledger entries.
func (s *PaymentService) RefundPayment(ctx context.Context, providerName string, request RefundRequest) (*RefundResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/refund", request, "", "")

	response, err := prov.RefundPayment(ctx, request)
	s.logOutcome(ctx, logID, providerName, "REFUND_ERROR", response, err, start)

	return response, err
}

// UpdatePayment amends an open payment and the persisted session
func (s *PaymentService) UpdatePayment(ctx context.Context, providerName string, request UpdateRequest) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/payment/update", request, "", "")

	response, err := prov.UpdatePayment(ctx, request)
	s.logOutcome(ctx, logID, providerName, "UPDATE_ERROR", response, err, start)
	if err != nil {
		return response, err
	}

	if session, getErr := s.sessions.Get(ctx, request.PaymentID); getErr == nil {
		session.Amount = request.Amount
		session.Currency = strings.ToUpper(request.Currency)
		if request.Memo != "" {
			session.Memo = request.Memo
		}
		if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
			logger.Warn("Failed to persist updated payment session", logger.LogContext{
				Provider: providerName,
				Fields: map[string]any{
					"payment_id": request.PaymentID,
					"error":      saveErr.Error(),
				},
			})
		}
	}

	return response, nil
}

// RetrievePayment returns the full current processor record
func (s *PaymentService) RetrievePayment(ctx context.Context, providerName, paymentID string) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "GET", "/payment/retrieve", map[string]string{"paymentId": paymentID}, "", "")

	response, err := prov.RetrievePayment(ctx, paymentID)
	s.logOutcome(ctx, logID, providerName, "RETRIEVE_ERROR", response, err, start)

	return response, err
}

// GetPaymentStatus retrieves the current canonical status of a payment
func (s *PaymentService) GetPaymentStatus(ctx context.Context, providerName, paymentID string) (*PaymentResponse, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "GET", "/payment/status", map[string]string{"paymentId": paymentID}, "", "")

	response, err := prov.GetPaymentStatus(ctx, paymentID)
	s.logOutcome(ctx, logID, providerName, "STATUS_ERROR", response, err, start)

	return response, err
}

// GetSession returns the persisted session for a payment ID
func (s *PaymentService) GetSession(ctx context.Context, paymentID string) (*PaymentSession, error) {
	return s.sessions.Get(ctx, paymentID)
}

// DeleteSession removes the persisted session for a payment ID
func (s *PaymentService) DeleteSession(ctx context.Context, paymentID string) error {
	return s.sessions.Delete(ctx, paymentID)
}

// HandleWebhook verifies an inbound notification and applies the resulting
// event to the persisted session. A verification failure returns a
// *VerificationError and changes nothing.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (*WebhookEvent, *PaymentSession, error) {
	prov, providerName, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	logID := s.logRequest(ctx, providerName, "POST", "/webhook", map[string]any{"headers": headers}, "", "")

	event, err := prov.ValidateWebhook(ctx, body, headers)
	s.logOutcome(ctx, logID, providerName, "WEBHOOK_ERROR", event, err, start)
	if err != nil {
		return nil, nil, err
	}

	session, applyErr := s.sessions.ApplyWebhook(ctx, event)
	if applyErr != nil {
		logger.Warn("Failed to apply webhook event to session", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"payment_id": event.PaymentID,
				"event_type": event.EventType,
				"error":      applyErr.Error(),
			},
		})
		return event, nil, nil
	}

	return event, session, nil
}

// applyTransition moves a session to the given status, logging failures
// without masking the provider result
func (s *PaymentService) applyTransition(ctx context.Context, providerName, paymentID string, status PaymentStatus) {
	if _, err := s.sessions.SetStatus(ctx, paymentID, status); err != nil {
		logger.Warn("Failed to transition payment session", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"payment_id": paymentID,
				"status":     string(status),
				"error":      err.Error(),
			},
		})
	}
}

// logRequest records the operation start, tolerating logger failures
func (s *PaymentService) logRequest(ctx context.Context, providerName, method, endpoint string, request any, userAgent, clientIP string) int64 {
	if s.logger == nil {
		return 0
	}

	logID, err := s.logger.LogRequest(ctx, providerName, method, endpoint, request, userAgent, clientIP)
	if err != nil {
		logger.Warn("Failed to log payment request", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"endpoint": endpoint,
				"error":    err.Error(),
			},
		})
		return 0
	}

	return logID
}

// logOutcome completes the audit entry for an operation
func (s *PaymentService) logOutcome(ctx context.Context, logID int64, providerName, errorCode string, response any, err error, start time.Time) {
	if s.logger == nil || logID == 0 {
		return
	}

	processingMs := time.Since(start).Milliseconds()

	if err != nil {
		if ge, ok := AsGatewayError(err); ok {
			errorCode = string(ge.Code)
		}
		if logErr := s.logger.LogError(ctx, logID, errorCode, err.Error(), processingMs); logErr != nil {
			logger.Warn("Failed to log payment error", logger.LogContext{
				Provider: providerName,
				Fields: map[string]any{
					"log_id": logID,
					"error":  logErr.Error(),
				},
			})
		}
		return
	}

	if logErr := s.logger.LogResponse(ctx, logID, response, processingMs); logErr != nil {
		logger.Warn("Failed to log payment response", logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"log_id": logID,
				"error":  logErr.Error(),
			},
		})
	}
}
