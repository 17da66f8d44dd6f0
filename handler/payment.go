package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payline-dev/payline/infra/logger"
	"github.com/payline-dev/payline/infra/middle"
	"github.com/payline-dev/payline/infra/response"
	"github.com/payline-dev/payline/provider"
)

// PaymentServiceInterface defines the interface for payment operations
type PaymentServiceInterface interface {
	CreatePayment(ctx context.Context, providerName string, request provider.PaymentRequest) (*provider.PaymentResponse, error)
	AuthorizePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)
	CapturePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)
	CancelPayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)
	RefundPayment(ctx context.Context, providerName string, request provider.RefundRequest) (*provider.RefundResponse, error)
	UpdatePayment(ctx context.Context, providerName string, request provider.UpdateRequest) (*provider.PaymentResponse, error)
	RetrievePayment(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)
	GetSession(ctx context.Context, paymentID string) (*provider.PaymentSession, error)
	HandleWebhook(ctx context.Context, providerName string, body []byte, headers map[string]string) (*provider.WebhookEvent, *provider.PaymentSession, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService PaymentServiceInterface, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validate:       validate,
	}
}

// CreatePayment handles payment initiation requests
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req provider.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.ClientIP = middle.GetClientIP(r)
	req.ClientUserAgent = r.Header.Get("User-Agent")

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	providerName := chi.URLParam(r, "provider")

	resp, err := h.paymentService.CreatePayment(ctx, providerName, req)
	if err != nil {
		h.writeOperationError(w, "Payment initiation failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment initiated", resp)
}

// AuthorizePayment confirms authorization of a pending payment
func (h *PaymentHandler) AuthorizePayment(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Payment authorized", "Payment authorization failed", h.paymentService.AuthorizePayment)
}

// CapturePayment captures an authorized payment
func (h *PaymentHandler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Payment captured", "Payment capture failed", h.paymentService.CapturePayment)
}

// CancelPayment cancels an open payment
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Payment canceled", "Payment cancellation failed", h.paymentService.CancelPayment)
}

// paymentAction runs a paymentID-keyed operation shared by authorize, capture and cancel
func (h *PaymentHandler) paymentAction(w http.ResponseWriter, r *http.Request, successMsg, failureMsg string,
	action func(ctx context.Context, providerName, paymentID string) (*provider.PaymentResponse, error)) {

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	providerName := chi.URLParam(r, "provider")
	paymentID := chi.URLParam(r, "paymentID")

	if paymentID == "" {
		response.Error(w, http.StatusBadRequest, "Missing payment ID", nil)
		return
	}

	resp, err := action(ctx, providerName, paymentID)
	if err != nil {
		h.writeOperationError(w, failureMsg, err)
		return
	}

	response.Success(w, http.StatusOK, successMsg, resp)
}

// RefundPayment handles payment refund requests
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	providerName := chi.URLParam(r, "provider")

	var req provider.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.PaymentID == "" {
		req.PaymentID = chi.URLParam(r, "paymentID")
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	resp, err := h.paymentService.RefundPayment(ctx, providerName, req)
	if err != nil {
		h.writeOperationError(w, "Payment refund failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment refunded", resp)
}

// UpdatePayment amends amount, currency and memo of an open payment
func (h *PaymentHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	providerName := chi.URLParam(r, "provider")

	var req provider.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.PaymentID == "" {
		req.PaymentID = chi.URLParam(r, "paymentID")
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	resp, err := h.paymentService.UpdatePayment(ctx, providerName, req)
	if err != nil {
		h.writeOperationError(w, "Payment update failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment updated", resp)
}

// RetrievePayment returns the full current processor record
func (h *PaymentHandler) RetrievePayment(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Payment retrieved", "Payment retrieval failed", h.paymentService.RetrievePayment)
}

// GetPaymentStatus returns the canonical status of a payment
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	h.paymentAction(w, r, "Payment status retrieved", "Failed to get payment status", h.paymentService.GetPaymentStatus)
}

// GetSession returns the locally persisted payment session
func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		response.Error(w, http.StatusBadRequest, "Missing payment ID", nil)
		return
	}

	session, err := h.paymentService.GetSession(ctx, paymentID)
	if err != nil {
		if errors.Is(err, provider.ErrSessionNotFound) {
			response.Error(w, http.StatusNotFound, "Payment session not found", err)
			return
		}
		response.Error(w, http.StatusInternalServerError, "Failed to load payment session", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment session retrieved", session)
}

// HandleWebhook receives processor callbacks. The raw body bytes are handed
// to the adapter unmodified so the signature check covers exactly what was
// sent; a failed verification returns 401 with no state change.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	providerName := chi.URLParam(r, "provider")
	if providerName == "" {
		response.Error(w, http.StatusBadRequest, "Provider parameter is required", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read webhook body", err)
		return
	}

	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	event, session, err := h.paymentService.HandleWebhook(ctx, providerName, body, headers)
	if err != nil {
		var verr *provider.VerificationError
		if errors.As(err, &verr) {
			logger.Warn("Webhook rejected", logger.LogContext{
				Provider: providerName,
				Fields: map[string]any{
					"client_ip": middle.GetClientIP(r),
				},
			})
			response.Error(w, http.StatusUnauthorized, "Webhook verification failed", nil)
			return
		}
		response.Error(w, http.StatusBadRequest, "Webhook processing failed", err)
		return
	}

	result := map[string]any{
		"action":    string(event.Action),
		"eventType": event.EventType,
		"paymentId": event.PaymentID,
	}
	if session != nil {
		result["status"] = string(session.Status)
	}

	response.Success(w, http.StatusOK, "Webhook processed", result)
}

// writeOperationError maps service errors to HTTP responses. Gateway errors
// keep their operation code in the payload for diagnostics.
func (h *PaymentHandler) writeOperationError(w http.ResponseWriter, message string, err error) {
	if ge, ok := provider.AsGatewayError(err); ok {
		status := http.StatusBadGateway
		if ge.Code == provider.ErrCodeNotAuthorized {
			status = http.StatusConflict
		}
		response.WriteJSON(w, status, response.Response{
			Code:    status,
			Success: false,
			Message: message,
			Error:   ge.Error(),
			Data:    map[string]string{"errorCode": string(ge.Code)},
		})
		return
	}

	var authErr *provider.AuthenticationError
	if errors.As(err, &authErr) {
		response.Error(w, http.StatusBadGateway, "Processor authentication failed", err)
		return
	}

	response.Error(w, http.StatusInternalServerError, message, err)
}
