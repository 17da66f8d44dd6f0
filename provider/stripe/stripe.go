package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/payline-dev/payline/provider"
)

const (
	signatureHeader = "Stripe-Signature"

	// Webhook event types
	eventAmountCapturable = "payment_intent.amount_capturable_updated"
	eventSucceeded        = "payment_intent.succeeded"
)

// StripeProvider implements the provider.PaymentProvider interface on top of
// manual-capture PaymentIntents. It follows the same lifecycle as the other
// adapters: a created payment stays pending until Stripe reports it
// capturable, then authorized, then captured.
type StripeProvider struct {
	secretKey     string
	webhookSecret string
	isProduction  bool
	client        *client.API
}

// NewProvider creates a new Stripe payment provider
func NewProvider() provider.PaymentProvider {
	return &StripeProvider{}
}

// GetRequiredConfig returns the configuration fields required for Stripe
func (p *StripeProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Stripe secret key (sk_test_... or sk_live_...)",
			Example:     "sk_test_51H7qABCDEfghIJKL",
			MinLength:   20,
			MaxLength:   255,
		},
		{
			Key:         "webhookSecret",
			Required:    false,
			Type:        "string",
			Description: "Stripe webhook signing secret (whsec_...)",
			Example:     "whsec_1234567890abcdef",
			MinLength:   10,
			MaxLength:   255,
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment setting (sandbox or production)",
			Example:     "sandbox",
			Pattern:     "^(sandbox|production)$",
		},
	}
}

// ValidateConfig validates the provided configuration against Stripe requirements
func (p *StripeProvider) ValidateConfig(conf map[string]string) error {
	requiredFields := p.GetRequiredConfig(conf["environment"])
	if err := provider.ValidateConfigFields("stripe", conf, requiredFields); err != nil {
		return err
	}

	secretKey := conf["secretKey"]
	if !strings.HasPrefix(secretKey, "sk_") && !strings.HasPrefix(secretKey, "rk_") {
		return errors.New("stripe: secretKey must start with sk_ or rk_")
	}

	if conf["environment"] == "production" && strings.HasPrefix(secretKey, "sk_test_") {
		return errors.New("stripe: test key cannot be used in production")
	}

	return nil
}

// Initialize sets up the Stripe payment provider with authentication credentials
func (p *StripeProvider) Initialize(conf map[string]string) error {
	p.secretKey = conf["secretKey"]
	if p.secretKey == "" {
		return errors.New("stripe: secretKey is required")
	}

	p.webhookSecret = conf["webhookSecret"]
	p.isProduction = conf["environment"] == "production"

	p.client = &client.API{}
	p.client.Init(p.secretKey, nil)

	return nil
}

// CreatePayment creates a manual-capture PaymentIntent; the session is
// pending until the customer's payment method is confirmed
func (p *StripeProvider) CreatePayment(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if request.Amount <= 0 {
		return nil, errors.New("stripe: amount must be greater than 0")
	}
	if len(request.Currency) != 3 {
		return nil, errors.New("stripe: currency must be a 3-letter ISO code")
	}

	params := &stripeapi.PaymentIntentParams{
		Params:        stripeapi.Params{Context: ctx},
		Amount:        stripeapi.Int64(request.Amount),
		Currency:      stripeapi.String(strings.ToLower(request.Currency)),
		CaptureMethod: stripeapi.String(string(stripeapi.PaymentIntentCaptureMethodManual)),
	}
	if request.Description != "" {
		params.Description = stripeapi.String(request.Description)
	}
	if request.Cart.CustomerEmail != "" {
		params.ReceiptEmail = stripeapi.String(request.Cart.CustomerEmail)
	}
	if request.Cart.CartID != "" {
		params.AddMetadata("cart_id", request.Cart.CartID)
	}
	if request.ReferenceID != "" {
		params.AddMetadata("reference_id", request.ReferenceID)
	}

	intent, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeInitFailed)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusPending,
		PaymentID:  intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		SystemTime: &now,
		ProviderData: map[string]any{
			"id":           intent.ID,
			"clientSecret": intent.ClientSecret,
			"status":       string(intent.Status),
		},
	}, nil
}

// AuthorizePayment confirms that the PaymentIntent holds capturable funds.
// A payment Stripe does not yet report as capturable returns a
// not_authorized error without changing anything.
func (p *StripeProvider) AuthorizePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}

	intent, err := p.client.PaymentIntents.Get(paymentID, &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeStatusFailed)
	}

	if intent.Status != stripeapi.PaymentIntentStatusRequiresCapture {
		return nil, provider.NewGatewayError(provider.ErrCodeNotAuthorized,
			fmt.Sprintf("payment %s is %s", paymentID, intent.Status))
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusAuthorized,
		PaymentID:  intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		SystemTime: &now,
	}, nil
}

// CapturePayment captures an authorized PaymentIntent
func (p *StripeProvider) CapturePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}

	intent, err := p.client.PaymentIntents.Capture(paymentID, &stripeapi.PaymentIntentCaptureParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeCaptureFailed)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusCaptured,
		PaymentID:  intent.ID,
		Amount:     intent.AmountReceived,
		Currency:   strings.ToUpper(string(intent.Currency)),
		SystemTime: &now,
		ProviderData: map[string]any{
			"status": string(intent.Status),
		},
	}, nil
}

// CancelPayment cancels an open PaymentIntent. Stripe rejects cancellation of
// an already captured intent; cancellation of a canceled one is a no-op.
func (p *StripeProvider) CancelPayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}

	intent, err := p.client.PaymentIntents.Cancel(paymentID, &stripeapi.PaymentIntentCancelParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		// A repeated cancel reports the intent as already canceled
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && strings.Contains(stripeErr.Msg, "already been canceled") {
			return p.canceledResponse(paymentID), nil
		}
		return nil, classifyError(err, provider.ErrCodeCancelFailed)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusCanceled,
		PaymentID:  intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		SystemTime: &now,
	}, nil
}

func (p *StripeProvider) canceledResponse(paymentID string) *provider.PaymentResponse {
	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusCanceled,
		PaymentID:  paymentID,
		SystemTime: &now,
	}
}

// RefundPayment issues a refund for a captured PaymentIntent. A zero amount
// requests a full refund.
func (p *StripeProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if request.PaymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}
	if request.Amount < 0 {
		return nil, errors.New("stripe: refund amount cannot be negative")
	}

	params := &stripeapi.RefundParams{
		Params:        stripeapi.Params{Context: ctx},
		PaymentIntent: stripeapi.String(request.PaymentID),
	}
	if request.Amount > 0 {
		params.Amount = stripeapi.Int64(request.Amount)
	}
	if request.Reason != "" {
		params.Reason = stripeapi.String(request.Reason)
	}

	ref, err := p.client.Refunds.New(params)
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeRefundFailed)
	}

	now := time.Now()
	return &provider.RefundResponse{
		Success:   true,
		RefundID:  ref.ID,
		PaymentID: request.PaymentID,
		// Stripe refund status is reported back verbatim, lower-cased
		Status:     strings.ToLower(string(ref.Status)),
		Amount:     ref.Amount,
		SystemTime: &now,
	}, nil
}

// UpdatePayment amends amount and currency of an open PaymentIntent
func (p *StripeProvider) UpdatePayment(ctx context.Context, request provider.UpdateRequest) (*provider.PaymentResponse, error) {
	if request.PaymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}
	if request.Amount <= 0 {
		return nil, errors.New("stripe: amount must be greater than 0")
	}
	if len(request.Currency) != 3 {
		return nil, errors.New("stripe: currency must be a 3-letter ISO code")
	}

	params := &stripeapi.PaymentIntentParams{
		Params:   stripeapi.Params{Context: ctx},
		Amount:   stripeapi.Int64(request.Amount),
		Currency: stripeapi.String(strings.ToLower(request.Currency)),
	}
	if request.Memo != "" {
		params.Description = stripeapi.String(request.Memo)
	}

	intent, err := p.client.PaymentIntents.Update(request.PaymentID, params)
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeUpdateFailed)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     mapIntentStatus(intent.Status),
		PaymentID:  intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		Memo:       request.Memo,
		SystemTime: &now,
	}, nil
}

// RetrievePayment returns the full current PaymentIntent record
func (p *StripeProvider) RetrievePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}

	intent, err := p.client.PaymentIntents.Get(paymentID, &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{Context: ctx},
	})
	if err != nil {
		return nil, classifyError(err, provider.ErrCodeRetrieveFailed)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     mapIntentStatus(intent.Status),
		PaymentID:  intent.ID,
		Amount:     intent.Amount,
		Currency:   strings.ToUpper(string(intent.Currency)),
		Memo:       intent.Description,
		SystemTime: &now,
		ProviderData: map[string]any{
			"status":       string(intent.Status),
			"clientSecret": intent.ClientSecret,
			"metadata":     intent.Metadata,
		},
	}, nil
}

// GetPaymentStatus retrieves the current canonical status of a payment.
// A failed status query reports the error status alongside the error.
func (p *StripeProvider) GetPaymentStatus(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("stripe: paymentID is required")
	}

	intent, err := p.client.PaymentIntents.Get(paymentID, &stripeapi.PaymentIntentParams{
		Params: stripeapi.Params{Context: ctx},
	})
	now := time.Now()
	if err != nil {
		return &provider.PaymentResponse{
			Success:    false,
			Status:     provider.StatusError,
			PaymentID:  paymentID,
			SystemTime: &now,
		}, classifyError(err, provider.ErrCodeStatusFailed)
	}

	return &provider.PaymentResponse{
		Success:    true,
		Status:     mapIntentStatus(intent.Status),
		PaymentID:  intent.ID,
		Message:    string(intent.Status),
		SystemTime: &now,
	}, nil
}

// ValidateWebhook verifies an inbound Stripe event against the webhook
// signing secret and translates it into a webhook event
func (p *StripeProvider) ValidateWebhook(ctx context.Context, body []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	signature := headers[signatureHeader]
	if signature == "" {
		signature = headers[strings.ToLower(signatureHeader)]
	}
	if signature == "" {
		return nil, &provider.VerificationError{Detail: "missing signature header"}
	}
	if p.webhookSecret == "" {
		return nil, &provider.VerificationError{Detail: "webhook secret not configured"}
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(body, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &provider.VerificationError{Detail: "signature mismatch"}
	}

	event := &provider.WebhookEvent{
		EventType: string(stripeEvent.Type),
	}

	var intent struct {
		ID               string `json:"id"`
		Amount           int64  `json:"amount"`
		AmountCapturable int64  `json:"amount_capturable"`
	}
	if err := json.Unmarshal(stripeEvent.Data.Raw, &intent); err != nil {
		event.Action = provider.WebhookFailed
		return event, nil
	}

	event.PaymentID = intent.ID
	event.Amount = intent.Amount

	switch string(stripeEvent.Type) {
	case eventAmountCapturable:
		event.Action = provider.WebhookAuthorized
		if intent.AmountCapturable > 0 {
			event.Amount = intent.AmountCapturable
		}
	case eventSucceeded:
		event.Action = provider.WebhookCaptured
	default:
		event.Action = provider.WebhookNotSupported
	}

	return event, nil
}

// classifyError converts a Stripe client failure into a GatewayError. API
// errors carry Stripe's diagnostic text; transport failures get code unknown.
func classifyError(err error, code provider.GatewayErrorCode) *provider.GatewayError {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) {
		detail := stripeErr.Msg
		if detail == "" {
			detail = string(stripeErr.Code)
		}
		return provider.NewGatewayError(code, detail)
	}

	return provider.WrapGatewayError(err)
}

// mapIntentStatus maps a PaymentIntent status to the canonical payment
// status. Anything unrecognized is still pending.
func mapIntentStatus(status stripeapi.PaymentIntentStatus) provider.PaymentStatus {
	switch status {
	case stripeapi.PaymentIntentStatusRequiresCapture:
		return provider.StatusAuthorized
	case stripeapi.PaymentIntentStatusSucceeded:
		return provider.StatusCaptured
	case stripeapi.PaymentIntentStatusCanceled:
		return provider.StatusCanceled
	default:
		return provider.StatusPending
	}
}
