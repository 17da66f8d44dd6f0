package provider

import (
	"context"
	"time"
)

// PaymentStatus represents the canonical status of a payment session
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusAuthorized PaymentStatus = "authorized"
	StatusCaptured   PaymentStatus = "captured"
	StatusCanceled   PaymentStatus = "canceled"
	StatusError      PaymentStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCaptured || s == StatusCanceled
}

// ConfigField represents a required configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// CartContext carries the checkout details a provider needs to build a
// payment reference (memo) for reconciliation.
type CartContext struct {
	CartID        string `json:"cartId,omitempty"`
	OrderDisplay  string `json:"orderDisplay,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	StoreName     string `json:"storeName,omitempty"`
}

// PaymentRequest contains all information required to initiate a payment.
// Amount is in the smallest currency unit (cents).
type PaymentRequest struct {
	ReferenceID     string      `json:"referenceId,omitempty"`
	Amount          int64       `json:"amount" validate:"gt=0"`
	Currency        string      `json:"currency" validate:"required,len=3"`
	Cart            CartContext `json:"cart"`
	Description     string      `json:"description,omitempty"`
	ClientIP        string      `json:"clientIp,omitempty"`
	ClientUserAgent string      `json:"clientUserAgent,omitempty"`
}

// PaymentResponse contains the normalized result of a provider operation
type PaymentResponse struct {
	Success      bool           `json:"success"`
	Status       PaymentStatus  `json:"status"`
	PaymentID    string         `json:"paymentId,omitempty"`
	Amount       int64          `json:"amount,omitempty"`
	Currency     string         `json:"currency,omitempty"`
	QRCodeURL    string         `json:"qrCodeUrl,omitempty"`
	Memo         string         `json:"memo,omitempty"`
	Message      string         `json:"message,omitempty"`
	ErrorCode    string         `json:"errorCode,omitempty"`
	SystemTime   *time.Time     `json:"systemTime,omitempty"`
	ProviderData map[string]any `json:"providerData,omitempty"`
}

// RefundRequest contains information to request a refund.
// Amount is in the smallest currency unit; zero means full refund.
type RefundRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Amount    int64  `json:"amount,omitempty" validate:"gte=0"`
	Reason    string `json:"reason,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// RefundResponse contains the result of a refund request. Status is the
// processor's refund status reported back verbatim, lower-cased.
type RefundResponse struct {
	Success     bool       `json:"success"`
	RefundID    string     `json:"refundId,omitempty"`
	PaymentID   string     `json:"paymentId,omitempty"`
	Status      string     `json:"status,omitempty"`
	Amount      int64      `json:"amount,omitempty"`
	Message     string     `json:"message,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	SystemTime  *time.Time `json:"systemTime,omitempty"`
	RawResponse any        `json:"rawResponse,omitempty"`
}

// UpdateRequest contains the fields of an open payment that may be amended
type UpdateRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Currency  string `json:"currency" validate:"required,len=3"`
	Memo      string `json:"memo,omitempty"`
}

// WebhookAction is the state transition a verified webhook asks the host to apply
type WebhookAction string

const (
	WebhookAuthorized   WebhookAction = "authorized"
	WebhookCaptured     WebhookAction = "captured"
	WebhookNotSupported WebhookAction = "not_supported"
	WebhookFailed       WebhookAction = "failed"
)

// WebhookEvent is a verified inbound processor notification. It is consumed
// once and never persisted by the adapter; the session store applies the action.
type WebhookEvent struct {
	Action    WebhookAction `json:"action"`
	EventType string        `json:"eventType"`
	PaymentID string        `json:"paymentId,omitempty"`
	Amount    int64         `json:"amount,omitempty"`
}

// PaymentProvider defines the interface that all payment processor adapters
// must implement. Dependencies arrive through Initialize; every blocking
// operation takes a context and is bounded by the adapter's HTTP timeout.
//
// Gateway failures are returned as *GatewayError values tagged with the
// failing operation; they never cross this boundary as panics.
type PaymentProvider interface {
	// Initialize sets up the payment provider with authentication and configuration
	Initialize(config map[string]string) error

	// GetRequiredConfig returns the configuration fields required for this provider
	GetRequiredConfig(environment string) []ConfigField

	// ValidateConfig validates the provided configuration against provider requirements
	ValidateConfig(config map[string]string) error

	// CreatePayment initiates a payment; on success the session is pending
	CreatePayment(ctx context.Context, request PaymentRequest) (*PaymentResponse, error)

	// AuthorizePayment polls the processor and confirms authorization.
	// A payment the processor does not yet report as authorized returns a
	// not_authorized GatewayError; callers poll or wait for a webhook.
	AuthorizePayment(ctx context.Context, paymentID string) (*PaymentResponse, error)

	// CapturePayment captures an authorized payment
	CapturePayment(ctx context.Context, paymentID string) (*PaymentResponse, error)

	// CancelPayment cancels an open payment; safe to repeat
	CancelPayment(ctx context.Context, paymentID string) (*PaymentResponse, error)

	// RefundPayment issues a refund for a captured payment
	RefundPayment(ctx context.Context, request RefundRequest) (*RefundResponse, error)

	// UpdatePayment amends amount/currency/memo of an open payment
	UpdatePayment(ctx context.Context, request UpdateRequest) (*PaymentResponse, error)

	// RetrievePayment returns the full current processor record
	RetrievePayment(ctx context.Context, paymentID string) (*PaymentResponse, error)

	// GetPaymentStatus retrieves the current canonical status of a payment
	GetPaymentStatus(ctx context.Context, paymentID string) (*PaymentResponse, error)

	// ValidateWebhook verifies an inbound notification against the shared
	// secret and translates it into a WebhookEvent. A signature mismatch
	// returns a *VerificationError and no event.
	ValidateWebhook(ctx context.Context, body []byte, headers map[string]string) (*WebhookEvent, error)
}

// ProviderFactory is a function type that creates a new PaymentProvider
type ProviderFactory func() PaymentProvider
