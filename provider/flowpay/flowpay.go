package flowpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/payline-dev/payline/infra/config"
	"github.com/payline-dev/payline/provider"
)

const (
	// API URLs
	apiSandboxURL     = "https://api.sandbox.flowpay.io"
	apiProductionURL  = "https://api.flowpay.io"
	authSandboxURL    = "https://auth.sandbox.flowpay.io"
	authProductionURL = "https://auth.flowpay.io"

	// API Endpoints
	endpointToken    = "/token"
	endpointInitiate = "/payment/initiate"
	endpointStatus   = "/payment/%s/status"
	endpointCapture  = "/payment/%s/capture"
	endpointCancel   = "/payment/%s/cancel"
	endpointRefund   = "/payment/%s/refund"
	endpointRetrieve = "/payment/%s"
	endpointUpdate   = "/payment/%s/update"

	// Flowpay status strings
	statusAuthorized = "authorized"
	statusCaptured   = "captured"
	statusCanceled   = "canceled"

	// Webhook event types
	eventPaymentAuthorized = "payment_authorized"
	eventPaymentCaptured   = "payment_captured"

	signatureHeader = "X-Flowpay-Signature"

	// Tokens are refreshed slightly before the processor-reported expiry
	tokenExpirySkew = 30 * time.Second

	requestTimeout = 30 * time.Second
)

// FlowpayProvider implements the provider.PaymentProvider interface for Flowpay,
// a QR-transfer processor. Payments carry a memo (Verwendungszweck) built from
// the checkout context; authorization is confirmed by polling or webhook.
type FlowpayProvider struct {
	accessKey       string
	secretKey       string
	webhookSecret   string
	apiURL          string
	authURL         string
	notificationURL string
	isProduction    bool
	httpClient      *provider.ProviderHTTPClient
	tokens          *tokenSource
}

// NewProvider creates a new Flowpay payment provider
func NewProvider() provider.PaymentProvider {
	return &FlowpayProvider{}
}

// GetRequiredConfig returns the configuration fields required for Flowpay
func (p *FlowpayProvider) GetRequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "accessKey",
			Required:    true,
			Type:        "string",
			Description: "Flowpay project access key (provided by Flowpay)",
			Example:     "fp_access_4f6a2b8c9d",
			MinLength:   8,
			MaxLength:   64,
		},
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Flowpay project secret key (provided by Flowpay)",
			Example:     "fp_secret_1e3d5c7b9a",
			MinLength:   8,
			MaxLength:   64,
		},
		{
			Key:         "webhookSecret",
			Required:    true,
			Type:        "string",
			Description: "Shared secret for webhook signature verification",
			Example:     "whsec_8b1f4e6d2c",
			MinLength:   8,
			MaxLength:   128,
		},
		{
			Key:         "environment",
			Required:    true,
			Type:        "string",
			Description: "Environment setting (sandbox or production)",
			Example:     "sandbox",
			Pattern:     "^(sandbox|production)$",
		},
		{
			Key:         "apiUrl",
			Required:    false,
			Type:        "url",
			Description: "Override for the Flowpay API base URL",
			Example:     apiSandboxURL,
		},
		{
			Key:         "authUrl",
			Required:    false,
			Type:        "url",
			Description: "Override for the Flowpay authentication base URL",
			Example:     authSandboxURL,
		},
		{
			Key:         "notificationUrl",
			Required:    false,
			Type:        "url",
			Description: "Webhook delivery URL registered with Flowpay",
			Example:     "https://pay.example.com/v1/webhooks/flowpay",
		},
	}
}

// ValidateConfig validates the provided configuration against Flowpay requirements
func (p *FlowpayProvider) ValidateConfig(conf map[string]string) error {
	requiredFields := p.GetRequiredConfig(conf["environment"])
	return provider.ValidateConfigFields("flowpay", conf, requiredFields)
}

// Initialize sets up the Flowpay payment provider with authentication credentials
func (p *FlowpayProvider) Initialize(conf map[string]string) error {
	p.accessKey = conf["accessKey"]
	p.secretKey = conf["secretKey"]
	p.webhookSecret = conf["webhookSecret"]

	if p.accessKey == "" || p.secretKey == "" {
		return errors.New("flowpay: accessKey and secretKey are required")
	}
	if p.webhookSecret == "" {
		return errors.New("flowpay: webhookSecret is required")
	}

	p.isProduction = conf["environment"] == "production"
	if p.isProduction {
		p.apiURL = apiProductionURL
		p.authURL = authProductionURL
	} else {
		p.apiURL = apiSandboxURL
		p.authURL = authSandboxURL
	}
	if conf["apiUrl"] != "" {
		p.apiURL = strings.TrimSuffix(conf["apiUrl"], "/")
	}
	if conf["authUrl"] != "" {
		p.authURL = strings.TrimSuffix(conf["authUrl"], "/")
	}

	p.notificationURL = conf["notificationUrl"]
	if p.notificationURL == "" {
		baseURL := config.GetEnv("APP_URL", "http://localhost:9999")
		p.notificationURL = baseURL + "/v1/webhooks/flowpay"
	}

	p.httpClient = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(p.apiURL, p.isProduction, requestTimeout))
	p.tokens = newTokenSource(p.exchangeToken)

	return nil
}

// CreatePayment initiates a QR payment; on success the session is pending
func (p *FlowpayProvider) CreatePayment(ctx context.Context, request provider.PaymentRequest) (*provider.PaymentResponse, error) {
	if err := validatePaymentRequest(request); err != nil {
		return nil, fmt.Errorf("flowpay: invalid payment request: %w", err)
	}

	memo := buildMemo(request.Cart)

	body := map[string]any{
		"amount":          request.Amount,
		"currency":        strings.ToUpper(request.Currency),
		"memo":            memo,
		"notificationUrl": p.notificationURL,
	}
	if request.ReferenceID != "" {
		body["referenceId"] = request.ReferenceID
	}
	if request.Description != "" {
		body["description"] = request.Description
	}

	respBody, err := p.send(ctx, http.MethodPost, endpointInitiate, body, provider.ErrCodeInitFailed)
	if err != nil {
		return nil, err
	}

	var initResp struct {
		ID        string `json:"id"`
		QRCodeURL string `json:"qrCodeUrl"`
	}
	if err := json.Unmarshal(respBody, &initResp); err != nil {
		return nil, provider.WrapGatewayError(fmt.Errorf("flowpay: failed to parse initiate response: %w", err))
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusPending,
		PaymentID:  initResp.ID,
		Amount:     request.Amount,
		Currency:   strings.ToUpper(request.Currency),
		QRCodeURL:  initResp.QRCodeURL,
		Memo:       memo,
		SystemTime: &now,
		ProviderData: map[string]any{
			"id":        initResp.ID,
			"qrCodeUrl": initResp.QRCodeURL,
			"memo":      memo,
		},
	}, nil
}

// AuthorizePayment confirms that the processor reports the payment as
// authorized. A payment still awaiting the customer's transfer returns a
// not_authorized error without changing anything; callers poll or wait for
// the webhook.
func (p *FlowpayProvider) AuthorizePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}

	processorStatus, err := p.queryStatus(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if processorStatus != statusAuthorized {
		return nil, provider.NewGatewayError(provider.ErrCodeNotAuthorized,
			fmt.Sprintf("payment %s is %s", paymentID, processorStatus))
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusAuthorized,
		PaymentID:  paymentID,
		SystemTime: &now,
	}, nil
}

// CapturePayment captures an authorized payment
func (p *FlowpayProvider) CapturePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}

	respBody, err := p.send(ctx, http.MethodPost, fmt.Sprintf(endpointCapture, paymentID), nil, provider.ErrCodeCaptureFailed)
	if err != nil {
		return nil, err
	}

	return p.recordResponse(paymentID, provider.StatusCaptured, respBody)
}

// CancelPayment cancels an open payment. Safe to repeat; the processor treats
// cancellation of a canceled payment as a no-op.
func (p *FlowpayProvider) CancelPayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}

	respBody, err := p.send(ctx, http.MethodPost, fmt.Sprintf(endpointCancel, paymentID), nil, provider.ErrCodeCancelFailed)
	if err != nil {
		return nil, err
	}

	return p.recordResponse(paymentID, provider.StatusCanceled, respBody)
}

// RefundPayment issues a refund for a captured payment. A zero amount
// requests a full refund.
func (p *FlowpayProvider) RefundPayment(ctx context.Context, request provider.RefundRequest) (*provider.RefundResponse, error) {
	if request.PaymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}
	if request.Amount < 0 {
		return nil, errors.New("flowpay: refund amount cannot be negative")
	}

	body := map[string]any{}
	if request.Amount > 0 {
		body["amount"] = request.Amount
	}
	if request.Reason != "" {
		body["reason"] = request.Reason
	}

	respBody, err := p.send(ctx, http.MethodPost, fmt.Sprintf(endpointRefund, request.PaymentID), body, provider.ErrCodeRefundFailed)
	if err != nil {
		return nil, err
	}

	var refundResp struct {
		RefundID string `json:"refundId"`
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
	}
	if err := json.Unmarshal(respBody, &refundResp); err != nil {
		return nil, provider.WrapGatewayError(fmt.Errorf("flowpay: failed to parse refund response: %w", err))
	}

	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)

	now := time.Now()
	return &provider.RefundResponse{
		Success:   true,
		RefundID:  refundResp.RefundID,
		PaymentID: request.PaymentID,
		// Processor refund status is reported back verbatim, lower-cased
		Status:      strings.ToLower(refundResp.Status),
		Amount:      refundResp.Amount,
		SystemTime:  &now,
		RawResponse: raw,
	}, nil
}

// UpdatePayment amends amount, currency and memo of an open payment
func (p *FlowpayProvider) UpdatePayment(ctx context.Context, request provider.UpdateRequest) (*provider.PaymentResponse, error) {
	if request.PaymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}
	if request.Amount <= 0 {
		return nil, errors.New("flowpay: amount must be greater than 0")
	}
	if len(request.Currency) != 3 {
		return nil, errors.New("flowpay: currency must be a 3-letter ISO code")
	}

	body := map[string]any{
		"amount":   request.Amount,
		"currency": strings.ToUpper(request.Currency),
	}
	if request.Memo != "" {
		body["memo"] = request.Memo
	}

	respBody, err := p.send(ctx, http.MethodPost, fmt.Sprintf(endpointUpdate, request.PaymentID), body, provider.ErrCodeUpdateFailed)
	if err != nil {
		return nil, err
	}

	var updateResp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &updateResp); err != nil {
		return nil, provider.WrapGatewayError(fmt.Errorf("flowpay: failed to parse update response: %w", err))
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:    true,
		Status:     provider.StatusPending,
		PaymentID:  updateResp.ID,
		Amount:     request.Amount,
		Currency:   strings.ToUpper(request.Currency),
		Memo:       request.Memo,
		SystemTime: &now,
	}, nil
}

// RetrievePayment returns the full current processor record for a payment
func (p *FlowpayProvider) RetrievePayment(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}

	respBody, err := p.send(ctx, http.MethodGet, fmt.Sprintf(endpointRetrieve, paymentID), nil, provider.ErrCodeRetrieveFailed)
	if err != nil {
		return nil, err
	}

	var record struct {
		ID        string `json:"id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		Memo      string `json:"memo"`
		QRCodeURL string `json:"qrCodeUrl"`
	}
	if err := json.Unmarshal(respBody, &record); err != nil {
		return nil, provider.WrapGatewayError(fmt.Errorf("flowpay: failed to parse payment record: %w", err))
	}

	var raw map[string]any
	_ = json.Unmarshal(respBody, &raw)

	now := time.Now()
	return &provider.PaymentResponse{
		Success:      true,
		Status:       mapStatus(record.Status),
		PaymentID:    record.ID,
		Amount:       record.Amount,
		Currency:     record.Currency,
		QRCodeURL:    record.QRCodeURL,
		Memo:         record.Memo,
		SystemTime:   &now,
		ProviderData: raw,
	}, nil
}

// GetPaymentStatus retrieves the current canonical status of a payment.
// A failed status query reports the error status alongside the error.
func (p *FlowpayProvider) GetPaymentStatus(ctx context.Context, paymentID string) (*provider.PaymentResponse, error) {
	if paymentID == "" {
		return nil, errors.New("flowpay: paymentID is required")
	}

	processorStatus, err := p.queryStatus(ctx, paymentID)
	now := time.Now()
	if err != nil {
		return &provider.PaymentResponse{
			Success:    false,
			Status:     provider.StatusError,
			PaymentID:  paymentID,
			SystemTime: &now,
		}, err
	}

	return &provider.PaymentResponse{
		Success:    true,
		Status:     mapStatus(processorStatus),
		PaymentID:  paymentID,
		Message:    processorStatus,
		SystemTime: &now,
	}, nil
}

// ValidateWebhook verifies an inbound Flowpay notification against the shared
// secret and translates it into a webhook event. A signature mismatch returns
// a *provider.VerificationError and no event.
func (p *FlowpayProvider) ValidateWebhook(ctx context.Context, body []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	signature := headers[signatureHeader]
	if signature == "" {
		signature = headers[strings.ToLower(signatureHeader)]
	}
	if signature == "" {
		return nil, &provider.VerificationError{Detail: "missing signature header"}
	}

	if !p.verifySignature(body, signature) {
		return nil, &provider.VerificationError{Detail: "signature mismatch"}
	}

	var payload struct {
		EventType string `json:"event_type"`
		SessionID string `json:"session_id"`
		Amount    int64  `json:"amount"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		// The notification is authentic but unreadable; salvage what we can
		return salvageWebhookEvent(body), nil
	}

	event := &provider.WebhookEvent{
		EventType: payload.EventType,
		PaymentID: payload.SessionID,
		Amount:    payload.Amount,
	}

	switch payload.EventType {
	case eventPaymentAuthorized:
		event.Action = provider.WebhookAuthorized
	case eventPaymentCaptured:
		event.Action = provider.WebhookCaptured
	default:
		event.Action = provider.WebhookNotSupported
	}

	return event, nil
}

// verifySignature compares the hex HMAC-SHA384 of the raw body against the
// provided signature. Returns false on any mismatch, including a missing
// secret; it never reports why.
func (p *FlowpayProvider) verifySignature(body []byte, signature string) bool {
	if p.webhookSecret == "" {
		return false
	}

	mac := hmac.New(sha512.New384, []byte(p.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// salvageWebhookEvent extracts whatever session reference survives in a
// verified but malformed payload
func salvageWebhookEvent(body []byte) *provider.WebhookEvent {
	event := &provider.WebhookEvent{Action: provider.WebhookFailed}

	var partial map[string]any
	if err := json.Unmarshal(body, &partial); err != nil {
		return event
	}

	if sessionID, ok := partial["session_id"].(string); ok {
		event.PaymentID = sessionID
	}
	if amount, ok := partial["amount"].(float64); ok {
		event.Amount = int64(amount)
	}
	if eventType, ok := partial["event_type"].(string); ok {
		event.EventType = eventType
	}

	return event
}

// queryStatus asks the processor for the raw payment status string
func (p *FlowpayProvider) queryStatus(ctx context.Context, paymentID string) (string, error) {
	respBody, err := p.send(ctx, http.MethodGet, fmt.Sprintf(endpointStatus, paymentID), nil, provider.ErrCodeStatusFailed)
	if err != nil {
		return "", err
	}

	var statusResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &statusResp); err != nil {
		return "", provider.WrapGatewayError(fmt.Errorf("flowpay: failed to parse status response: %w", err))
	}

	return statusResp.Status, nil
}

// send issues a bearer-authenticated request and classifies the outcome:
// non-2xx becomes an operation-tagged GatewayError carrying the response text,
// transport failures become a GatewayError with code unknown.
func (p *FlowpayProvider) send(ctx context.Context, method, endpoint string, body any, errCode provider.GatewayErrorCode) ([]byte, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Body:     body,
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	})
	if err != nil {
		return nil, provider.WrapGatewayError(err)
	}

	if !resp.IsSuccess() {
		return nil, provider.NewGatewayError(errCode, strings.TrimSpace(resp.RawBody))
	}

	return resp.Body, nil
}

// recordResponse builds a response for a state-changing call, merging the
// processor's returned fields into ProviderData
func (p *FlowpayProvider) recordResponse(paymentID string, status provider.PaymentStatus, respBody []byte) (*provider.PaymentResponse, error) {
	var raw map[string]any
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &raw)
	}

	now := time.Now()
	return &provider.PaymentResponse{
		Success:      true,
		Status:       status,
		PaymentID:    paymentID,
		SystemTime:   &now,
		ProviderData: raw,
	}, nil
}

// exchangeToken performs the authentication call against the auth endpoint
func (p *FlowpayProvider) exchangeToken(ctx context.Context) (string, int64, error) {
	resp, err := p.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: p.authURL + endpointToken,
		Body: map[string]string{
			"projectAccessKey": p.accessKey,
			"projectSecretKey": p.secretKey,
		},
	})
	if err != nil {
		return "", 0, &provider.AuthenticationError{Detail: "token request failed", Cause: err}
	}

	if !resp.IsSuccess() {
		return "", 0, &provider.AuthenticationError{
			Detail: fmt.Sprintf("auth endpoint returned status %d", resp.StatusCode),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := json.Unmarshal(resp.Body, &tokenResp); err != nil {
		return "", 0, &provider.AuthenticationError{Detail: "malformed token response", Cause: err}
	}
	if tokenResp.AccessToken == "" {
		return "", 0, &provider.AuthenticationError{Detail: "auth endpoint returned an empty token"}
	}

	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

// validatePaymentRequest validates the payment request
func validatePaymentRequest(request provider.PaymentRequest) error {
	if request.Amount <= 0 {
		return errors.New("amount must be greater than 0")
	}

	if len(request.Currency) != 3 {
		return errors.New("currency must be a 3-letter ISO code")
	}

	return nil
}

// buildMemo builds the payment reference (Verwendungszweck) from the checkout
// context so the transfer can be reconciled with the order
func buildMemo(cart provider.CartContext) string {
	var parts []string

	if cart.StoreName != "" {
		parts = append(parts, cart.StoreName)
	}

	switch {
	case cart.OrderDisplay != "":
		parts = append(parts, "Order "+cart.OrderDisplay)
	case cart.CartID != "":
		parts = append(parts, "Cart "+cart.CartID)
	}

	return strings.Join(parts, " ")
}

// mapStatus maps a Flowpay status string to the canonical payment status.
// Anything unrecognized is still pending.
func mapStatus(processorStatus string) provider.PaymentStatus {
	switch strings.ToLower(processorStatus) {
	case statusAuthorized:
		return provider.StatusAuthorized
	case statusCaptured:
		return provider.StatusCaptured
	case statusCanceled:
		return provider.StatusCanceled
	default:
		return provider.StatusPending
	}
}

// tokenSource caches the bearer credential and refreshes it on expiry. The
// mutex is held across the exchange so concurrent callers wait for one
// in-flight authentication call instead of issuing duplicates.
type tokenSource struct {
	exchange func(ctx context.Context) (string, int64, error)
	now      func() time.Time

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

func newTokenSource(exchange func(ctx context.Context) (string, int64, error)) *tokenSource {
	return &tokenSource{
		exchange: exchange,
		now:      time.Now,
	}
}

// Token returns a credential that is valid now, refreshing it first if the
// cached one is absent or expired
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && t.now().Before(t.expiry) {
		return t.accessToken, nil
	}

	token, expiresIn, err := t.exchange(ctx)
	if err != nil {
		return "", err
	}

	t.accessToken = token
	t.expiry = t.now().Add(time.Duration(expiresIn)*time.Second - tokenExpirySkew)

	return token, nil
}
