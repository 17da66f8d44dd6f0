// Package handler provides HTTP request handlers for the Payline payment gateway.
//
// Payment sessions and audit logs are stored in **SQLite**; request traces can
// additionally be shipped to OpenSearch.
//
// This package contains the HTTP handlers that implement the REST API
// endpoints for payment processing and health monitoring. The handlers
// bridge the HTTP layer with the underlying payment provider services.
//
// # Core Handlers
//
//   - PaymentHandler: Handles the payment lifecycle (initiate, authorize,
//     capture, cancel, refund, update, retrieve, status) plus webhooks
//   - HealthHandler: Performs database, provider and system health checks
//
// # Payment Handler
//
// The PaymentHandler manages all payment-related HTTP requests:
//
//	paymentHandler := handler.NewPaymentHandler(paymentService, validator)
//
//	// Routes
//	r.Post("/v1/payments/{provider}", paymentHandler.CreatePayment)
//	r.Get("/v1/payments/{provider}/{paymentID}", paymentHandler.RetrievePayment)
//	r.Get("/v1/payments/{provider}/{paymentID}/status", paymentHandler.GetPaymentStatus)
//	r.Post("/v1/payments/{provider}/{paymentID}/authorize", paymentHandler.AuthorizePayment)
//	r.Post("/v1/payments/{provider}/{paymentID}/capture", paymentHandler.CapturePayment)
//	r.Delete("/v1/payments/{provider}/{paymentID}", paymentHandler.CancelPayment)
//	r.Post("/v1/payments/{provider}/{paymentID}/refund", paymentHandler.RefundPayment)
//	r.Put("/v1/payments/{provider}/{paymentID}", paymentHandler.UpdatePayment)
//
// Example initiation request:
//
//	POST /v1/payments/flowpay
//	Headers:
//	  Authorization: Bearer your-api-key
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "amount": 1000,
//	  "currency": "EUR",
//	  "cart": {
//	    "cartId": "cart_42",
//	    "orderDisplay": "1001",
//	    "customerEmail": "john@example.com",
//	    "storeName": "Demo Store"
//	  }
//	}
//
// Amounts are integers in the smallest currency unit, so 1000 above is
// 10.00 EUR.
//
// # Webhook Handling
//
// Processor notifications are received on a public route:
//
//	r.Post("/v1/webhooks/{provider}", paymentHandler.HandleWebhook)
//
// The raw request body is passed to the provider adapter byte for byte so
// that HMAC signatures verify against exactly what the processor sent. A
// request that fails verification is answered with 401 and causes no
// session state change.
//
// # Request Validation
//
// All handlers use structured validation for incoming requests:
//
//	type PaymentRequest struct {
//	    Amount   int64  `json:"amount" validate:"gt=0"`
//	    Currency string `json:"currency" validate:"required,len=3"`
//	}
//
// Validation errors are returned with detailed messages:
//
//	{
//	  "success": false,
//	  "message": "Validation error",
//	  "error": "..."
//	}
//
// # Error Handling
//
// Processor-reported failures carry their operation code:
//
//	{
//	  "success": false,
//	  "message": "Payment capture failed",
//	  "error": "capture_failed: insufficient balance",
//	  "data": {"errorCode": "capture_failed"}
//	}
//
// Gateway errors map to 502 Bad Gateway, except a refused authorization
// which maps to 409 Conflict.
//
// # Authentication
//
// API endpoints require Bearer token authentication:
//
//	Authorization: Bearer your-api-key
//
// Webhook and health check endpoints are public and don't require
// authentication.
//
// # HTTP Status Codes
//
//   - 200 OK: Successful operation
//   - 400 Bad Request: Invalid request format or validation error
//   - 401 Unauthorized: Missing or invalid authentication, or a webhook
//     signature that failed verification
//   - 404 Not Found: Payment session not found
//   - 409 Conflict: Authorization confirmed before the processor reported it
//   - 429 Too Many Requests: Rate limit exceeded
//   - 502 Bad Gateway: Processor rejected or failed the operation
//   - 500 Internal Server Error: Server-side error
package handler
