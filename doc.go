// Package payline provides a unified payment gateway that abstracts payment
// processors behind a single, standardized API. It sits between your
// applications and the processors, handling authentication, session state,
// webhooks and logging in one place.
//
// # Overview
//
// Integrating a payment processor means dealing with its authentication
// scheme, its payment lifecycle, its webhook signing and its error formats.
// Payline standardizes all of that into one consistent HTTP interface and
// one Go package API, so switching or adding processors does not touch the
// calling application.
//
// # Architecture
//
// The payment flow follows this pattern:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   Your Apps     │◄──►│    Payline      │◄──►│   Payment       │
//	│                 │    │   (Gateway)     │    │   Processors    │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Supported Providers
//
//   - Flowpay: QR-based payments with bearer-token auth and HMAC-SHA384
//     signed webhooks
//   - Stripe: card payments through PaymentIntents with manual capture
//
// # Payment Lifecycle
//
// Every initiated payment is persisted as a session that moves through a
// fixed state machine:
//
//	pending -> authorized -> captured
//	pending | authorized -> canceled | error
//
// captured and canceled are terminal. Amounts are integers in the smallest
// currency unit (1000 = 10.00 EUR).
//
// # HTTP API
//
// All payment endpoints live under /v1 and require a Bearer API key; webhook
// endpoints are reachable without one so processors can call them:
//
//	POST   /v1/payments/{provider}                      initiate
//	GET    /v1/payments/{provider}/{paymentID}          retrieve
//	GET    /v1/payments/{provider}/{paymentID}/status   canonical status
//	POST   /v1/payments/{provider}/{paymentID}/authorize
//	POST   /v1/payments/{provider}/{paymentID}/capture
//	DELETE /v1/payments/{provider}/{paymentID}          cancel (idempotent)
//	POST   /v1/payments/{provider}/{paymentID}/refund
//	PUT    /v1/payments/{provider}/{paymentID}          amend amount/memo
//	GET    /v1/sessions/{paymentID}                     local session state
//	POST   /v1/webhooks/{provider}                      processor callbacks
//	GET    /health                                      health checks
//
// # Configuration
//
// Providers are configured through environment variables using the
// PROVIDER_KEY naming convention:
//
//	FLOWPAY_ACCESS_KEY=pk_...
//	FLOWPAY_SECRET_KEY=sk_...
//	FLOWPAY_WEBHOOK_SECRET=whsec_...
//	FLOWPAY_ENVIRONMENT=sandbox
//
//	STRIPE_SECRET_KEY=sk_test_...
//	STRIPE_WEBHOOK_SECRET=whsec_...
//	STRIPE_ENVIRONMENT=sandbox
//
// Configurations can also be persisted to SQLite and survive restarts;
// environment variables take precedence at startup.
//
// # Quick Start
//
//	export API_KEY=your-gateway-key
//	export FLOWPAY_ACCESS_KEY=...
//	export FLOWPAY_SECRET_KEY=...
//	go run ./cmd
//
// Then initiate a payment:
//
//	curl -X POST http://localhost:9999/v1/payments/flowpay \
//	  -H "Authorization: Bearer your-gateway-key" \
//	  -H "Content-Type: application/json" \
//	  -d '{"amount": 1000, "currency": "EUR"}'
//
// # Observability
//
// Request/response pairs are logged to SQLite with credentials masked, and
// optionally mirrored to OpenSearch for search and per-provider statistics
// when ENABLE_OPENSEARCH_LOGGING is set.
package payline
