// Package provider implements a unified payment processing interface that
// abstracts payment processors behind a single, consistent API.
//
// This package is the core abstraction layer of Payline. Applications work
// with one request/response vocabulary while adapters translate to and from
// the processor-specific wire formats.
//
// # Core Concepts
//
// The package is built around a few key interfaces and types:
//
//   - PaymentProvider: the interface every processor adapter implements
//   - PaymentService: routes operations to providers and persists sessions
//   - PaymentRequest/PaymentResponse: normalized request/response structures
//   - PaymentSession/SessionStore: the locally persisted payment lifecycle
//   - Registry: provider registration and discovery
//
// Amounts are int64 values in the smallest currency unit throughout: 1000
// means 10.00 EUR.
//
// # Basic Usage
//
// Creating a payment service and initiating a payment:
//
//	sessions, err := provider.NewSQLiteSessionStore("data/sessions.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	service := provider.NewPaymentService(sessions, nil)
//
//	config := map[string]string{
//	    "accessKey":     "your-access-key",
//	    "secretKey":     "your-secret-key",
//	    "webhookSecret": "your-webhook-secret",
//	    "environment":   "sandbox",
//	}
//	if err := service.AddProvider("flowpay", config); err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := service.CreatePayment(ctx, "flowpay", provider.PaymentRequest{
//	    Amount:   1000, // 10.00 EUR
//	    Currency: "EUR",
//	    Cart: provider.CartContext{
//	        StoreName:    "Demo Store",
//	        OrderDisplay: "Order 1001",
//	    },
//	})
//
// A successful initiation persists a session in the pending state. The
// session advances through webhooks or explicit authorize/capture calls:
//
//	pending -> authorized -> captured
//	pending -> canceled | error
//	authorized -> canceled | error
//
// captured and canceled are terminal. Cancel is idempotent: canceling an
// already canceled payment succeeds without a second processor call side
// effect. Refunds require a captured session and never change its status.
//
// # Webhooks
//
// Processor callbacks enter through PaymentService.HandleWebhook with the
// raw request body and headers. The adapter verifies authenticity (flowpay
// uses HMAC-SHA384 over the exact body bytes) before any state is touched;
// a failed verification returns *VerificationError and leaves the session
// unchanged.
//
//	event, session, err := service.HandleWebhook(ctx, "flowpay", body, headers)
//
// # Errors
//
// Gateway failures carry the failing operation as a *GatewayError code
// (init_failed, capture_failed, refund_failed, ...). Transport and decode
// failures use the unknown code. Token exchange failures surface as
// *AuthenticationError.
//
//	if ge, ok := provider.AsGatewayError(err); ok {
//	    log.Printf("operation %s failed: %s", ge.Code, ge.Detail)
//	}
//
// # Implementing a Provider
//
// New adapters implement PaymentProvider and register a factory in an init
// function:
//
//	func init() {
//	    provider.Register("myprocessor", func() provider.PaymentProvider {
//	        return &MyProcessorProvider{}
//	    })
//	}
//
// Configuration arrives through Initialize as a string map; required fields
// are declared via GetRequiredConfig and checked with ValidateConfigFields.
package provider
