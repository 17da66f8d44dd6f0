package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/payline-dev/payline/handler"
)

// Routes registers all authenticated API routes
func Routes(r chi.Router, paymentHandler *handler.PaymentHandler) {
	// Payment routes
	r.Route("/payments", func(r chi.Router) {
		// General payment route (uses default provider)
		r.Post("/", paymentHandler.CreatePayment)

		// Provider-specific payment routes
		r.Post("/{provider}", paymentHandler.CreatePayment)
		r.Get("/{provider}/{paymentID}", paymentHandler.RetrievePayment)
		r.Get("/{provider}/{paymentID}/status", paymentHandler.GetPaymentStatus)
		r.Post("/{provider}/{paymentID}/authorize", paymentHandler.AuthorizePayment)
		r.Post("/{provider}/{paymentID}/capture", paymentHandler.CapturePayment)
		r.Delete("/{provider}/{paymentID}", paymentHandler.CancelPayment)
		r.Post("/{provider}/{paymentID}/refund", paymentHandler.RefundPayment)
		r.Put("/{provider}/{paymentID}", paymentHandler.UpdatePayment)
	})

	// Locally persisted session state
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/{paymentID}", paymentHandler.GetSession)
	})

	// Stats endpoint for logging statistics (handled by middleware)
	// GET /v1/stats?provider=flowpay&hours=24
}
