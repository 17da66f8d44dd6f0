package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/payline-dev/payline/handler"
	"github.com/payline-dev/payline/infra/middle"
	v1 "github.com/payline-dev/payline/router/v1"

	// Import for side-effect registration
	_ "github.com/payline-dev/payline/provider/flowpay"
	_ "github.com/payline-dev/payline/provider/stripe"
)

// Routes mounts the versioned API. Webhook routes stay outside the auth
// group so processors can reach them without an API key.
func Routes(r chi.Router, paymentHandler *handler.PaymentHandler) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/{provider}", paymentHandler.HandleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middle.AuthMiddleware())
			v1.Routes(r, paymentHandler)
		})
	})
}
