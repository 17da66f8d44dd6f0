package stripe

import "github.com/payline-dev/payline/provider"

// Register Stripe provider with the gateway registry
func init() {
	provider.Register("stripe", NewProvider)
}
