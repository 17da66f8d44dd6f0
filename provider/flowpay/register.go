package flowpay

import "github.com/payline-dev/payline/provider"

// Register Flowpay provider with the gateway registry
func init() {
	provider.Register("flowpay", NewProvider)
}
