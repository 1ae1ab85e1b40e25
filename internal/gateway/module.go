package gateway

import "go.uber.org/fx"

// Module provides the checkout gateway.
var Module = fx.Provide(NewStripe)
