package payment

import "go.uber.org/fx"

// Module provides the payment reconciliation service.
var Module = fx.Provide(NewService)
