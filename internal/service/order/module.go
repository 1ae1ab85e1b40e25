package order

import "go.uber.org/fx"

// Module provides the order lifecycle service.
var Module = fx.Provide(NewService)
