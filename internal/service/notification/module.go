package notification

import "go.uber.org/fx"

// Module provides the notification service.
var Module = fx.Provide(NewService)
