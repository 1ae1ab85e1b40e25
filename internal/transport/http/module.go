package http

import (
	"go.uber.org/fx"

	notificationtransport "github.com/Additional-Code/roomserve/internal/transport/http/notification"
	ordertransport "github.com/Additional-Code/roomserve/internal/transport/http/order"
	paymenttransport "github.com/Additional-Code/roomserve/internal/transport/http/payment"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	paymenttransport.Module,
	notificationtransport.Module,
)
