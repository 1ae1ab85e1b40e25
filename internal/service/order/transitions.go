package order

import (
	"github.com/Additional-Code/roomserve/internal/entity"
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

// kitchenNext is the strict single-step transition map for kitchen staff.
// Anything outside this map is rejected regardless of how plausible the
// requested status looks.
var kitchenNext = map[entity.OrderStatus]entity.OrderStatus{
	entity.StatusConfirmed: entity.StatusPreparing,
	entity.StatusPreparing: entity.StatusReady,
}

// allowTransition decides whether role may move an order from one status to
// another. Admin holds an escape hatch over any non-terminal order; kitchen
// is bound to kitchenNext; clients never transition directly (they cancel
// through allowCancel).
func allowTransition(role identity.Role, from, to entity.OrderStatus) error {
	if !to.Valid() {
		return errorbank.BadRequest("unknown status", errorbank.WithDetail("status", to))
	}
	if from.Terminal() {
		return errorbank.Unprocessable("illegal transition",
			errorbank.WithDetail("from", from),
			errorbank.WithDetail("to", to),
		)
	}

	switch role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleKitchen:
		if next, ok := kitchenNext[from]; ok && next == to {
			return nil
		}
		return errorbank.Forbidden("kitchen may only advance confirmed and preparing orders",
			errorbank.WithDetail("from", from),
			errorbank.WithDetail("to", to),
		)
	default:
		return errorbank.Forbidden("role may not change order status")
	}
}

// allowCancel decides whether role may cancel an order in the given status.
func allowCancel(role identity.Role, from entity.OrderStatus) error {
	if from.Terminal() {
		return errorbank.Unprocessable("illegal transition",
			errorbank.WithDetail("from", from),
			errorbank.WithDetail("to", entity.StatusCancelled),
		)
	}

	switch role {
	case identity.RoleAdmin:
		return nil
	case identity.RoleClient:
		if from == entity.StatusPending {
			return nil
		}
		return errorbank.Forbidden("orders can only be cancelled while pending",
			errorbank.WithDetail("from", from),
		)
	default:
		return errorbank.Forbidden("role may not cancel orders")
	}
}
