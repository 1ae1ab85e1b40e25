// Package gateway abstracts the external checkout provider. The reconciler
// and transport layers only see this interface; provider types never leak
// past it.
package gateway

import (
	"context"
	"errors"
)

// Event types the reconciler reacts to. Values match the provider's wire
// names so raw payloads can be correlated in logs.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// ErrInvalidSignature is returned when the webhook payload fails
// verification. Nothing may be mutated on this error.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutItem is one priced line on a hosted checkout page. UnitAmount is
// in the currency's minor unit.
type CheckoutItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// CheckoutRequest describes the session to create. Metadata round-trips
// through the provider and comes back on the completed event.
type CheckoutRequest struct {
	Items    []CheckoutItem
	Metadata map[string]string
}

// CheckoutSession is the created hosted session the client is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutEvent is a verified, decoded webhook event.
type CheckoutEvent struct {
	Type            string
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

// Gateway is the checkout provider contract.
type Gateway interface {
	// CreateCheckoutSession opens a hosted checkout session for the items.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseEvent verifies the webhook signature and decodes the event.
	// Returns ErrInvalidSignature when verification fails.
	ParseEvent(payload []byte, signature string) (*CheckoutEvent, error)
}
