package identity

import (
	"context"

	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

// Role is the caller's resolved role. Session issuance happens upstream;
// the service trusts the resolved identity it is handed.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleKitchen Role = "kitchen"
	RoleClient  Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleKitchen || r == RoleClient
}

// Principal is the resolved caller identity attached to every lifecycle
// operation. RoomID is only meaningful for clients.
type Principal struct {
	Role   Role
	RoomID int64
}

type ctxKey struct{}

// WithPrincipal stores the principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext extracts the principal placed by the identity middleware.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok {
		return Principal{}, errorbank.Unauthorized("caller identity missing")
	}
	return p, nil
}
