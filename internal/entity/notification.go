package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Recipient names the audience of a notification.
type Recipient string

const (
	RecipientAdmin   Recipient = "admin"
	RecipientKitchen Recipient = "kitchen"
	RecipientClient  Recipient = "client"
)

// Valid reports whether r is a known recipient.
func (r Recipient) Valid() bool {
	return r == RecipientAdmin || r == RecipientKitchen || r == RecipientClient
}

// Notification is one role-targeted message produced by the fan-out.
// OrderID is nullable: payment-session-expired notices have no order.
type Notification struct {
	bun.BaseModel `bun:"table:notifications"`

	ID        int64     `bun:",pk,autoincrement"`
	To        Recipient `bun:"recipient"`
	OrderID   *int64    `bun:"order_id,nullzero"`
	Message   string    `bun:"message"`
	IsRead    bool      `bun:"is_read"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
