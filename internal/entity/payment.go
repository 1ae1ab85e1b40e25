package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// PaymentStatus tracks the state of a gateway transaction.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment records one online gateway transaction. Cash and manual
// confirmations never create Payment rows. ProviderSessionID is unique so a
// redelivered webhook cannot record the same checkout twice.
type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID                int64         `bun:",pk,autoincrement"`
	OrderID           int64         `bun:"order_id,nullzero"`
	ProviderSessionID string        `bun:"provider_session_id"`
	PaymentIntentID   string        `bun:"payment_intent_id"`
	Amount            float64       `bun:"amount"`
	Currency          string        `bun:"currency"`
	Method            string        `bun:"method"`
	Status            PaymentStatus `bun:"status"`
	CreatedAt         time.Time     `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero"`
}
