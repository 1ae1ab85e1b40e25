package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known lifecycle status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentMethod distinguishes the two supported payment flows.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnline
}

// Extra is a paid addition to a dish within a line item.
type Extra struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// LineItem is one dish entry within an order. Items are embedded in the
// order row; they have no identity of their own.
type LineItem struct {
	DishID             int64    `json:"dish_id"`
	Quantity           int      `json:"quantity"`
	RemovedIngredients []string `json:"removed_ingredients,omitempty"`
	AddedExtras        []Extra  `json:"added_extras,omitempty"`
}

// Order is the aggregate root of the ordering domain. Status and IsPaid are
// independent axes: a pending cash order is unpaid, while a webhook-created
// online order is paid from the start.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID                int64         `bun:",pk,autoincrement"`
	RoomID            int64         `bun:"room_id"`
	OrderNumber       int64         `bun:"order_number"`
	LineItems         []LineItem    `bun:"line_items,type:jsonb"`
	PaymentMethod     PaymentMethod `bun:"payment_method"`
	TotalPrice        float64       `bun:"total_price"`
	Status            OrderStatus   `bun:"status"`
	IsPaid            bool          `bun:"is_paid"`
	IsVisibleToClient bool          `bun:"is_visible_to_client"`
	ConfirmedAt       *time.Time    `bun:"confirmed_at,nullzero"`
	CreatedAt         time.Time     `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero"`
}
