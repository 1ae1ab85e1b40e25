package dto

import (
	"time"

	"github.com/Additional-Code/roomserve/internal/entity"
)

// RoomView is the resolved room reference carried on an order view.
type RoomView struct {
	ID       int64  `json:"id"`
	Num      string `json:"num"`
	Location string `json:"location,omitempty"`
}

// ExtraView is one priced addition on a resolved line item.
type ExtraView struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// LineItemView is a line item with its dish reference expanded.
type LineItemView struct {
	DishID             int64       `json:"dish_id"`
	DishName           string      `json:"dish_name,omitempty"`
	UnitPrice          float64     `json:"unit_price,omitempty"`
	Quantity           int         `json:"quantity"`
	RemovedIngredients []string    `json:"removed_ingredients,omitempty"`
	AddedExtras        []ExtraView `json:"added_extras,omitempty"`
}

// OrderView is the single resolved representation of an order used by every
// consumer: HTTP responses and realtime broadcasts alike.
type OrderView struct {
	ID            int64                `json:"id"`
	OrderNumber   int64                `json:"order_number"`
	Room          *RoomView            `json:"room,omitempty"`
	RoomID        int64                `json:"room_id"`
	Items         []LineItemView       `json:"items"`
	PaymentMethod entity.PaymentMethod `json:"payment_method"`
	TotalPrice    float64              `json:"total_price"`
	Status        entity.OrderStatus   `json:"status"`
	IsPaid        bool                 `json:"is_paid"`
	ConfirmedAt   *time.Time           `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// CheckoutSessionResponse carries the gateway redirect for an online cart.
type CheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ExtraRequest is one requested addition on a submitted line item. UnitPrice
// is only honored when the dish does not define the extra itself.
type ExtraRequest struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// LineItemRequest is one dish entry in a submitted cart.
type LineItemRequest struct {
	DishID             int64          `json:"dish_id"`
	Quantity           int            `json:"quantity"`
	RemovedIngredients []string       `json:"removed_ingredients"`
	AddedExtras        []ExtraRequest `json:"added_extras"`
}

// CreateOrderRequest is the client cart submission.
type CreateOrderRequest struct {
	Items         []LineItemRequest    `json:"items"`
	PaymentMethod entity.PaymentMethod `json:"payment_method"`
}

// LineItems converts the submitted cart into domain line items.
func (r CreateOrderRequest) LineItems() []entity.LineItem {
	items := make([]entity.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		extras := make([]entity.Extra, 0, len(item.AddedExtras))
		for _, extra := range item.AddedExtras {
			extras = append(extras, entity.Extra{
				Name:      extra.Name,
				UnitPrice: extra.UnitPrice,
				Quantity:  extra.Quantity,
			})
		}
		items = append(items, entity.LineItem{
			DishID:             item.DishID,
			Quantity:           item.Quantity,
			RemovedIngredients: item.RemovedIngredients,
			AddedExtras:        extras,
		})
	}
	return items
}

// UpdateStatusRequest is the admin/kitchen status change payload. IsPaid is
// admin-only and optional.
type UpdateStatusRequest struct {
	Status entity.OrderStatus `json:"status"`
	IsPaid *bool              `json:"is_paid,omitempty"`
}
