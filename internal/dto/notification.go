package dto

import (
	"time"

	"github.com/Additional-Code/roomserve/internal/entity"
)

// CreateNotificationRequest is the admin payload for a manual notification.
type CreateNotificationRequest struct {
	To      entity.Recipient `json:"to"`
	OrderID *int64           `json:"order_id,omitempty"`
	Message string           `json:"message"`
}

// NotificationResponse represents a notification as exposed via transport
// layers.
type NotificationResponse struct {
	ID        int64            `json:"id"`
	To        entity.Recipient `json:"to"`
	OrderID   *int64           `json:"order_id,omitempty"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
