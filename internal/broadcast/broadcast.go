package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/messaging"
)

// Event names understood by connected dashboards.
const (
	EventNewOrder          = "new_order"
	EventOrderUpdated      = "order_updated"
	EventOrderPaid         = "order_paid"
	EventNewNotification   = "new_notification"
	EventMenuUpdated       = "menu_updated"
	EventCategoriesUpdated = "categories_updated"
)

// Envelope is the wire shape published to the realtime topic.
type Envelope struct {
	Event   string          `json:"event"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Events is the fire-and-forget realtime sink. Emit never returns an error:
// delivery failures are logged and must not roll back the state change that
// produced the event.
type Events interface {
	Emit(ctx context.Context, event string, payload any)
}

// Module provides the broadcast sink.
var Module = fx.Provide(NewEvents)

type busEvents struct {
	client messaging.Client
	logger *zap.Logger
}

// NewEvents wires the realtime sink on top of the messaging client.
func NewEvents(client messaging.Client, logger *zap.Logger) Events {
	return &busEvents{client: client, logger: logger}
}

func (b *busEvents) Emit(ctx context.Context, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal broadcast payload", zap.String("event", event), zap.Error(err))

		return
	}

	envelope, err := json.Marshal(Envelope{Event: event, At: time.Now().UTC(), Payload: raw})
	if err != nil {
		b.logger.Error("marshal broadcast envelope", zap.String("event", event), zap.Error(err))

		return
	}

	if err := b.client.Publish(ctx, []byte(event), envelope); err != nil {
		b.logger.Error("publish broadcast event", zap.String("event", event), zap.Error(err))
	}
}
