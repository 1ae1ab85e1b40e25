// Package payment reconciles external checkout signals into order state.
// The webhook path is the only creator of Payment records and of online
// orders; it must converge under at-least-once delivery.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/broadcast"
	"github.com/Additional-Code/roomserve/internal/config"
	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	"github.com/Additional-Code/roomserve/internal/gateway"
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/internal/pricing"
	catalogrepo "github.com/Additional-Code/roomserve/internal/repository/catalog"
	counterrepo "github.com/Additional-Code/roomserve/internal/repository/counter"
	repo "github.com/Additional-Code/roomserve/internal/repository/payment"
	notifsvc "github.com/Additional-Code/roomserve/internal/service/notification"
	ordersvc "github.com/Additional-Code/roomserve/internal/service/order"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/roomserve/service/payment")

// Metadata keys round-tripped through the checkout provider.
const (
	metaRoomID     = "room_id"
	metaTotalPrice = "total_price"
	metaLineItems  = "line_items"
)

// paymentStore is the slice of the payment repository the reconciler uses.
type paymentStore interface {
	RecordCheckout(ctx context.Context, order *entity.Order, payment *entity.Payment) error
}

// sequence allocates order numbers.
type sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// catalogStore resolves dish and room references at session-creation time.
type catalogStore interface {
	DishesByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Dish, error)
	Room(ctx context.Context, id int64) (*entity.Room, error)
}

// notifier is the fan-out sink for role-targeted messages.
type notifier interface {
	Notify(ctx context.Context, to entity.Recipient, orderID *int64, message string)
}

// viewResolver expands webhook-created orders for broadcast.
type viewResolver interface {
	ResolveView(ctx context.Context, order *entity.Order) *dto.OrderView
}

// Service creates checkout sessions and reconciles the resulting webhook
// events.
type Service struct {
	gateway  gateway.Gateway
	payments paymentStore
	sequence sequence
	catalog  catalogStore
	notifier notifier
	views    viewResolver
	events   broadcast.Events
	cfg      config.Payments
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Gateway  gateway.Gateway
	Payments *repo.Repository
	Counters *counterrepo.Repository
	Catalog  *catalogrepo.Repository
	Notifier *notifsvc.Service
	Orders   *ordersvc.Service
	Events   broadcast.Events
	Config   config.Config
	Logger   *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		gateway:  p.Gateway,
		payments: p.Payments,
		sequence: p.Counters,
		catalog:  p.Catalog,
		notifier: p.Notifier,
		views:    p.Orders,
		events:   p.Events,
		cfg:      p.Config.Payments,
		logger:   p.Logger,
	}
}

// CreateCheckoutSession prices the cart and opens a hosted checkout session.
// No order exists yet; the cart rides along as session metadata and the
// completed webhook creates the order.
func (s *Service) CreateCheckoutSession(ctx context.Context, p identity.Principal, req dto.CreateOrderRequest) (*dto.CheckoutSessionResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.CreateCheckoutSession", trace.WithAttributes(attribute.Int64("room.id", p.RoomID)))
	defer span.End()

	if len(req.Items) == 0 {
		return nil, errorbank.BadRequest("order must contain at least one item")
	}
	if p.RoomID <= 0 {
		return nil, errorbank.BadRequest("room is required")
	}
	if _, err := s.catalog.Room(ctx, p.RoomID); err != nil {
		if errors.Is(err, catalogrepo.ErrRoomNotFound) {
			return nil, errorbank.NotFound("room not found", errorbank.WithDetail("room_id", p.RoomID))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "room lookup failed")
		return nil, errorbank.Internal("failed to resolve room", errorbank.WithCause(err))
	}

	items := req.LineItems()
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.DishID)
	}
	dishes, err := s.catalog.DishesByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dish lookup failed")
		return nil, errorbank.Internal("failed to resolve dishes", errorbank.WithCause(err))
	}

	total, err := pricing.Total(items, dishes)
	if err != nil {
		return nil, errorbank.NotFound("dish not found", errorbank.WithCause(err))
	}

	checkoutItems, err := buildCheckoutItems(items, dishes)
	if err != nil {
		return nil, err
	}

	cart, err := json.Marshal(items)
	if err != nil {
		return nil, errorbank.Internal("failed to encode cart", errorbank.WithCause(err))
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		Items: checkoutItems,
		Metadata: map[string]string{
			metaRoomID:     strconv.FormatInt(p.RoomID, 10),
			metaTotalPrice: strconv.FormatFloat(total, 'f', 2, 64),
			metaLineItems:  string(cart),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "gateway error")
		return nil, errorbank.Internal("failed to create checkout session", errorbank.WithCause(err))
	}

	return &dto.CheckoutSessionResponse{SessionID: session.ID, URL: session.URL}, nil
}

// HandleWebhook verifies and applies one gateway event. Redelivered
// completed events converge on a single order and payment record.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			span.SetStatus(codes.Error, "invalid signature")
			return errorbank.BadRequest("invalid webhook signature")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode error")
		return errorbank.BadRequest("malformed webhook payload", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.String("event.type", event.Type))

	switch event.Type {
	case gateway.EventCheckoutCompleted:
		return s.handleCompleted(ctx, event)
	case gateway.EventCheckoutExpired:
		s.notifier.Notify(ctx, entity.RecipientClient, nil, "Your payment session expired, please order again")
		return nil
	default:
		s.logger.Debug("ignoring gateway event", zap.String("type", event.Type))
		return nil
	}
}

// handleCompleted creates the order directly confirmed and paid, with its
// payment record, in one transaction keyed by the session id.
func (s *Service) handleCompleted(ctx context.Context, event *gateway.CheckoutEvent) error {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.handleCompleted", trace.WithAttributes(
		attribute.String("session.id", event.SessionID),
	))
	defer span.End()

	roomID, err := strconv.ParseInt(event.Metadata[metaRoomID], 10, 64)
	if err != nil || roomID <= 0 {
		return errorbank.BadRequest("session metadata missing room", errorbank.WithCause(err))
	}
	var items []entity.LineItem
	if err := json.Unmarshal([]byte(event.Metadata[metaLineItems]), &items); err != nil || len(items) == 0 {
		return errorbank.BadRequest("session metadata missing cart", errorbank.WithCause(err))
	}
	total, err := strconv.ParseFloat(event.Metadata[metaTotalPrice], 64)
	if err != nil {
		total = float64(event.AmountTotal) / 100
	}

	// A redelivered session burns a number here; the transaction below rolls
	// everything else back. Numbers stay unique and increasing, gaps are fine.
	number, err := s.sequence.Next(ctx, entity.CounterOrderNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sequence error")
		return errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	order := &entity.Order{
		RoomID:            roomID,
		OrderNumber:       number,
		LineItems:         items,
		PaymentMethod:     entity.PaymentOnline,
		TotalPrice:        total,
		Status:            entity.StatusConfirmed,
		IsPaid:            true,
		IsVisibleToClient: true,
		ConfirmedAt:       &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	currency := event.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}
	payment := &entity.Payment{
		ProviderSessionID: event.SessionID,
		PaymentIntentID:   event.PaymentIntentID,
		Amount:            total,
		Currency:          currency,
		Method:            "card",
		Status:            entity.PaymentStatusPaid,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.payments.RecordCheckout(ctx, order, payment); err != nil {
		if errors.Is(err, repo.ErrDuplicateSession) {
			s.logger.Info("duplicate checkout session delivery ignored", zap.String("session_id", event.SessionID))
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "record checkout failed")
		return errorbank.Internal("failed to record checkout", errorbank.WithCause(err))
	}

	view := s.views.ResolveView(ctx, order)
	s.events.Emit(ctx, broadcast.EventNewOrder, view)
	staffMessage := fmt.Sprintf("New paid order #%d from room %d", order.OrderNumber, order.RoomID)
	s.notifier.Notify(ctx, entity.RecipientAdmin, &order.ID, staffMessage)
	s.notifier.Notify(ctx, entity.RecipientKitchen, &order.ID, staffMessage)
	s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Payment received, your order #%d is confirmed", order.OrderNumber))
	return nil
}

// buildCheckoutItems turns the cart into provider line items, one per dish
// plus one per extra, with amounts in minor units.
func buildCheckoutItems(items []entity.LineItem, dishes map[int64]*entity.Dish) ([]gateway.CheckoutItem, error) {
	out := make([]gateway.CheckoutItem, 0, len(items))
	for _, item := range items {
		dish, ok := dishes[item.DishID]
		if !ok || dish == nil {
			return nil, errorbank.NotFound("dish not found", errorbank.WithDetail("dish_id", item.DishID))
		}
		qty := int64(item.Quantity)
		if qty < 1 {
			qty = 1
		}
		out = append(out, gateway.CheckoutItem{
			Name:       dish.Name,
			UnitAmount: minorUnits(dish.Price),
			Quantity:   qty,
		})
		for _, extra := range item.AddedExtras {
			price := extra.UnitPrice
			if catalogPrice, ok := dish.ExtraPrice(extra.Name); ok {
				price = catalogPrice
			}
			extraQty := int64(extra.Quantity)
			if extraQty < 1 {
				extraQty = 1
			}
			out = append(out, gateway.CheckoutItem{
				Name:       fmt.Sprintf("%s + %s", dish.Name, extra.Name),
				UnitAmount: minorUnits(price),
				Quantity:   extraQty,
			})
		}
	}
	return out, nil
}

func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
