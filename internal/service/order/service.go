// Package order implements the order lifecycle: creation, the role-gated
// status state machine, cancellation, and payment confirmation. Every status
// write is a compare-and-swap against the observed status, so racing
// transitions surface as conflicts instead of lost updates.
package order

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/Additional-Code/roomserve/internal/identity"
	"github.com/Additional-Code/roomserve/internal/pricing"
	catalogrepo "github.com/Additional-Code/roomserve/internal/repository/catalog"
	counterrepo "github.com/Additional-Code/roomserve/internal/repository/counter"
	repo "github.com/Additional-Code/roomserve/internal/repository/order"
	"github.com/Additional-Code/roomserve/internal/scheduler"
	notifsvc "github.com/Additional-Code/roomserve/internal/service/notification"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/roomserve/service/order")

// orderStore is the slice of the order repository the lifecycle uses.
type orderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	List(ctx context.Context, filter repo.Filter) ([]entity.Order, error)
	UpdateStatus(ctx context.Context, id int64, upd repo.StatusUpdate) error
	SetPaid(ctx context.Context, id int64) error
}

// sequence allocates order numbers.
type sequence interface {
	Next(ctx context.Context, name string) (int64, error)
}

// catalogStore resolves dish and room references.
type catalogStore interface {
	DishesByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Dish, error)
	Room(ctx context.Context, id int64) (*entity.Room, error)
}

// notifier is the fan-out sink for role-targeted messages.
type notifier interface {
	Notify(ctx context.Context, to entity.Recipient, orderID *int64, message string)
}

// timers defers the cash auto-confirm task.
type timers interface {
	Schedule(key string, delay time.Duration, task scheduler.Task)
	Cancel(key string)
}

// Service encapsulates the order lifecycle state machine.
type Service struct {
	orders   orderStore
	sequence sequence
	catalog  catalogStore
	notifier notifier
	timers   timers
	events   broadcast.Events
	cfg      config.Orders
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *repo.Repository
	Counters  *counterrepo.Repository
	Catalog   *catalogrepo.Repository
	Notifier  *notifsvc.Service
	Scheduler *scheduler.Scheduler
	Events    broadcast.Events
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		orders:   p.Orders,
		sequence: p.Counters,
		catalog:  p.Catalog,
		notifier: p.Notifier,
		timers:   p.Scheduler,
		events:   p.Events,
		cfg:      p.Config.Orders,
		logger:   p.Logger,
	}
}

// Create validates a client cart, prices it, allocates an order number, and
// persists the order. Cash orders start pending and get the auto-confirm
// timer; online orders never take this path (they are created by the
// payment webhook).
func (s *Service) Create(ctx context.Context, p identity.Principal, req dto.CreateOrderRequest) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int64("room.id", p.RoomID)))
	defer span.End()

	if len(req.Items) == 0 {
		return nil, errorbank.BadRequest("order must contain at least one item")
	}
	if !req.PaymentMethod.Valid() {
		return nil, errorbank.BadRequest("unknown payment method", errorbank.WithDetail("payment_method", req.PaymentMethod))
	}
	if req.PaymentMethod == entity.PaymentOnline {
		return nil, errorbank.BadRequest("online orders are created through the checkout session flow")
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
	dishes, err := s.resolveDishes(ctx, items)
	if err != nil {
		return nil, err
	}

	total, err := pricing.Total(items, dishes)
	if err != nil {
		return nil, errorbank.NotFound("dish not found", errorbank.WithCause(err))
	}

	// The number is allocated before any other side effect so a failed
	// allocation leaves nothing behind. A burnt number on a later failure is
	// acceptable; a duplicate never is.
	number, err := s.sequence.Next(ctx, entity.CounterOrderNumber)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sequence error")
		return nil, errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	order := &entity.Order{
		RoomID:            p.RoomID,
		OrderNumber:       number,
		LineItems:         items,
		PaymentMethod:     req.PaymentMethod,
		TotalPrice:        total,
		Status:            entity.StatusPending,
		IsPaid:            false,
		IsVisibleToClient: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventNewOrder, view)
	message := fmt.Sprintf("New order #%d from room %d", order.OrderNumber, order.RoomID)
	s.notifier.Notify(ctx, entity.RecipientAdmin, &order.ID, message)
	s.notifier.Notify(ctx, entity.RecipientKitchen, &order.ID, message)

	s.timers.Schedule(autoConfirmKey(order.ID), s.cfg.CashConfirmDelay, func(taskCtx context.Context) {
		s.autoConfirm(taskCtx, order.ID)
	})

	return view, nil
}

// Get returns one order resolved for the caller's role.
func (s *Service) Get(ctx context.Context, p identity.Principal, id int64) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Role == identity.RoleClient {
		if order.RoomID != p.RoomID || !s.clientVisible(order, time.Now().UTC()) {
			return nil, errorbank.NotFound("order not found")
		}
	}

	return s.resolveView(ctx, order, p.Role == identity.RoleKitchen), nil
}

// List returns orders scoped to the caller's role. Clients see only their
// room's still-visible orders; the time windows are re-checked at read time
// as a safety net on top of the background sweep.
func (s *Service) List(ctx context.Context, p identity.Principal) ([]dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.List", trace.WithAttributes(attribute.String("role", string(p.Role))))
	defer span.End()

	filter := repo.Filter{}
	if p.Role == identity.RoleClient {
		roomID := p.RoomID
		filter.RoomID = &roomID
		filter.VisibleOnly = true
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}

	now := time.Now().UTC()
	views := make([]dto.OrderView, 0, len(orders))
	for i := range orders {
		order := &orders[i]
		if p.Role == identity.RoleClient && !s.clientVisible(order, now) {
			continue
		}
		views = append(views, *s.resolveView(ctx, order, p.Role == identity.RoleKitchen))
	}
	return views, nil
}

// UpdateStatus applies a role-gated status transition. Kitchen is bound to
// the single-step map; admin may set any status on a non-terminal order and
// flip isPaid in the same call.
func (s *Service) UpdateStatus(ctx context.Context, p identity.Principal, id int64, req dto.UpdateStatusRequest) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.to", string(req.Status)),
	))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	target := req.Status
	if target == "" {
		// Admin may flip isPaid without moving the status.
		if p.Role != identity.RoleAdmin || req.IsPaid == nil {
			return nil, errorbank.BadRequest("status is required")
		}
		target = order.Status
	}
	if err := allowTransition(p.Role, order.Status, target); err != nil {
		return nil, err
	}

	if req.IsPaid != nil {
		if p.Role != identity.RoleAdmin {
			return nil, errorbank.Forbidden("only admin may change payment state")
		}
		if !*req.IsPaid && order.IsPaid {
			return nil, errorbank.Unprocessable("paid orders cannot be marked unpaid")
		}
	}

	upd := repo.StatusUpdate{From: order.Status, To: target, IsPaid: req.IsPaid}
	now := time.Now().UTC()
	if target == entity.StatusConfirmed && order.ConfirmedAt == nil {
		upd.ConfirmedAt = &now
	}

	if err := s.orders.UpdateStatus(ctx, id, upd); err != nil {
		return nil, s.mapWriteError(span, err)
	}

	if order.Status == entity.StatusPending && target != entity.StatusPending {
		s.timers.Cancel(autoConfirmKey(id))
	}

	wasPaid := order.IsPaid
	order.Status = target
	order.UpdatedAt = now
	if upd.ConfirmedAt != nil {
		order.ConfirmedAt = upd.ConfirmedAt
	}
	if req.IsPaid != nil {
		order.IsPaid = *req.IsPaid
	}

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventOrderUpdated, view)
	s.notifyTransition(ctx, order)
	if !wasPaid && order.IsPaid {
		s.events.Emit(ctx, broadcast.EventOrderPaid, view)
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Payment received for order #%d", order.OrderNumber))
	}
	return view, nil
}

// Confirm moves a pending order to confirmed without waiting for the cash
// timer. Admins may confirm any order, clients only their own room's.
func (s *Service) Confirm(ctx context.Context, p identity.Principal, id int64) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Confirm", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if p.Role == identity.RoleKitchen {
		return nil, errorbank.Forbidden("kitchen may not confirm orders")
	}

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role == identity.RoleClient && order.RoomID != p.RoomID {
		return nil, errorbank.Forbidden("order belongs to another room")
	}
	if order.Status != entity.StatusPending {
		return nil, errorbank.Unprocessable("illegal transition",
			errorbank.WithDetail("from", order.Status),
			errorbank.WithDetail("to", entity.StatusConfirmed),
		)
	}

	now := time.Now().UTC()
	upd := repo.StatusUpdate{From: entity.StatusPending, To: entity.StatusConfirmed}
	if order.ConfirmedAt == nil {
		upd.ConfirmedAt = &now
	}
	if err := s.orders.UpdateStatus(ctx, id, upd); err != nil {
		return nil, s.mapWriteError(span, err)
	}

	s.timers.Cancel(autoConfirmKey(id))
	order.Status = entity.StatusConfirmed
	order.UpdatedAt = now
	if upd.ConfirmedAt != nil {
		order.ConfirmedAt = upd.ConfirmedAt
	}

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventOrderUpdated, view)
	s.notifyTransition(ctx, order)
	return view, nil
}

// Cancel transitions the order straight to cancelled, role-gated: clients
// may only cancel their own still-pending orders, admin any non-terminal
// order. All three roles are notified.
func (s *Service) Cancel(ctx context.Context, p identity.Principal, id int64) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role == identity.RoleClient && order.RoomID != p.RoomID {
		return nil, errorbank.Forbidden("order belongs to another room")
	}
	if err := allowCancel(p.Role, order.Status); err != nil {
		return nil, err
	}

	if err := s.orders.UpdateStatus(ctx, id, repo.StatusUpdate{From: order.Status, To: entity.StatusCancelled}); err != nil {
		return nil, s.mapWriteError(span, err)
	}

	s.timers.Cancel(autoConfirmKey(id))
	order.Status = entity.StatusCancelled
	order.UpdatedAt = time.Now().UTC()

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventOrderUpdated, view)
	message := fmt.Sprintf("Order #%d has been cancelled", order.OrderNumber)
	s.notifier.Notify(ctx, entity.RecipientAdmin, &order.ID, message)
	s.notifier.Notify(ctx, entity.RecipientKitchen, &order.ID, message)
	s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, message)
	return view, nil
}

// ConfirmPayment marks an order paid. Admin only; a second confirmation
// fails instead of silently succeeding so double charges get noticed.
func (s *Service) ConfirmPayment(ctx context.Context, p identity.Principal, id int64) (*dto.OrderView, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.ConfirmPayment", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if p.Role != identity.RoleAdmin {
		return nil, errorbank.Forbidden("only admin may confirm payments")
	}

	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, errorbank.Conflict("order already paid")
	}

	if err := s.orders.SetPaid(ctx, id); err != nil {
		if errors.Is(err, repo.ErrPreconditionFailed) {
			return nil, errorbank.Conflict("order already paid")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to confirm payment", errorbank.WithCause(err))
	}

	order.IsPaid = true
	order.UpdatedAt = time.Now().UTC()

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventOrderPaid, view)
	s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Payment received for order #%d", order.OrderNumber))
	return view, nil
}

// ResolveView expands an order into the resolved representation shared by
// transports and broadcasts. Used by the payment reconciler for orders it
// creates itself.
func (s *Service) ResolveView(ctx context.Context, order *entity.Order) *dto.OrderView {
	return s.resolveView(ctx, order, false)
}

// autoConfirm is the cash timer task. It re-reads the order before acting:
// a cancellation in the interim makes this a no-op.
func (s *Service) autoConfirm(ctx context.Context, id int64) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.autoConfirm", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		s.logger.Warn("auto-confirm guard read failed", zap.Int64("order_id", id), zap.Error(err))

		return
	}
	if order.Status != entity.StatusPending {
		return
	}

	now := time.Now().UTC()
	upd := repo.StatusUpdate{From: entity.StatusPending, To: entity.StatusConfirmed}
	if order.ConfirmedAt == nil {
		upd.ConfirmedAt = &now
	}
	if err := s.orders.UpdateStatus(ctx, id, upd); err != nil {
		if errors.Is(err, repo.ErrPreconditionFailed) {
			// Lost the race against a cancellation or manual confirm.
			return
		}
		s.logger.Error("auto-confirm write failed", zap.Int64("order_id", id), zap.Error(err))

		return
	}

	order.Status = entity.StatusConfirmed
	order.UpdatedAt = now
	if upd.ConfirmedAt != nil {
		order.ConfirmedAt = upd.ConfirmedAt
	}

	view := s.resolveView(ctx, order, false)
	s.events.Emit(ctx, broadcast.EventOrderUpdated, view)
	s.notifyTransition(ctx, order)
}

// clientVisible applies the read-time windows on top of the persisted
// visibility flag: paid confirmed orders fall out after the visible window,
// cancelled orders after the shorter cancelled window.
func (s *Service) clientVisible(order *entity.Order, now time.Time) bool {
	if !order.IsVisibleToClient {
		return false
	}
	if order.Status == entity.StatusConfirmed && order.IsPaid && order.ConfirmedAt != nil {
		if now.Sub(*order.ConfirmedAt) >= s.cfg.VisibleWindow {
			return false
		}
	}
	if order.Status == entity.StatusCancelled {
		if now.Sub(order.UpdatedAt) >= s.cfg.CancelledWindow {
			return false
		}
	}
	return true
}

// notifyTransition fans out the role-targeted messages for a status the
// order just entered.
func (s *Service) notifyTransition(ctx context.Context, order *entity.Order) {
	number := order.OrderNumber
	switch order.Status {
	case entity.StatusConfirmed:
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Your order #%d has been confirmed", number))
		s.notifier.Notify(ctx, entity.RecipientKitchen, &order.ID, fmt.Sprintf("Order #%d confirmed, start preparing", number))
	case entity.StatusPreparing:
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Your order #%d is being prepared", number))
	case entity.StatusReady:
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Your order #%d is ready", number))
		s.notifier.Notify(ctx, entity.RecipientAdmin, &order.ID, fmt.Sprintf("Order #%d is ready for delivery", number))
	case entity.StatusDelivered:
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, fmt.Sprintf("Your order #%d has been delivered", number))
	case entity.StatusCancelled:
		message := fmt.Sprintf("Order #%d has been cancelled", number)
		s.notifier.Notify(ctx, entity.RecipientAdmin, &order.ID, message)
		s.notifier.Notify(ctx, entity.RecipientKitchen, &order.ID, message)
		s.notifier.Notify(ctx, entity.RecipientClient, &order.ID, message)
	}
}

// resolveView expands dish and room references into the single resolved
// representation every consumer uses. Resolution failures degrade to bare
// references; dropMissingDishes removes line items whose dish no longer
// exists (the kitchen view).
func (s *Service) resolveView(ctx context.Context, order *entity.Order, dropMissingDishes bool) *dto.OrderView {
	view := &dto.OrderView{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		RoomID:        order.RoomID,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		Status:        order.Status,
		IsPaid:        order.IsPaid,
		ConfirmedAt:   order.ConfirmedAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}

	if room, err := s.catalog.Room(ctx, order.RoomID); err == nil {
		view.Room = &dto.RoomView{ID: room.ID, Num: room.Num, Location: room.Location}
	} else if !errors.Is(err, catalogrepo.ErrRoomNotFound) {
		s.logger.Warn("room resolution failed", zap.Int64("room_id", order.RoomID), zap.Error(err))
	}

	ids := make([]int64, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		ids = append(ids, item.DishID)
	}
	dishes, err := s.catalog.DishesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("dish resolution failed", zap.Int64("order_id", order.ID), zap.Error(err))
		dishes = map[int64]*entity.Dish{}
	}

	view.Items = make([]dto.LineItemView, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		dish := dishes[item.DishID]
		if dish == nil && dropMissingDishes {
			continue
		}
		itemView := dto.LineItemView{
			DishID:             item.DishID,
			Quantity:           item.Quantity,
			RemovedIngredients: item.RemovedIngredients,
		}
		if dish != nil {
			itemView.DishName = dish.Name
			itemView.UnitPrice = dish.Price
		}
		for _, extra := range item.AddedExtras {
			price := extra.UnitPrice
			if dish != nil {
				if catalogPrice, ok := dish.ExtraPrice(extra.Name); ok {
					price = catalogPrice
				}
			}
			itemView.AddedExtras = append(itemView.AddedExtras, dto.ExtraView{
				Name:      extra.Name,
				UnitPrice: price,
				Quantity:  extra.Quantity,
			})
		}
		view.Items = append(view.Items, itemView)
	}
	return view
}

func (s *Service) resolveDishes(ctx context.Context, items []entity.LineItem) (map[int64]*entity.Dish, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.DishID)
	}
	dishes, err := s.catalog.DishesByIDs(ctx, ids)
	if err != nil {
		return nil, errorbank.Internal("failed to resolve dishes", errorbank.WithCause(err))
	}
	return dishes, nil
}

func (s *Service) load(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	return order, nil
}

func (s *Service) mapWriteError(span trace.Span, err error) error {
	if errors.Is(err, repo.ErrPreconditionFailed) {
		return errorbank.Conflict("order changed concurrently, retry")
	}
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("order not found")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal("failed to update order", errorbank.WithCause(err))
}

func autoConfirmKey(id int64) string {
	return fmt.Sprintf("order:auto-confirm:%d", id)
}
