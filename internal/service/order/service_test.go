package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/config"
	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	"github.com/Additional-Code/roomserve/internal/identity"
	catalogrepo "github.com/Additional-Code/roomserve/internal/repository/catalog"
	repo "github.com/Additional-Code/roomserve/internal/repository/order"
	"github.com/Additional-Code/roomserve/internal/scheduler"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

type fakeOrders struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]*entity.Order
	updateErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{rows: map[int64]*entity.Order{}}
}

func (f *fakeOrders) Create(ctx context.Context, order *entity.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	clone := *order
	f.rows[order.ID] = &clone
	return nil
}

func (f *fakeOrders) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (f *fakeOrders) List(ctx context.Context, filter repo.Filter) ([]entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []entity.Order
	for _, row := range f.rows {
		if filter.RoomID != nil && row.RoomID != *filter.RoomID {
			continue
		}
		if filter.VisibleOnly && !row.IsVisibleToClient {
			continue
		}
		orders = append(orders, *row)
	}
	return orders, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, id int64, upd repo.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	row, ok := f.rows[id]
	if !ok || row.Status != upd.From {
		return repo.ErrPreconditionFailed
	}
	row.Status = upd.To
	row.UpdatedAt = time.Now().UTC()
	if upd.ConfirmedAt != nil {
		row.ConfirmedAt = upd.ConfirmedAt
	}
	if upd.IsPaid != nil {
		row.IsPaid = *upd.IsPaid
	}
	return nil
}

func (f *fakeOrders) SetPaid(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.IsPaid {
		return repo.ErrPreconditionFailed
	}
	row.IsPaid = true
	return nil
}

func (f *fakeOrders) put(order *entity.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	f.rows[order.ID] = order
}

type fakeSequence struct {
	mu    sync.Mutex
	value int64
}

func (f *fakeSequence) Next(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value++
	return f.value, nil
}

type fakeCatalog struct {
	dishes map[int64]*entity.Dish
	rooms  map[int64]*entity.Room
}

func (f *fakeCatalog) DishesByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Dish, error) {
	resolved := map[int64]*entity.Dish{}
	for _, id := range ids {
		if dish, ok := f.dishes[id]; ok {
			resolved[id] = dish
		}
	}
	return resolved, nil
}

func (f *fakeCatalog) Room(ctx context.Context, id int64) (*entity.Room, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, catalogrepo.ErrRoomNotFound
	}
	return room, nil
}

type sentNotification struct {
	to      entity.Recipient
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, to entity.Recipient, orderID *int64, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{to: to, message: message})
}

func (f *fakeNotifier) recipients() []entity.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Recipient, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.to)
	}
	return out
}

type fakeTimers struct {
	mu        sync.Mutex
	scheduled map[string]scheduler.Task
	cancelled []string
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: map[string]scheduler.Task{}}
}

func (f *fakeTimers) Schedule(key string, delay time.Duration, task scheduler.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[key] = task
}

func (f *fakeTimers) Cancel(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, key)
	delete(f.scheduled, key)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Emit(ctx context.Context, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fixture struct {
	svc      *Service
	orders   *fakeOrders
	catalog  *fakeCatalog
	notifier *fakeNotifier
	timers   *fakeTimers
	events   *fakeEvents
}

func newFixture() *fixture {
	orders := newFakeOrders()
	catalog := &fakeCatalog{
		dishes: map[int64]*entity.Dish{
			1: {ID: 1, Name: "Tajine", Price: 50},
			2: {ID: 2, Name: "Burger", Price: 30, Extras: []entity.DishExtra{{Name: "cheese", Price: 5}}},
		},
		rooms: map[int64]*entity.Room{
			101: {ID: 101, Num: "101", Location: "first floor"},
		},
	}
	notifier := &fakeNotifier{}
	timers := newFakeTimers()
	events := &fakeEvents{}
	svc := &Service{
		orders:   orders,
		sequence: &fakeSequence{},
		catalog:  catalog,
		notifier: notifier,
		timers:   timers,
		events:   events,
		cfg: config.Orders{
			CashConfirmDelay: 2 * time.Minute,
			VisibleWindow:    20 * time.Minute,
			CancelledWindow:  10 * time.Minute,
			SweepInterval:    time.Minute,
		},
		logger: zap.NewNop(),
	}
	return &fixture{svc: svc, orders: orders, catalog: catalog, notifier: notifier, timers: timers, events: events}
}

func clientPrincipal(roomID int64) identity.Principal {
	return identity.Principal{Role: identity.RoleClient, RoomID: roomID}
}

var adminPrincipal = identity.Principal{Role: identity.RoleAdmin}

func specCart() dto.CreateOrderRequest {
	return dto.CreateOrderRequest{
		PaymentMethod: entity.PaymentCash,
		Items: []dto.LineItemRequest{
			{DishID: 1, Quantity: 2},
			{DishID: 2, Quantity: 1, AddedExtras: []dto.ExtraRequest{{Name: "cheese", UnitPrice: 5, Quantity: 1}}},
		},
	}
}

func TestCreateCashOrder(t *testing.T) {
	f := newFixture()

	view, err := f.svc.Create(context.Background(), clientPrincipal(101), specCart())
	require.NoError(t, err)

	assert.Equal(t, float64(135), view.TotalPrice)
	assert.Equal(t, entity.StatusPending, view.Status)
	assert.False(t, view.IsPaid)
	assert.Equal(t, int64(1), view.OrderNumber)
	require.NotNil(t, view.Room)
	assert.Equal(t, "101", view.Room.Num)

	assert.ElementsMatch(t, []entity.Recipient{entity.RecipientAdmin, entity.RecipientKitchen}, f.notifier.recipients())
	assert.Equal(t, []string{"new_order"}, f.events.names())
	assert.Contains(t, f.timers.scheduled, autoConfirmKey(view.ID))
}

func TestCreateAssignsIncreasingNumbers(t *testing.T) {
	f := newFixture()

	first, err := f.svc.Create(context.Background(), clientPrincipal(101), specCart())
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), clientPrincipal(101), specCart())
	require.NoError(t, err)

	assert.Greater(t, second.OrderNumber, first.OrderNumber)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, clientPrincipal(101), dto.CreateOrderRequest{PaymentMethod: entity.PaymentCash})
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	req := specCart()
	req.PaymentMethod = entity.PaymentOnline
	_, err = f.svc.Create(ctx, clientPrincipal(101), req)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	req = specCart()
	req.PaymentMethod = entity.PaymentMethod("voucher")
	_, err = f.svc.Create(ctx, clientPrincipal(101), req)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.Create(ctx, clientPrincipal(999), specCart())
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	req = specCart()
	req.Items[0].DishID = 404
	_, err = f.svc.Create(ctx, clientPrincipal(101), req)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	// Nothing was persisted or announced for the rejected carts.
	assert.Empty(t, f.orders.rows)
	assert.Empty(t, f.events.names())
}

func TestKitchenSingleStepOnly(t *testing.T) {
	f := newFixture()
	kitchen := identity.Principal{Role: identity.RoleKitchen}
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	// pending → preparing skips confirmed and must be rejected.
	_, err = f.svc.UpdateStatus(ctx, kitchen, view.ID, dto.UpdateStatusRequest{Status: entity.StatusPreparing})
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	stored, err := f.orders.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, stored.Status)

	_, err = f.svc.Confirm(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, kitchen, view.ID, dto.UpdateStatusRequest{Status: entity.StatusPreparing})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPreparing, updated.Status)

	updated, err = f.svc.UpdateStatus(ctx, kitchen, view.ID, dto.UpdateStatusRequest{Status: entity.StatusReady})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusReady, updated.Status)
}

func TestConfirmSetsConfirmedAtOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)
	require.NotNil(t, confirmed.ConfirmedAt)
	stamp := *confirmed.ConfirmedAt

	// Confirming again is an illegal transition; confirmedAt stays put.
	_, err = f.svc.Confirm(ctx, adminPrincipal, view.ID)
	assert.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())

	stored, err := f.orders.GetByID(ctx, view.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ConfirmedAt)
	assert.Equal(t, stamp, *stored.ConfirmedAt)
	assert.Contains(t, f.timers.cancelled, autoConfirmKey(view.ID))
}

func TestConfirmRoleGates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, identity.Principal{Role: identity.RoleKitchen}, view.ID)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	_, err = f.svc.Confirm(ctx, clientPrincipal(202), view.ID)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	// The ordering client can skip the cash timer themselves.
	confirmed, err := f.svc.Confirm(ctx, clientPrincipal(101), view.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, confirmed.Status)
}

func TestAutoConfirmGuardsCurrentStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	// Client cancels before the timer fires.
	_, err = f.svc.Cancel(ctx, clientPrincipal(101), view.ID)
	require.NoError(t, err)

	f.svc.autoConfirm(ctx, view.ID)

	stored, err := f.orders.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, stored.Status)
	assert.Nil(t, stored.ConfirmedAt)
}

func TestAutoConfirmPromotesPendingOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	f.svc.autoConfirm(ctx, view.ID)

	stored, err := f.orders.GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedAt)
	assert.False(t, stored.IsPaid, "cash auto-confirm never touches isPaid")
}

func TestCancelRoleGates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)
	kitchen := identity.Principal{Role: identity.RoleKitchen}
	_, err = f.svc.UpdateStatus(ctx, kitchen, view.ID, dto.UpdateStatusRequest{Status: entity.StatusPreparing})
	require.NoError(t, err)

	// Client may not cancel a preparing order.
	_, err = f.svc.Cancel(ctx, clientPrincipal(101), view.ID)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	// Admin may cancel any non-terminal order.
	cancelled, err := f.svc.Cancel(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status)

	// All three roles hear about the cancellation.
	recipients := f.notifier.recipients()
	assert.Contains(t, recipients, entity.RecipientAdmin)
	assert.Contains(t, recipients, entity.RecipientKitchen)
	assert.Contains(t, recipients, entity.RecipientClient)

	// Terminal state: nothing cancels twice.
	_, err = f.svc.Cancel(ctx, adminPrincipal, view.ID)
	assert.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())
}

func TestCancelOtherRoomForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, clientPrincipal(202), view.ID)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}

func TestUpdateStatusConflictOnRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	// Another writer moves the order between our read and the CAS write.
	f.orders.mu.Lock()
	f.orders.updateErr = repo.ErrPreconditionFailed
	f.orders.mu.Unlock()

	_, err = f.svc.Confirm(ctx, adminPrincipal, view.ID)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestAdminEscapeHatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	// Admin may jump straight to delivered and mark paid in the same call.
	paid := true
	updated, err := f.svc.UpdateStatus(ctx, adminPrincipal, view.ID, dto.UpdateStatusRequest{
		Status: entity.StatusDelivered,
		IsPaid: &paid,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDelivered, updated.Status)
	assert.True(t, updated.IsPaid)
	assert.Contains(t, f.events.names(), "order_paid")

	// But never paid back to unpaid.
	second, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, adminPrincipal, second.ID, dto.UpdateStatusRequest{Status: entity.StatusConfirmed, IsPaid: &paid})
	require.NoError(t, err)
	unpaid := false
	_, err = f.svc.UpdateStatus(ctx, adminPrincipal, second.ID, dto.UpdateStatusRequest{IsPaid: &unpaid})
	assert.Equal(t, errorbank.KindUnprocessableEntity, errorbank.From(err).Kind())
}

func TestKitchenMayNotTouchPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)

	paid := true
	kitchen := identity.Principal{Role: identity.RoleKitchen}
	_, err = f.svc.UpdateStatus(ctx, kitchen, view.ID, dto.UpdateStatusRequest{Status: entity.StatusPreparing, IsPaid: &paid})
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, identity.Principal{Role: identity.RoleKitchen}, view.ID)
	assert.Equal(t, errorbank.KindForbidden, errorbank.From(err).Kind())

	paid, err := f.svc.ConfirmPayment(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	assert.Contains(t, f.events.names(), "order_paid")

	_, err = f.svc.ConfirmPayment(ctx, adminPrincipal, view.ID)
	assert.Equal(t, errorbank.KindConflict, errorbank.From(err).Kind())
}

func TestListScopesClientToRoomAndWindows(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := now.Add(-5 * time.Minute)
	stale := now.Add(-25 * time.Minute)
	oldCancel := now.Add(-15 * time.Minute)
	recentCancel := now.Add(-2 * time.Minute)

	f.orders.put(&entity.Order{RoomID: 101, OrderNumber: 1, Status: entity.StatusConfirmed, IsPaid: true, IsVisibleToClient: true, ConfirmedAt: &fresh, UpdatedAt: fresh})
	f.orders.put(&entity.Order{RoomID: 101, OrderNumber: 2, Status: entity.StatusConfirmed, IsPaid: true, IsVisibleToClient: true, ConfirmedAt: &stale, UpdatedAt: stale})
	f.orders.put(&entity.Order{RoomID: 101, OrderNumber: 3, Status: entity.StatusCancelled, IsVisibleToClient: true, UpdatedAt: oldCancel})
	f.orders.put(&entity.Order{RoomID: 101, OrderNumber: 4, Status: entity.StatusCancelled, IsVisibleToClient: true, UpdatedAt: recentCancel})
	f.orders.put(&entity.Order{RoomID: 202, OrderNumber: 5, Status: entity.StatusPending, IsVisibleToClient: true, UpdatedAt: now})
	f.orders.put(&entity.Order{RoomID: 101, OrderNumber: 6, Status: entity.StatusConfirmed, IsPaid: true, IsVisibleToClient: false, ConfirmedAt: &stale, UpdatedAt: stale})

	views, err := f.svc.List(ctx, clientPrincipal(101))
	require.NoError(t, err)

	var numbers []int64
	for _, v := range views {
		numbers = append(numbers, v.OrderNumber)
	}
	assert.ElementsMatch(t, []int64{1, 4}, numbers)

	// Admin sees everything, including the other room and hidden orders.
	all, err := f.svc.List(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestKitchenViewDropsDeletedDishes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	// Dish 2 disappears from the catalog after the order was placed.
	delete(f.catalog.dishes, 2)

	kitchenView, err := f.svc.Get(ctx, identity.Principal{Role: identity.RoleKitchen}, view.ID)
	require.NoError(t, err)
	require.Len(t, kitchenView.Items, 1)
	assert.Equal(t, int64(1), kitchenView.Items[0].DishID)

	// Admin still sees the raw reference.
	adminView, err := f.svc.Get(ctx, adminPrincipal, view.ID)
	require.NoError(t, err)
	assert.Len(t, adminView.Items, 2)
}

func TestGetHidesForeignRoomFromClient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	view, err := f.svc.Create(ctx, clientPrincipal(101), specCart())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, clientPrincipal(202), view.ID)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}

func TestAutoConfirmKeyShape(t *testing.T) {
	assert.Equal(t, fmt.Sprintf("order:auto-confirm:%d", 9), autoConfirmKey(9))
}
