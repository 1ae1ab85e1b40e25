package payment

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/config"
	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	"github.com/Additional-Code/roomserve/internal/gateway"
	"github.com/Additional-Code/roomserve/internal/identity"
	catalogrepo "github.com/Additional-Code/roomserve/internal/repository/catalog"
	repo "github.com/Additional-Code/roomserve/internal/repository/payment"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

type fakeGateway struct {
	created    []gateway.CheckoutRequest
	session    *gateway.CheckoutSession
	parsed     *gateway.CheckoutEvent
	parseErr   error
	createErr  error
	lastSigned string
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.session, nil
}

func (f *fakeGateway) ParseEvent(payload []byte, signature string) (*gateway.CheckoutEvent, error) {
	f.lastSigned = signature
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.parsed, nil
}

type fakePayments struct {
	sessions map[string]bool
	orders   []*entity.Order
	records  []*entity.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{sessions: map[string]bool{}}
}

func (f *fakePayments) RecordCheckout(ctx context.Context, order *entity.Order, payment *entity.Payment) error {
	if f.sessions[payment.ProviderSessionID] {
		return repo.ErrDuplicateSession
	}
	f.sessions[payment.ProviderSessionID] = true
	order.ID = int64(len(f.orders) + 1)
	payment.OrderID = order.ID
	f.orders = append(f.orders, order)
	f.records = append(f.records, payment)
	return nil
}

type fakeSequence struct{ value int64 }

func (f *fakeSequence) Next(ctx context.Context, name string) (int64, error) {
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
	orderID *int64
}

type fakeNotifier struct{ sent []sentNotification }

func (f *fakeNotifier) Notify(ctx context.Context, to entity.Recipient, orderID *int64, message string) {
	f.sent = append(f.sent, sentNotification{to: to, orderID: orderID})
}

type fakeViews struct{}

func (fakeViews) ResolveView(ctx context.Context, order *entity.Order) *dto.OrderView {
	return &dto.OrderView{ID: order.ID, OrderNumber: order.OrderNumber, Status: order.Status, IsPaid: order.IsPaid}
}

type fakeEvents struct{ events []string }

func (f *fakeEvents) Emit(ctx context.Context, event string, payload any) {
	f.events = append(f.events, event)
}

type fixture struct {
	svc      *Service
	gateway  *fakeGateway
	payments *fakePayments
	notifier *fakeNotifier
	events   *fakeEvents
}

func newFixture() *fixture {
	gw := &fakeGateway{session: &gateway.CheckoutSession{ID: "cs_123", URL: "https://pay.example/cs_123"}}
	payments := newFakePayments()
	notifier := &fakeNotifier{}
	events := &fakeEvents{}
	svc := &Service{
		gateway:  gw,
		payments: payments,
		sequence: &fakeSequence{},
		catalog: &fakeCatalog{
			dishes: map[int64]*entity.Dish{
				1: {ID: 1, Name: "Tajine", Price: 50},
				2: {ID: 2, Name: "Burger", Price: 30, Extras: []entity.DishExtra{{Name: "cheese", Price: 5}}},
			},
			rooms: map[int64]*entity.Room{101: {ID: 101, Num: "101"}},
		},
		notifier: notifier,
		views:    fakeViews{},
		events:   events,
		cfg:      config.Payments{Currency: "mad"},
		logger:   zap.NewNop(),
	}
	return &fixture{svc: svc, gateway: gw, payments: payments, notifier: notifier, events: events}
}

func onlineCart() dto.CreateOrderRequest {
	return dto.CreateOrderRequest{
		PaymentMethod: entity.PaymentOnline,
		Items: []dto.LineItemRequest{
			{DishID: 1, Quantity: 2},
			{DishID: 2, Quantity: 1, AddedExtras: []dto.ExtraRequest{{Name: "cheese", UnitPrice: 5, Quantity: 1}}},
		},
	}
}

func completedEvent(session string, items []entity.LineItem) *gateway.CheckoutEvent {
	cart, _ := json.Marshal(items)
	return &gateway.CheckoutEvent{
		Type:            gateway.EventCheckoutCompleted,
		SessionID:       session,
		PaymentIntentID: "pi_1",
		AmountTotal:     13500,
		Currency:        "mad",
		Metadata: map[string]string{
			metaRoomID:     "101",
			metaTotalPrice: "135.00",
			metaLineItems:  string(cart),
		},
	}
}

func cartItems() []entity.LineItem {
	return []entity.LineItem{
		{DishID: 1, Quantity: 2},
		{DishID: 2, Quantity: 1, AddedExtras: []entity.Extra{{Name: "cheese", UnitPrice: 5, Quantity: 1}}},
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.CreateCheckoutSession(context.Background(), identity.Principal{Role: identity.RoleClient, RoomID: 101}, onlineCart())
	require.NoError(t, err)
	assert.Equal(t, "cs_123", resp.SessionID)
	assert.Equal(t, "https://pay.example/cs_123", resp.URL)

	require.Len(t, f.gateway.created, 1)
	req := f.gateway.created[0]

	// One provider line per dish plus one per extra.
	require.Len(t, req.Items, 3)
	assert.Equal(t, int64(5000), req.Items[0].UnitAmount)
	assert.Equal(t, int64(2), req.Items[0].Quantity)
	assert.Equal(t, "Burger + cheese", req.Items[2].Name)
	assert.Equal(t, int64(500), req.Items[2].UnitAmount)

	assert.Equal(t, "101", req.Metadata[metaRoomID])
	assert.Equal(t, "135.00", req.Metadata[metaTotalPrice])
	var cart []entity.LineItem
	require.NoError(t, json.Unmarshal([]byte(req.Metadata[metaLineItems]), &cart))
	assert.Len(t, cart, 2)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateCheckoutSession(ctx, identity.Principal{Role: identity.RoleClient, RoomID: 101}, dto.CreateOrderRequest{})
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = f.svc.CreateCheckoutSession(ctx, identity.Principal{Role: identity.RoleClient, RoomID: 999}, onlineCart())
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	req := onlineCart()
	req.Items[0].DishID = 404
	_, err = f.svc.CreateCheckoutSession(ctx, identity.Principal{Role: identity.RoleClient, RoomID: 101}, req)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())

	assert.Empty(t, f.gateway.created)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	f.gateway.parseErr = gateway.ErrInvalidSignature

	err := f.svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	assert.Empty(t, f.payments.orders)
}

func TestWebhookCompletedCreatesPaidOrder(t *testing.T) {
	f := newFixture()
	f.gateway.parsed = completedEvent("cs_123", cartItems())

	err := f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	require.NoError(t, err)

	require.Len(t, f.payments.orders, 1)
	order := f.payments.orders[0]
	assert.Equal(t, entity.StatusConfirmed, order.Status)
	assert.True(t, order.IsPaid)
	assert.Equal(t, int64(101), order.RoomID)
	assert.Equal(t, float64(135), order.TotalPrice)
	assert.Equal(t, int64(1), order.OrderNumber)
	require.NotNil(t, order.ConfirmedAt)

	require.Len(t, f.payments.records, 1)
	record := f.payments.records[0]
	assert.Equal(t, "cs_123", record.ProviderSessionID)
	assert.Equal(t, "pi_1", record.PaymentIntentID)
	assert.Equal(t, entity.PaymentStatusPaid, record.Status)
	assert.Equal(t, order.ID, record.OrderID)

	assert.Equal(t, []string{"new_order"}, f.events.events)
	recipients := make([]entity.Recipient, 0, len(f.notifier.sent))
	for _, n := range f.notifier.sent {
		recipients = append(recipients, n.to)
	}
	assert.ElementsMatch(t, []entity.Recipient{entity.RecipientAdmin, entity.RecipientKitchen, entity.RecipientClient}, recipients)
}

func TestWebhookDuplicateDeliveryConverges(t *testing.T) {
	f := newFixture()
	f.gateway.parsed = completedEvent("cs_dup", cartItems())

	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	assert.Len(t, f.payments.orders, 1)
	assert.Len(t, f.payments.records, 1)
	// The second delivery fans nothing out.
	assert.Len(t, f.events.events, 1)
	assert.Len(t, f.notifier.sent, 3)
}

func TestWebhookExpiredNotifiesClientOnly(t *testing.T) {
	f := newFixture()
	f.gateway.parsed = &gateway.CheckoutEvent{Type: gateway.EventCheckoutExpired, SessionID: "cs_old"}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	assert.Empty(t, f.payments.orders)
	assert.Empty(t, f.events.events)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, entity.RecipientClient, f.notifier.sent[0].to)
	assert.Nil(t, f.notifier.sent[0].orderID)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	f := newFixture()
	f.gateway.parsed = &gateway.CheckoutEvent{Type: "invoice.created"}

	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	assert.Empty(t, f.payments.orders)
	assert.Empty(t, f.notifier.sent)
}

func TestWebhookRejectsBrokenMetadata(t *testing.T) {
	f := newFixture()
	event := completedEvent("cs_bad", cartItems())
	event.Metadata[metaRoomID] = "not-a-number"
	f.gateway.parsed = event

	err := f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig")
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
	assert.Empty(t, f.payments.orders)
}

func TestWebhookFallsBackToAmountTotal(t *testing.T) {
	f := newFixture()
	event := completedEvent("cs_amt", cartItems())
	delete(event.Metadata, metaTotalPrice)
	f.gateway.parsed = event

	require.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("{}"), "sig"))
	require.Len(t, f.payments.orders, 1)
	assert.Equal(t, float64(135), f.payments.orders[0].TotalPrice)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(5000), minorUnits(50))
	assert.Equal(t, int64(505), minorUnits(5.05))
	assert.Equal(t, strconv.FormatInt(minorUnits(0.1+0.2), 10), "30")
}
