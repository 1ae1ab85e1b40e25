package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	repo "github.com/Additional-Code/roomserve/internal/repository/notification"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

type fakeStore struct {
	created   []*entity.Notification
	createErr error
	listed    []entity.Notification
	marked    *entity.Notification
	markErr   error
}

func (f *fakeStore) Create(ctx context.Context, n *entity.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = int64(len(f.created) + 1)
	f.created = append(f.created, n)
	return nil
}

func (f *fakeStore) ListByRecipient(ctx context.Context, to entity.Recipient) ([]entity.Notification, error) {
	return f.listed, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, id int64) (*entity.Notification, error) {
	if f.markErr != nil {
		return nil, f.markErr
	}
	return f.marked, nil
}

type fakeEvents struct {
	events   []string
	payloads []any
}

func (f *fakeEvents) Emit(ctx context.Context, event string, payload any) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
}

func newTestService(store *fakeStore, events *fakeEvents) *Service {
	return &Service{repo: store, events: events, logger: zap.NewNop()}
}

func TestNotifyPersistsAndBroadcasts(t *testing.T) {
	store := &fakeStore{}
	events := &fakeEvents{}
	svc := newTestService(store, events)

	orderID := int64(7)
	svc.Notify(context.Background(), entity.RecipientKitchen, &orderID, "new order #12")

	require.Len(t, store.created, 1)
	assert.Equal(t, entity.RecipientKitchen, store.created[0].To)
	assert.Equal(t, []string{"new_notification"}, events.events)
}

func TestNotifySwallowsPersistFailure(t *testing.T) {
	store := &fakeStore{createErr: errors.New("db down")}
	events := &fakeEvents{}
	svc := newTestService(store, events)

	svc.Notify(context.Background(), entity.RecipientAdmin, nil, "hello")

	// No broadcast for a message that was never recorded.
	assert.Empty(t, events.events)
}

func TestCreateValidatesRecipient(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEvents{})

	_, err := svc.Create(context.Background(), dto.CreateNotificationRequest{
		To:      entity.Recipient("waiter"),
		Message: "hi",
	})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())

	_, err = svc.Create(context.Background(), dto.CreateNotificationRequest{To: entity.RecipientClient})
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestListRejectsUnknownRecipient(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeEvents{})

	_, err := svc.List(context.Background(), entity.Recipient("nobody"))
	require.Error(t, err)
	assert.Equal(t, errorbank.KindBadRequest, errorbank.From(err).Kind())
}

func TestMarkReadMapsNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{markErr: repo.ErrNotFound}, &fakeEvents{})

	_, err := svc.MarkRead(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, errorbank.KindNotFound, errorbank.From(err).Kind())
}
