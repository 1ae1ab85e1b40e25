// Package notification fans role-targeted messages out of lifecycle
// transitions and serves the notification read surface.
package notification

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/broadcast"
	"github.com/Additional-Code/roomserve/internal/dto"
	"github.com/Additional-Code/roomserve/internal/entity"
	repo "github.com/Additional-Code/roomserve/internal/repository/notification"
	"github.com/Additional-Code/roomserve/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/roomserve/service/notification")

// store is the slice of the notification repository the service uses.
type store interface {
	Create(ctx context.Context, notification *entity.Notification) error
	ListByRecipient(ctx context.Context, to entity.Recipient) ([]entity.Notification, error)
	MarkRead(ctx context.Context, id int64) (*entity.Notification, error)
}

// Service persists notifications and pushes them to the broadcast sink.
type Service struct {
	repo   store
	events broadcast.Events
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Events     broadcast.Events
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		repo:   p.Repository,
		events: p.Events,
		logger: p.Logger,
	}
}

// Notify records a role-targeted message and broadcasts it. Best effort:
// failures are logged and never escalate to the caller, the state change
// that produced the message stays authoritative.
func (s *Service) Notify(ctx context.Context, to entity.Recipient, orderID *int64, message string) {
	ctx, span := serviceTracer.Start(ctx, "NotificationService.Notify", trace.WithAttributes(
		attribute.String("notification.to", string(to)),
	))
	defer span.End()

	notification := &entity.Notification{
		To:      to,
		OrderID: orderID,
		Message: message,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		span.RecordError(err)
		s.logger.Error("persist notification failed",
			zap.String("to", string(to)),
			zap.String("message", message),
			zap.Error(err),
		)

		return
	}

	s.events.Emit(ctx, broadcast.EventNewNotification, toResponse(notification))
}

// Create records a manual notification and returns its resolved view.
func (s *Service) Create(ctx context.Context, req dto.CreateNotificationRequest) (*dto.NotificationResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "NotificationService.Create")
	defer span.End()

	if !req.To.Valid() {
		return nil, errorbank.BadRequest("unknown recipient", errorbank.WithDetail("to", req.To))
	}
	if req.Message == "" {
		return nil, errorbank.BadRequest("message is required")
	}

	notification := &entity.Notification{
		To:      req.To,
		OrderID: req.OrderID,
		Message: req.Message,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create notification", errorbank.WithCause(err))
	}

	s.events.Emit(ctx, broadcast.EventNewNotification, toResponse(notification))

	resp := toResponse(notification)
	return &resp, nil
}

// List returns the recipient's notifications, newest first.
func (s *Service) List(ctx context.Context, to entity.Recipient) ([]dto.NotificationResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "NotificationService.List", trace.WithAttributes(
		attribute.String("notification.to", string(to)),
	))
	defer span.End()

	if !to.Valid() {
		return nil, errorbank.BadRequest("unknown recipient", errorbank.WithDetail("to", to))
	}

	notifications, err := s.repo.ListByRecipient(ctx, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list notifications", errorbank.WithCause(err))
	}

	responses := make([]dto.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toResponse(&notifications[i]))
	}
	return responses, nil
}

// MarkRead flags a notification as read.
func (s *Service) MarkRead(ctx context.Context, id int64) (*dto.NotificationResponse, error) {
	ctx, span := serviceTracer.Start(ctx, "NotificationService.MarkRead", trace.WithAttributes(attribute.Int64("notification.id", id)))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.NotFound("notification not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to mark notification read", errorbank.WithCause(err))
	}

	resp := toResponse(notification)
	return &resp, nil
}

func toResponse(n *entity.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		To:        n.To,
		OrderID:   n.OrderID,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
