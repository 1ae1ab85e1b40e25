package notification

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/roomserve/repository/notification")

// ErrNotFound is returned when a notification is missing.
var ErrNotFound = errors.New("notification not found")

// Repository persists role-targeted notifications.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new notification.
func (r *Repository) Create(ctx context.Context, notification *entity.Notification) error {
	if notification == nil {
		return errors.New("nil notification")
	}
	ctx, span := repoTracer.Start(ctx, "NotificationRepository.Create", trace.WithAttributes(
		attribute.String("notification.to", string(notification.To)),
	))
	defer span.End()

	_, err := r.writer.NewInsert().Model(notification).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListByRecipient returns the recipient's notifications, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, to entity.Recipient) ([]entity.Notification, error) {
	ctx, span := repoTracer.Start(ctx, "NotificationRepository.ListByRecipient", trace.WithAttributes(
		attribute.String("notification.to", string(to)),
	))
	defer span.End()

	var notifications []entity.Notification
	err := r.reader.NewSelect().Model(&notifications).
		Where("recipient = ?", to).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return notifications, nil
}

// MarkRead flags a notification as read and returns the updated row.
func (r *Repository) MarkRead(ctx context.Context, id int64) (*entity.Notification, error) {
	ctx, span := repoTracer.Start(ctx, "NotificationRepository.MarkRead", trace.WithAttributes(attribute.Int64("notification.id", id)))
	defer span.End()

	notification := new(entity.Notification)
	err := r.writer.NewUpdate().Model(notification).
		Set("is_read = ?", true).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}
	return notification, nil
}
