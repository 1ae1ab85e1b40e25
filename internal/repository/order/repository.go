package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/roomserve/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// ErrPreconditionFailed is returned when a conditional write matched no row:
// the order changed underneath the caller.
var ErrPreconditionFailed = errors.New("order precondition failed")

// Filter narrows List results.
type Filter struct {
	// RoomID restricts results to one room when non-nil.
	RoomID *int64
	// VisibleOnly keeps only orders still visible to the ordering room.
	VisibleOnly bool
}

// StatusUpdate describes a compare-and-swap status write. The write only
// lands when the stored status still equals From.
type StatusUpdate struct {
	From        entity.OrderStatus
	To          entity.OrderStatus
	ConfirmedAt *time.Time
	IsPaid      *bool
}

// Repository encapsulates read/write access for orders.
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

// Create persists a new order using the write connection.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.Int64("order.number", order.OrderNumber)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns orders matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []entity.Order
	q := r.reader.NewSelect().Model(&orders).Order("created_at DESC")
	if filter.RoomID != nil {
		q = q.Where("room_id = ?", *filter.RoomID)
	}
	if filter.VisibleOnly {
		q = q.Where("is_visible_to_client")
	}

	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// UpdateStatus applies a conditional status transition. It returns
// ErrPreconditionFailed when the stored status no longer equals upd.From,
// leaving the row untouched.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.from", string(upd.From)),
		attribute.String("order.status.to", string(upd.To)),
	))
	defer span.End()

	q := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("status = ?", upd.To).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", upd.From)
	if upd.ConfirmedAt != nil {
		q = q.Set("confirmed_at = ?", *upd.ConfirmedAt)
	}
	if upd.IsPaid != nil {
		q = q.Set("is_paid = ?", *upd.IsPaid)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		span.SetStatus(codes.Error, "stale status")
		return ErrPreconditionFailed
	}
	return nil
}

// SetPaid flips is_paid to true, guarded so a paid order is never written
// twice. Returns ErrPreconditionFailed when the order was already paid or
// missing.
func (r *Repository) SetPaid(ctx context.Context, id int64) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetPaid", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("is_paid = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("NOT is_paid").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPreconditionFailed
	}
	return nil
}

// MarkExpiredInvisible hides paid, confirmed orders whose confirmation is
// older than the cutoff. The write is idempotent; repeating it is harmless.
func (r *Repository) MarkExpiredInvisible(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.MarkExpiredInvisible")
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("is_visible_to_client = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("is_paid").
		Where("confirmed_at IS NOT NULL").
		Where("is_visible_to_client").
		Where("confirmed_at <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return 0, err
	}
	return res.RowsAffected()
}
