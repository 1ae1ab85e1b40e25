package payment

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/database"
	"github.com/Additional-Code/roomserve/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/roomserve/repository/payment")

// ErrDuplicateSession is returned when the checkout session was already
// recorded; nothing is persisted in that case.
var ErrDuplicateSession = errors.New("checkout session already recorded")

// Repository persists gateway payment records.
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

// RecordCheckout persists the payment record and its order in one
// transaction. The unique provider_session_id claim makes redelivered
// webhooks converge: the second delivery conflicts, the transaction rolls
// back, and ErrDuplicateSession is returned with no state mutated.
func (r *Repository) RecordCheckout(ctx context.Context, order *entity.Order, payment *entity.Payment) error {
	if order == nil || payment == nil {
		return errors.New("nil order or payment")
	}
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.RecordCheckout", trace.WithAttributes(
		attribute.String("payment.session_id", payment.ProviderSessionID),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().Model(payment).
			On("CONFLICT (provider_session_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrDuplicateSession
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}

		payment.OrderID = order.ID
		_, err = tx.NewUpdate().Model(payment).Column("order_id").WherePK().Exec(ctx)
		return err
	})
	if err != nil && !errors.Is(err, ErrDuplicateSession) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record checkout failed")
	}
	return err
}

// ListByOrder returns the payment records attached to an order.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]entity.Payment, error) {
	ctx, span := repoTracer.Start(ctx, "PaymentRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var payments []entity.Payment
	err := r.reader.NewSelect().Model(&payments).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return payments, nil
}
