package counter

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/roomserve/internal/database"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/roomserve/repository/counter")

// Repository allocates monotonically increasing sequence numbers.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires a repository backed by the primary database connection.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// Next atomically increments the named counter and returns the new value,
// creating the counter at zero first when absent. The increment happens in a
// single statement so concurrent callers always observe distinct, increasing
// values.
func (r *Repository) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("counter name is required")
	}
	ctx, span := repoTracer.Start(ctx, "CounterRepository.Next", trace.WithAttributes(attribute.String("counter.name", name)))
	defer span.End()

	var value int64
	err := r.writer.NewRaw(
		"INSERT INTO counters (name, value) VALUES (?, 1) "+
			"ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 "+
			"RETURNING value",
		name,
	).Scan(ctx, &value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		return 0, err
	}
	return value, nil
}
