// Package emitter is the entry point business code calls to report an occurrence.
//
// Emit persists the event synchronously and then broadcasts it on the events exchange
// with the event type as routing key. A failed insert is returned to the caller; a
// failed broadcast is logged and swallowed so automation problems never break the
// business operation. Such an event stays unprocessed until the redrive sweeper (if
// enabled) re-publishes it.
package emitter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"autoflow/internal/broker"
	"autoflow/internal/events/metrics"
	"autoflow/internal/events/models"
)

// EventStore is the write side of the event table.
type EventStore interface {
	Insert(ctx context.Context, event *models.DomainEvent) error
}

// Publisher broadcasts messages on an exchange.
type Publisher interface {
	PublishToExchange(ctx context.Context, exchange, routingKey string, message any, kind broker.ExchangeKind) error
}

// Emitter persists then broadcasts domain events.
type Emitter struct {
	store     EventStore
	publisher Publisher
	exchange  string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	clock     func() time.Time
	newID     func() uuid.UUID
}

// Option configures the Emitter.
type Option func(*Emitter)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Emitter) {
		e.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Emitter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides uuid.New.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(e *Emitter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// New creates an emitter broadcasting on exchange.
func New(store EventStore, publisher Publisher, exchange string, opts ...Option) *Emitter {
	e := &Emitter{
		store:     store,
		publisher: publisher,
		exchange:  exchange,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    otel.Tracer("autoflow/events/emitter"),
		clock:     time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit records and broadcasts one event. It returns an error only when the event
// could not be validated or persisted.
func (e *Emitter) Emit(ctx context.Context, spec models.EmitSpec) (*models.DomainEvent, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "emitter.Emit", trace.WithAttributes(
		attribute.String("event.type", spec.EventType),
		attribute.String("tenant.id", spec.TenantID.String()),
		attribute.String("entity.type", spec.EntityType),
	))
	defer span.End()

	if err := spec.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("emit event: %w", err)
	}

	event := &models.DomainEvent{
		ID:          e.newID(),
		TenantID:    spec.TenantID,
		EventType:   spec.EventType,
		EntityType:  spec.EntityType,
		EntityID:    spec.EntityID,
		Payload:     spec.Data,
		Metadata:    spec.Metadata,
		TriggeredAt: e.clock().UTC(),
		Processed:   false,
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	if err := e.store.Insert(ctx, event); err != nil {
		if e.metrics != nil {
			e.metrics.IncInsertFailures()
		}
		e.logger.ErrorContext(ctx, "failed to persist event",
			"event_type", event.EventType,
			"tenant_id", event.TenantID,
			"entity_id", event.EntityID,
			"error", err,
		)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("persist event: %w", err)
	}
	if e.metrics != nil {
		e.metrics.IncEmitted(event.EventType)
	}
	span.SetAttributes(attribute.String("event.id", event.ID.String()))

	e.broadcast(ctx, span, event)

	if e.metrics != nil {
		e.metrics.ObserveEmitDuration(time.Since(start))
	}
	return event, nil
}

// Republish broadcasts an already persisted event again without touching the store.
func (e *Emitter) Republish(ctx context.Context, event *models.DomainEvent) error {
	if err := e.publisher.PublishToExchange(ctx, e.exchange, event.EventType, models.NewEnvelope(event), broker.KindTopic); err != nil {
		return fmt.Errorf("republish event %s: %w", event.ID, err)
	}
	return nil
}

func (e *Emitter) broadcast(ctx context.Context, span trace.Span, event *models.DomainEvent) {
	err := e.publisher.PublishToExchange(ctx, e.exchange, event.EventType, models.NewEnvelope(event), broker.KindTopic)
	if err == nil {
		e.logger.DebugContext(ctx, "event emitted",
			"event_id", event.ID,
			"event_type", event.EventType,
			"tenant_id", event.TenantID,
		)
		return
	}

	// The row stays unprocessed; nothing re-drives it unless the sweeper runs.
	if e.metrics != nil {
		e.metrics.IncPublishFailures(event.EventType)
	}
	span.RecordError(err)
	e.logger.ErrorContext(ctx, "event persisted but not broadcast",
		"event_id", event.ID,
		"event_type", event.EventType,
		"tenant_id", event.TenantID,
		"error", err,
	)
}
