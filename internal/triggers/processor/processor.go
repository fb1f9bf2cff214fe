// Package processor reacts to broadcast events by running tenant triggers.
//
// The processor subscribes to every routing key on the events exchange. For each event
// it loads the matching triggers, evaluates their conditions against the payload, runs
// the actions of those that hold strictly in order, records execution statistics and
// finally marks the event processed. Nothing that goes wrong here is allowed to reach
// the broker: the delivery is always acknowledged, so a broken trigger can never stall
// the pipeline.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"autoflow/internal/broker"
	eventmodels "autoflow/internal/events/models"
	"autoflow/internal/triggers/actions"
	"autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
)

// SubscribePattern binds the processor to every event type.
const SubscribePattern = "#"

const markProcessedTimeout = 5 * time.Second

// TriggerStore is the processor's view of the trigger table.
type TriggerStore interface {
	FindMatching(ctx context.Context, eventType string, tenantID uuid.UUID, order models.MatchOrder) ([]*models.Trigger, error)
	RecordExecution(ctx context.Context, id uuid.UUID, at time.Time, duration time.Duration) error
}

// EventStore flips events to processed.
type EventStore interface {
	MarkProcessed(ctx context.Context, tenantID uuid.UUID, eventType string, entityID uuid.UUID, at time.Time) (int64, error)
}

// ActionExecutor runs one stored action.
type ActionExecutor interface {
	Execute(ctx context.Context, spec models.ActionSpec, inv actions.Invocation) actions.ActionResult
}

// Bus is the part of the broker connection the processor needs.
type Bus interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, exchange, pattern string, handler broker.Handler, kind broker.ExchangeKind) (*broker.Subscription, error)
}

// Processor matches events against triggers and runs their actions.
type Processor struct {
	triggers      TriggerStore
	events        EventStore
	executor      ActionExecutor
	bus           Bus
	exchange      string
	order         models.MatchOrder
	actionTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	clock         func() time.Time

	mu       sync.Mutex
	running  bool
	starting bool
	// abort is set by Stop while a Start is still connecting.
	abort bool
	sub   *broker.Subscription
}

// Option configures the Processor.
type Option func(*Processor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithMatchOrder chooses how matching triggers are ordered. The default runs them in
// creation order and ignores priority.
func WithMatchOrder(order models.MatchOrder) Option {
	return func(p *Processor) {
		if order != "" {
			p.order = order
		}
	}
}

// WithActionTimeout bounds each action. Zero disables the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.actionTimeout = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New creates a stopped processor listening on exchange once started.
func New(triggers TriggerStore, events EventStore, executor ActionExecutor, bus Bus, exchange string, opts ...Option) *Processor {
	p := &Processor{
		triggers:      triggers,
		events:        events,
		executor:      executor,
		bus:           bus,
		exchange:      exchange,
		order:         models.MatchOrderCreated,
		actionTimeout: 30 * time.Second,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        otel.Tracer("autoflow/triggers/processor"),
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start connects if needed and subscribes to all events. A subscription failure is
// returned and leaves the processor stopped. The lock is not held while connecting,
// so IsRunning answers while a reconnect is pending.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running || p.starting {
		p.mu.Unlock()
		return nil
	}
	p.starting = true
	p.abort = false
	p.mu.Unlock()

	sub, err := p.subscribe(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.starting = false
	if err != nil {
		return err
	}
	if p.abort {
		sub.Cancel()
		return nil
	}
	p.sub = sub
	p.running = true
	go p.watch(sub)

	p.logger.InfoContext(ctx, "trigger processor started",
		"exchange", p.exchange,
		"match_order", p.order,
	)
	return nil
}

func (p *Processor) subscribe(ctx context.Context) (*broker.Subscription, error) {
	if err := p.bus.Connect(ctx); err != nil {
		return nil, fmt.Errorf("start trigger processor: %w", err)
	}
	sub, err := p.bus.Subscribe(ctx, p.exchange, SubscribePattern, p.handle, broker.KindTopic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", p.exchange, err)
	}
	return sub, nil
}

// Stop cancels the subscription and waits for the in-flight event to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	sub := p.sub
	wasRunning := p.running
	p.running = false
	p.sub = nil
	if p.starting {
		p.abort = true
	}
	p.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Cancel()
	<-sub.Done()
	if wasRunning {
		p.logger.Info("trigger processor stopped")
	}
}

// IsRunning reports whether the processor holds a live subscription.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// watch notices a subscription that ended on its own, e.g. after the broker
// connection gave up.
func (p *Processor) watch(sub *broker.Subscription) {
	<-sub.Done()
	err := sub.Err()
	if err == nil {
		return
	}
	p.mu.Lock()
	if p.sub == sub {
		p.running = false
		p.sub = nil
	}
	p.mu.Unlock()
	p.logger.Error("trigger processor subscription ended; restart required", "error", err)
}

// handle is the broker handler. It always acknowledges.
func (p *Processor) handle(ctx context.Context, d broker.Delivery) error {
	var env eventmodels.Envelope
	if err := d.Decode(&env); err != nil {
		p.logger.ErrorContext(ctx, "discarding undecodable event", "routing_key", d.RoutingKey, "error", err)
		return nil
	}
	event, err := env.ToEvent()
	if err != nil {
		p.logger.ErrorContext(ctx, "discarding malformed event", "routing_key", d.RoutingKey, "error", err)
		return nil
	}
	p.ProcessEvent(ctx, &event)
	return nil
}

// ProcessEvent runs every matching trigger for event and marks it processed. It never
// fails; problems are logged and returned in the report.
func (p *Processor) ProcessEvent(ctx context.Context, event *eventmodels.DomainEvent) Report {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "processor.ProcessEvent", trace.WithAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("tenant.id", event.TenantID.String()),
		attribute.String("entity.id", event.EntityID.String()),
	))
	defer span.End()

	report := Report{EventType: event.EventType}
	logger := p.logger.With(
		"event_type", event.EventType,
		"tenant_id", event.TenantID,
		"entity_id", event.EntityID,
	)

	triggers, err := p.triggers.FindMatching(ctx, event.EventType, event.TenantID, p.order)
	if err != nil {
		report.Err = fmt.Errorf("find matching triggers: %w", err)
		span.RecordError(err)
		logger.ErrorContext(ctx, "failed to load triggers", "error", err)
	}
	p.metrics.AddTriggersMatched(event.EventType, len(triggers))

	for _, trigger := range triggers {
		report.Triggers = append(report.Triggers, p.executeTrigger(ctx, logger, trigger, event))
	}

	marked, err := p.markProcessed(ctx, event)
	if err != nil {
		span.RecordError(err)
		logger.WarnContext(ctx, "failed to mark event processed", "error", err)
		if report.Err == nil {
			report.Err = err
		}
	}
	report.MarkedProcessed = marked

	if report.Err != nil {
		span.SetStatus(codes.Error, report.Err.Error())
	}
	span.SetAttributes(
		attribute.Int("triggers.matched", len(triggers)),
		attribute.Int("triggers.executed", report.Executed()),
	)
	report.Duration = time.Since(start)
	p.metrics.IncEventsProcessed(event.EventType)
	p.metrics.ObserveProcess(report.Duration)
	return report
}

func (p *Processor) executeTrigger(ctx context.Context, logger *slog.Logger, trigger *models.Trigger, event *eventmodels.DomainEvent) TriggerReport {
	tr := TriggerReport{TriggerID: trigger.ID, Name: trigger.Name}
	logger = logger.With("trigger_id", trigger.ID, "trigger_name", trigger.Name)

	specs, err := trigger.ActionSpecs()
	if err != nil {
		tr.Err = err
		p.metrics.IncConditionErrors()
		logger.ErrorContext(ctx, "skipping trigger with malformed actions", "error", err)
		return tr
	}

	tr.Conditions = EvaluateConditions(trigger.Conditions, event.Payload)
	if tr.Conditions.Err != nil {
		tr.Err = tr.Conditions.Err
		p.metrics.IncConditionErrors()
		logger.ErrorContext(ctx, "skipping trigger with malformed conditions", "error", tr.Conditions.Err)
		return tr
	}
	if !tr.Conditions.Matched {
		logger.DebugContext(ctx, "trigger conditions not met", "mismatched", tr.Conditions.Mismatched)
		return tr
	}

	ctx, span := p.tracer.Start(ctx, "processor.executeTrigger", trace.WithAttributes(
		attribute.String("trigger.id", trigger.ID.String()),
		attribute.Int("trigger.actions", len(specs)),
	))
	defer span.End()

	start := time.Now()
	inv := actions.Invocation{Event: event, Trigger: trigger}
	for i, spec := range specs {
		result := p.executeAction(ctx, spec, inv)
		result.Index = i
		if result.Failed() {
			span.RecordError(result.Err)
			logger.ErrorContext(ctx, "trigger action failed",
				"action_index", i,
				"action_type", result.Type,
				"error", result.Err,
			)
		}
		tr.Actions = append(tr.Actions, result)
	}
	tr.Duration = time.Since(start)
	tr.Executed = true
	p.metrics.IncTriggersExecuted()

	if err := p.triggers.RecordExecution(ctx, trigger.ID, p.clock().UTC(), tr.Duration); err != nil {
		tr.Err = fmt.Errorf("record execution: %w", err)
		span.RecordError(err)
		logger.WarnContext(ctx, "failed to record trigger execution", "error", err)
	}
	logger.InfoContext(ctx, "trigger executed",
		"actions", len(tr.Actions),
		"failed_actions", tr.FailedActions(),
		"duration_ms", tr.Duration.Milliseconds(),
	)
	return tr
}

func (p *Processor) executeAction(ctx context.Context, spec models.ActionSpec, inv actions.Invocation) actions.ActionResult {
	if p.actionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.actionTimeout)
		defer cancel()
	}
	return p.executor.Execute(ctx, spec, inv)
}

// markProcessed uses a detached context so it still runs after Stop cancels ctx.
func (p *Processor) markProcessed(ctx context.Context, event *eventmodels.DomainEvent) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markProcessedTimeout)
	defer cancel()
	n, err := p.events.MarkProcessed(ctx, event.TenantID, event.EventType, event.EntityID, p.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark event processed: %w", err)
	}
	return n, nil
}
