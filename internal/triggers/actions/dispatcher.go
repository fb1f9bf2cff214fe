package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"autoflow/internal/triggers/metrics"
	"autoflow/internal/triggers/models"
)

var ErrUnsupportedAction = errors.New("unsupported action")

// Dispatcher routes typed actions to their handlers.
type Dispatcher struct {
	handlers Handlers
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(handlers Handlers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute decodes spec and dispatches it. A spec that does not decode yields a failed
// result without touching any handler.
func (d *Dispatcher) Execute(ctx context.Context, spec models.ActionSpec, inv Invocation) ActionResult {
	action, err := spec.Decode()
	if err != nil {
		result := ActionResult{
			Type:        spec.Type,
			Description: spec.Description,
			Outcome:     Outcome{Status: StatusFailed, Detail: "decode"},
			Err:         err,
		}
		d.metrics.ObserveAction(string(spec.Type), string(StatusFailed), 0)
		return result
	}
	result := d.Dispatch(ctx, action, inv)
	result.Description = spec.Description
	return result
}

// Dispatch runs one action. It never panics and never returns an error directly; the
// result carries it.
func (d *Dispatcher) Dispatch(ctx context.Context, action models.Action, inv Invocation) (result ActionResult) {
	start := time.Now()
	result.Type = action.Kind()

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = Outcome{Status: StatusFailed, Detail: "panic"}
			result.Err = fmt.Errorf("%s action panicked: %v", result.Type, r)
			d.logger.ErrorContext(ctx, "action handler panicked", "type", result.Type, "panic", r)
		}
		result.Duration = time.Since(start)
		d.metrics.ObserveAction(string(result.Type), string(result.Outcome.Status), result.Duration)
	}()

	var (
		outcome Outcome
		err     error
	)
	switch a := action.(type) {
	case models.WebhookAction:
		outcome, err = run(ctx, d.handlers.Webhook, a, inv)
	case models.WorkflowAction:
		outcome, err = run(ctx, d.handlers.Workflow, a, inv)
	case models.MessageAction:
		outcome, err = run(ctx, d.handlers.Message, a, inv)
	case models.NotificationAction:
		outcome, err = run(ctx, d.handlers.Notification, a, inv)
	case models.ActivityAction:
		outcome, err = run(ctx, d.handlers.Activity, a, inv)
	default:
		err = fmt.Errorf("%w: %T", ErrUnsupportedAction, action)
	}

	if err != nil {
		result.Outcome = Outcome{Status: StatusFailed, Detail: outcome.Detail}
		result.Err = err
		return result
	}
	if outcome.Status == "" {
		outcome.Status = StatusSucceeded
	}
	result.Outcome = outcome
	return result
}

func run[A models.Action](ctx context.Context, h Handler[A], action A, inv Invocation) (Outcome, error) {
	if h == nil {
		return Outcome{}, fmt.Errorf("%w: no %s handler registered", ErrUnsupportedAction, action.Kind())
	}
	return h.Execute(ctx, action, inv)
}
