// Package redrive re-publishes events that were persisted but never processed, for
// example because the broadcast failed while the bus was down. It is off unless
// REDRIVE_ENABLED is set.
package redrive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"autoflow/internal/events/metrics"
	"autoflow/internal/events/models"
)

// Source lists stale unprocessed events.
type Source interface {
	ListUnprocessed(ctx context.Context, olderThan time.Time, limit int) ([]*models.DomainEvent, error)
}

// Republisher broadcasts an already persisted event.
type Republisher interface {
	Republish(ctx context.Context, event *models.DomainEvent) error
}

// Sweeper periodically re-publishes unprocessed events older than a grace period.
type Sweeper struct {
	source      Source
	republisher Republisher
	interval    time.Duration
	grace       time.Duration
	batch       int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// New creates a sweeper. grace should comfortably exceed normal processing latency,
// otherwise events still in flight get broadcast twice.
func New(source Source, republisher Republisher, interval, grace time.Duration, batch int, opts ...Option) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	s := &Sweeper{
		source:      source,
		republisher: republisher,
		interval:    interval,
		grace:       grace,
		batch:       batch,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepAt(ctx, time.Now()); err != nil {
				s.logger.WarnContext(ctx, "redrive sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SweepAt re-publishes one batch of events triggered before now minus the grace
// period and returns how many were broadcast. A failed broadcast stops the sweep; the
// rest are picked up on the next tick.
func (s *Sweeper) SweepAt(ctx context.Context, now time.Time) (int, error) {
	events, err := s.source.ListUnprocessed(ctx, now.Add(-s.grace), s.batch)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed events: %w", err)
	}

	sent := 0
	for _, event := range events {
		if err := s.republisher.Republish(ctx, event); err != nil {
			s.record(sent)
			return sent, err
		}
		sent++
	}
	s.record(sent)
	if sent > 0 {
		s.logger.InfoContext(ctx, "redrove unprocessed events", "count", sent)
	}
	return sent, nil
}

func (s *Sweeper) record(n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.AddRedriven(n)
	}
}
