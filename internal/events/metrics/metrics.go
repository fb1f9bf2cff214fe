package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for event emission.
type Metrics struct {
	Emitted         *prometheus.CounterVec
	InsertFailures  prometheus.Counter
	PublishFailures *prometheus.CounterVec
	Redriven        prometheus.Counter
	EmitDuration    prometheus.Histogram
}

// New creates and registers event metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_events_emitted_total",
			Help: "Total number of events persisted, by event type",
		}, []string{"event_type"}),
		InsertFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_events_insert_failures_total",
			Help: "Total number of events that could not be persisted",
		}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_events_publish_failures_total",
			Help: "Total number of persisted events that could not be broadcast, by event type",
		}, []string{"event_type"}),
		Redriven: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_events_redriven_total",
			Help: "Total number of stale unprocessed events re-published by the sweeper",
		}),
		EmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoflow_events_emit_duration_seconds",
			Help:    "Time spent persisting and broadcasting one event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncEmitted increments the emitted counter for eventType.
func (m *Metrics) IncEmitted(eventType string) {
	m.Emitted.WithLabelValues(eventType).Inc()
}

// IncInsertFailures increments the insert failure counter.
func (m *Metrics) IncInsertFailures() {
	m.InsertFailures.Inc()
}

// IncPublishFailures increments the publish failure counter for eventType.
func (m *Metrics) IncPublishFailures(eventType string) {
	m.PublishFailures.WithLabelValues(eventType).Inc()
}

// AddRedriven adds n to the redriven counter.
func (m *Metrics) AddRedriven(n int) {
	m.Redriven.Add(float64(n))
}

// ObserveEmitDuration records how long an emit took.
func (m *Metrics) ObserveEmitDuration(d time.Duration) {
	m.EmitDuration.Observe(d.Seconds())
}
