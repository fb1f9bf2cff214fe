package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for trigger processing. All methods are safe on a
// nil receiver so components can run without a registry.
type Metrics struct {
	EventsProcessed   *prometheus.CounterVec
	TriggersMatched   *prometheus.CounterVec
	TriggersExecuted  prometheus.Counter
	ConditionErrors   prometheus.Counter
	ActionResults     *prometheus.CounterVec
	ActionDuration    *prometheus.HistogramVec
	ProcessDuration   prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	WebhookRejections *prometheus.CounterVec
}

// New creates and registers trigger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_trigger_events_processed_total",
			Help: "Events handled by the trigger processor, by event type",
		}, []string{"event_type"}),
		TriggersMatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_triggers_matched_total",
			Help: "Triggers returned by the matching query, by event type",
		}, []string{"event_type"}),
		TriggersExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_triggers_executed_total",
			Help: "Triggers whose conditions held and whose actions ran",
		}),
		ConditionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_trigger_condition_errors_total",
			Help: "Triggers skipped because their conditions or actions could not be decoded",
		}),
		ActionResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_trigger_actions_total",
			Help: "Action executions by type and outcome",
		}, []string{"type", "outcome"}),
		ActionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoflow_trigger_action_duration_seconds",
			Help:    "Action execution latency by type",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoflow_trigger_process_duration_seconds",
			Help:    "Time to match and execute all triggers for one event",
			Buckets: prometheus.DefBuckets,
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_trigger_cache_lookups_total",
			Help: "Trigger cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		WebhookRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_webhook_circuit_rejections_total",
			Help: "Webhook calls skipped because the host circuit was open",
		}, []string{"host"}),
	}
}

func (m *Metrics) IncEventsProcessed(eventType string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) AddTriggersMatched(eventType string, n int) {
	if m == nil {
		return
	}
	m.TriggersMatched.WithLabelValues(eventType).Add(float64(n))
}

func (m *Metrics) IncTriggersExecuted() {
	if m == nil {
		return
	}
	m.TriggersExecuted.Inc()
}

func (m *Metrics) IncConditionErrors() {
	if m == nil {
		return
	}
	m.ConditionErrors.Inc()
}

func (m *Metrics) ObserveAction(actionType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionResults.WithLabelValues(actionType, outcome).Inc()
	m.ActionDuration.WithLabelValues(actionType).Observe(d.Seconds())
}

func (m *Metrics) ObserveProcess(d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessDuration.Observe(d.Seconds())
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncWebhookRejection(host string) {
	if m == nil {
		return
	}
	m.WebhookRejections.WithLabelValues(host).Inc()
}
