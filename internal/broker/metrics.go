package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the broker connection. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	Published         *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
}

// NewMetrics creates and registers broker metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autoflow_broker_connection_state",
			Help: "Current broker connection state (0=disconnected,1=connecting,2=connected,3=reconnecting,4=gave_up,5=closed)",
		}),
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoflow_broker_reconnect_attempts_total",
			Help: "Total number of broker reconnect attempts",
		}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_broker_published_total",
			Help: "Total number of messages published, by target kind",
		}, []string{"target"}),
		PublishFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_broker_publish_failures_total",
			Help: "Total number of failed publishes, by target kind",
		}, []string{"target"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoflow_broker_deliveries_total",
			Help: "Total number of settled deliveries, by outcome (acked, requeued, dropped, filtered)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(s))
}

func (m *Metrics) incReconnectAttempt() {
	if m == nil {
		return
	}
	m.ReconnectAttempts.Inc()
}

func (m *Metrics) incPublished(target string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(target).Inc()
}

func (m *Metrics) incPublishFailure(target string) {
	if m == nil {
		return
	}
	m.PublishFailures.WithLabelValues(target).Inc()
}

func (m *Metrics) incDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}
