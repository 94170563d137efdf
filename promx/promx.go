// Package promx implements rabbitmq.Metrics with Prometheus collectors
// registered through promauto, in the style of a worker pool's package-level
// metric vectors.
package promx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a rabbitmq.Metrics implementation backed by Prometheus
// CounterVec, GaugeVec and HistogramVec collectors labeled by queue name.
type Metrics struct {
	activeSubscriptions *prometheus.GaugeVec
	targetScale         *prometheus.GaugeVec
	acksTotal           *prometheus.CounterVec
	nacksTotal          *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	deserFailuresTotal  *prometheus.CounterVec
	callbackDuration    *prometheus.HistogramVec
}

// New registers and returns a Metrics against the default Prometheus
// registry. namespace prefixes every metric name, e.g. "orders" produces
// "orders_rabbitmq_active_subscriptions".
func New(namespace string) *Metrics {
	return &Metrics{
		activeSubscriptions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rabbitmq_active_subscriptions",
				Help:      "Number of active subscriptions for a queue.",
			},
			[]string{"queue"},
		),
		targetScale: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rabbitmq_target_scale",
				Help:      "Target subscription count decided by the consumer count manager.",
			},
			[]string{"queue"},
		),
		acksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rabbitmq_acks_total",
				Help:      "Total number of acknowledged deliveries.",
			},
			[]string{"queue"},
		),
		nacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rabbitmq_nacks_total",
				Help:      "Total number of rejected deliveries, labeled by whether they were requeued.",
			},
			[]string{"queue", "requeued"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rabbitmq_retries_total",
				Help:      "Total number of callback retry attempts beyond the first.",
			},
			[]string{"queue"},
		),
		deserFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rabbitmq_deserialization_failures_total",
				Help:      "Total number of deliveries that failed to deserialize.",
			},
			[]string{"queue"},
		),
		callbackDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rabbitmq_callback_duration_seconds",
				Help:      "Duration of processing callback invocations in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"queue"},
		),
	}
}

func (m *Metrics) SetActiveSubscriptions(queueName string, n int) {
	m.activeSubscriptions.WithLabelValues(queueName).Set(float64(n))
}

func (m *Metrics) SetTargetScale(queueName string, n int) {
	m.targetScale.WithLabelValues(queueName).Set(float64(n))
}

func (m *Metrics) IncAcks(queueName string) {
	m.acksTotal.WithLabelValues(queueName).Inc()
}

func (m *Metrics) IncNacks(queueName string, requeued bool) {
	m.nacksTotal.WithLabelValues(queueName, boolLabel(requeued)).Inc()
}

func (m *Metrics) IncRetries(queueName string) {
	m.retriesTotal.WithLabelValues(queueName).Inc()
}

func (m *Metrics) IncDeserializationFailures(queueName string) {
	m.deserFailuresTotal.WithLabelValues(queueName).Inc()
}

func (m *Metrics) ObserveCallbackDuration(queueName string, seconds float64) {
	m.callbackDuration.WithLabelValues(queueName).Observe(seconds)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
