package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks delivery through the notification providers.
type NotificationMetrics struct {
	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	rateLimited     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{}

	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_notification_deliveries_total",
		Help: "Notification deliveries by provider and status",
	}, []string{"provider", "status"})

	m.deliveryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platewatch_notification_delivery_duration_seconds",
		Help:    "Time spent delivering a notification",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms*10, BucketFactor2, BucketCount12),
	}, []string{"provider"})

	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "platewatch_notification_circuit_state",
		Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
	}, []string{"provider"})

	m.rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platewatch_notification_rate_limited_total",
		Help: "Notifications dropped by the per-provider rate limiter",
	}, []string{"provider"})

	m.collectors = []prometheus.Collector{m.deliveries, m.deliveryLatency, m.breakerState, m.rateLimited}

	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordDelivery records the outcome and latency of one delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider, status string, seconds float64) {
	m.deliveries.WithLabelValues(provider, status).Inc()
	m.deliveryLatency.WithLabelValues(provider).Observe(seconds)
}

// SetBreakerState records the numeric circuit breaker state.
func (m *NotificationMetrics) SetBreakerState(provider string, state int) {
	m.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordRateLimited counts a notification rejected by the limiter.
func (m *NotificationMetrics) RecordRateLimited(provider string) {
	m.rateLimited.WithLabelValues(provider).Inc()
}
