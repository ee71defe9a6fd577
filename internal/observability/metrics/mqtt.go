package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains Prometheus metrics for MQTT connections, shared by the
// alert publisher and the detection subscriber via the "role" label.
type MQTTMetrics struct {
	ConnectionStatus *prometheus.GaugeVec
	Messages         *prometheus.CounterVec
	Errors           *prometheus.CounterVec
	LastConnectTime  *prometheus.GaugeVec
	PublishLatency   prometheus.Histogram
}

// NewMQTTMetrics creates a new instance of MQTTMetrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platewatch_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}, []string{"role"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_mqtt_messages_total",
			Help: "MQTT messages published or received",
		}, []string{"role"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_mqtt_errors_total",
			Help: "Total number of MQTT errors encountered",
		}, []string{"role"}),
		LastConnectTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "platewatch_mqtt_last_connect_time_seconds",
			Help: "Timestamp of the last successful MQTT connection",
		}, []string{"role"}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "platewatch_mqtt_publish_latency_seconds",
			Help:    "Latency of MQTT publish operations in seconds",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, 10),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.Messages.Describe(ch)
	m.Errors.Describe(ch)
	m.LastConnectTime.Describe(ch)
	m.PublishLatency.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ConnectionStatus.Collect(ch)
	m.Messages.Collect(ch)
	m.Errors.Collect(ch)
	m.LastConnectTime.Collect(ch)
	m.PublishLatency.Collect(ch)
}

// UpdateConnectionStatus updates the connection status and last connect time.
func (m *MQTTMetrics) UpdateConnectionStatus(role string, connected bool) {
	if connected {
		m.ConnectionStatus.WithLabelValues(role).Set(1)
		m.LastConnectTime.WithLabelValues(role).SetToCurrentTime()
		return
	}
	m.ConnectionStatus.WithLabelValues(role).Set(0)
}

// IncrementMessages counts one message for role.
func (m *MQTTMetrics) IncrementMessages(role string) {
	m.Messages.WithLabelValues(role).Inc()
}

// IncrementErrors counts one error for role.
func (m *MQTTMetrics) IncrementErrors(role string) {
	m.Errors.WithLabelValues(role).Inc()
}

// ObservePublish records how long a publish took.
func (m *MQTTMetrics) ObservePublish(started time.Time) {
	m.PublishLatency.Observe(time.Since(started).Seconds())
}
