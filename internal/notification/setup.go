package notification

import (
	"time"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/mqtt"
	"github.com/tphakala/platewatch/internal/observability/metrics"
)

// ProvidersFromSettings builds the configured providers. mqttClient is used
// by the MQTT provider and may be nil when MQTT alerts are disabled.
func ProvidersFromSettings(s *conf.Settings, mqttClient mqtt.Client) []Provider {
	n := s.Notification
	var providers []Provider

	if n.Shoutrrr.Enabled {
		providers = append(providers, NewShoutrrrProvider("shoutrrr", true, n.Shoutrrr.URLs,
			time.Duration(n.Shoutrrr.TimeoutSeconds)*time.Second))
	}
	if n.Webhook.Enabled {
		providers = append(providers, NewWebhookProvider("webhook", true, n.Webhook.URL, n.Webhook.Headers,
			time.Duration(n.Webhook.TimeoutSeconds)*time.Second, nil))
	}
	if n.MQTT.Enabled && mqttClient != nil {
		providers = append(providers, NewMQTTProvider(true, n.MQTT.Topic, mqttClient))
	}
	return providers
}

// DispatcherFromSettings builds a dispatcher with the configured guards.
func DispatcherFromSettings(s *conf.Settings, m *metrics.NotificationMetrics, providers ...Provider) *Dispatcher {
	n := s.Notification
	return NewDispatcher(DispatcherConfig{
		Timeout:           time.Duration(max(n.Shoutrrr.TimeoutSeconds, n.Webhook.TimeoutSeconds)) * time.Second,
		RequestsPerMinute: n.RateLimit.RequestsPerMinute,
		Burst:             n.RateLimit.Burst,
		MaxFailures:       n.CircuitBreaker.MaxFailures,
		BreakerTimeout:    time.Duration(n.CircuitBreaker.TimeoutSeconds) * time.Second,
	}, m, providers...)
}
