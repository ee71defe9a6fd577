package notification

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/mqtt"
)

// MQTTProvider publishes notifications as JSON to a broker topic.
type MQTTProvider struct {
	name    string
	enabled bool
	topic   string
	client  mqtt.Client
}

// NewMQTTProvider returns a provider publishing to topic through client.
func NewMQTTProvider(enabled bool, topic string, client mqtt.Client) *MQTTProvider {
	return &MQTTProvider{name: "mqtt", enabled: enabled, topic: topic, client: client}
}

func (p *MQTTProvider) Name() string    { return p.name }
func (p *MQTTProvider) IsEnabled() bool { return p.enabled }

func (p *MQTTProvider) ValidateConfig() error {
	if !p.enabled {
		return nil
	}
	if p.client == nil || p.topic == "" {
		return errors.Newf("mqtt provider requires a client and a topic").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Send publishes the notification, connecting first when needed. The topic
// gets a "/<type>" suffix so subscribers can filter by alert kind.
func (p *MQTTProvider) Send(ctx context.Context, n *Notification) error {
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(buildWebhookPayload(n))
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryMQTTPublish).
			Build()
	}
	return p.client.Publish(ctx, p.topic+"/"+string(n.Type), payload)
}
