// client_test.go: tests for the MQTT client wrapper.

package mqtt

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/observability/metrics"
)

const publicBroker = "tcp://test.mosquitto.org:1883"

func isMosquittoTestServerAvailable() bool {
	conn, err := net.DialTimeout("tcp", "test.mosquitto.org:1883", 5*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func newTestMetrics(t *testing.T) *metrics.MQTTMetrics {
	t.Helper()
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func createTestClient(t *testing.T, broker, role string) (Client, *metrics.MQTTMetrics) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "platewatch-test-" + role
	cfg.Role = role
	cfg.ConnectTimeout = 10 * time.Second
	cfg.ReconnectCooldown = 0

	m := newTestMetrics(t)
	c, err := NewClient(cfg, m)
	require.NoError(t, err)
	return c, m
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromSettings(conf.MQTTSettings{
		Broker: "tcp://localhost:1883",
		Topic:  "platewatch/alerts",
		Retain: true,
		QoS:    1,
	}, "gate-1", RolePublisher)

	assert.Equal(t, "gate-1-publisher", cfg.ClientID)
	assert.Equal(t, "platewatch/alerts", cfg.Topic)
	assert.True(t, cfg.Retain)
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)

	cfg = ConfigFromSettings(conf.MQTTSettings{ClientID: "custom"}, "gate-1", RoleSubscriber)
	assert.Equal(t, "custom", cfg.ClientID)
	assert.Equal(t, RoleSubscriber, cfg.Role)
}

func TestNewClient_RequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestConnect_InvalidBroker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		broker string
	}{
		{"missing host", "tcp://:1883"},
		{"unresolvable hostname", "tcp://unresolvable.invalid:1883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, m := createTestClient(t, tt.broker, RolePublisher)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := c.Connect(ctx)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
			assert.False(t, c.IsConnected())
			assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(RolePublisher)), 0)
		})
	}
}

func TestConnect_Cooldown(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Broker = "tcp://:1883"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	require.Error(t, c.Connect(context.Background()))
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestPublish_WhileDisconnected(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "tcp://localhost:1883", RolePublisher)

	err := c.Publish(context.Background(), "platewatch/test", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestSubscribe_RequiresTopic(t *testing.T) {
	t.Parallel()
	c, _ := createTestClient(t, "tcp://localhost:1883", RoleSubscriber)

	err := c.Subscribe("", func(string, []byte) {})
	require.Error(t, err)

	// registered for later, no connection needed yet
	require.NoError(t, c.Subscribe("platewatch/detections", func(string, []byte) {}))
}

func TestPublishSubscribe_PublicBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}
	if !isMosquittoTestServerAvailable() {
		t.Skip("Skipping MQTT tests: test.mosquitto.org is not available")
	}

	topic := "platewatch/test/" + time.Now().Format("150405.000000")
	sub, _ := createTestClient(t, publicBroker, RoleSubscriber)
	pub, pubMetrics := createTestClient(t, publicBroker, RolePublisher)

	var mu sync.Mutex
	var got []byte
	require.NoError(t, sub.Subscribe(topic, func(_ string, payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, sub.Connect(ctx))
	defer sub.Disconnect()
	require.NoError(t, pub.Connect(ctx))
	defer pub.Disconnect()

	require.Eventually(t, func() bool {
		if err := pub.Publish(ctx, topic, []byte("AB123C")); err != nil {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return string(got) == "AB123C"
	}, 20*time.Second, time.Second)

	assert.GreaterOrEqual(t, testutil.ToFloat64(pubMetrics.Messages.WithLabelValues(RolePublisher)), 1.0)
}
