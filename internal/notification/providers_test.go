package notification

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/conf"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/mqtt"
)

const testWebhookURL = "https://hooks.example.com/platewatch"

func newMockedWebhook(t *testing.T, headers map[string]string) (*WebhookProvider, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	client := &http.Client{Transport: transport}
	wp := NewWebhookProvider("", true, testWebhookURL, headers, time.Second, client)
	require.NoError(t, wp.ValidateConfig())
	return wp, transport
}

func TestWebhookProvider_PostsJSON(t *testing.T) {
	t.Parallel()
	wp, transport := newMockedWebhook(t, map[string]string{"Authorization": "Bearer secret"})

	var got WebhookPayload
	var auth, contentType string
	transport.RegisterResponder(http.MethodPost, testWebhookURL,
		func(req *http.Request) (*http.Response, error) {
			auth = req.Header.Get("Authorization")
			contentType = req.Header.Get("Content-Type")
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(body, &got); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	n := testNotification().WithImage("img.jpg")
	require.NoError(t, wp.Send(context.Background(), n))

	assert.Equal(t, "webhook", wp.Name())
	assert.Equal(t, 1, transport.GetTotalCallCount())
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "blacklist", got.Type)
	assert.Equal(t, "critical", got.Priority)
	assert.Equal(t, "AB123C", got.Plate)
	assert.Equal(t, "img.jpg", got.ImageRef)
}

func TestWebhookProvider_ErrorStatus(t *testing.T) {
	t.Parallel()
	wp, transport := newMockedWebhook(t, nil)
	transport.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "maintenance"))

	err := wp.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestWebhookProvider_TransportError(t *testing.T) {
	t.Parallel()
	wp, transport := newMockedWebhook(t, nil)
	transport.RegisterResponder(http.MethodPost, testWebhookURL,
		httpmock.NewErrorResponder(errors.NewStd("connection refused")))

	err := wp.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestWebhookProvider_ValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.example.com/x", false},
		{"http://10.0.0.2:8080/alert", false},
		{"ftp://hooks.example.com", true},
		{"/relative", true},
		{"", true},
	}
	for _, tt := range tests {
		wp := NewWebhookProvider("hook", true, tt.url, nil, 0, nil)
		if tt.wantErr {
			assert.Error(t, wp.ValidateConfig(), tt.url)
		} else {
			assert.NoError(t, wp.ValidateConfig(), tt.url)
		}
	}

	assert.NoError(t, NewWebhookProvider("off", false, "", nil, 0, nil).ValidateConfig())
}

func TestShoutrrrProvider_Validation(t *testing.T) {
	t.Parallel()

	p := NewShoutrrrProvider("", true, nil, time.Second)
	assert.Equal(t, "shoutrrr", p.Name())
	require.Error(t, p.ValidateConfig())

	p = NewShoutrrrProvider("chat", true, []string{"nosuchservice://token@host"}, time.Second)
	err := p.ValidateConfig()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	err = p.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

// fakeMQTTClient records publishes.
type fakeMQTTClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	topics     []string
	payloads   [][]byte
}

func (f *fakeMQTTClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeMQTTClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeMQTTClient) Subscribe(string, mqtt.MessageHandler) error { return nil }

func (f *fakeMQTTClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTTClient) Disconnect() {}

func TestMQTTProvider_Send(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{}
	p := NewMQTTProvider(true, "platewatch/alerts", client)
	require.NoError(t, p.ValidateConfig())

	require.NoError(t, p.Send(context.Background(), testNotification()))
	assert.True(t, client.IsConnected())
	require.Len(t, client.topics, 1)
	assert.Equal(t, "platewatch/alerts/blacklist", client.topics[0])

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(client.payloads[0], &payload))
	assert.Equal(t, "AB123C", payload.Plate)
}

func TestMQTTProvider_ConnectFailure(t *testing.T) {
	t.Parallel()

	client := &fakeMQTTClient{connectErr: errors.NewStd("broker unreachable")}
	p := NewMQTTProvider(true, "platewatch/alerts", client)

	require.Error(t, p.Send(context.Background(), testNotification()))
	assert.Empty(t, client.topics)
	assert.Error(t, NewMQTTProvider(true, "", client).ValidateConfig())
}

func TestProvidersFromSettings(t *testing.T) {
	t.Parallel()

	s := &conf.Settings{}
	s.Notification.Webhook.Enabled = true
	s.Notification.Webhook.URL = testWebhookURL
	s.Notification.Webhook.TimeoutSeconds = 5
	s.Notification.MQTT.Enabled = true
	s.Notification.MQTT.Topic = "platewatch/alerts"

	providers := ProvidersFromSettings(s, &fakeMQTTClient{})
	require.Len(t, providers, 2)
	assert.Equal(t, "webhook", providers[0].Name())
	assert.Equal(t, "mqtt", providers[1].Name())

	// no client, no MQTT provider
	assert.Len(t, ProvidersFromSettings(s, nil), 1)

	d := DispatcherFromSettings(s, nil, providers...)
	assert.Equal(t, 2, d.Len())
}
