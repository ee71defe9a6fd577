package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/platewatch/internal/mqtt"
	"github.com/tphakala/platewatch/internal/pipeline"
)

type recordingSink struct {
	mu     sync.Mutex
	got    []pipeline.RawDetection
	accept bool
}

func (s *recordingSink) OnDetection(det pipeline.RawDetection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, det)
	if det.Image != nil {
		det.Image.Release()
	}
	return s.accept
}

func TestParseMessage(t *testing.T) {
	t.Parallel()

	msg, err := ParseMessage([]byte(`{"text":"AB123C","confidence":91,"country_code":"fi","timestamp":"2025-03-14T09:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "AB123C", msg.Text)
	assert.Equal(t, 91, msg.Confidence)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), msg.Timestamp.UTC())

	_, err = ParseMessage([]byte(`{"text":"AB123C","confidence":140}`))
	require.Error(t, err)
	_, err = ParseMessage([]byte(`{"confidence":40}`))
	require.Error(t, err)
	_, err = ParseMessage([]byte(`not json`))
	require.Error(t, err)
}

func TestMessage_DetectionImages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crop.jpg"), []byte{1, 2, 3}, 0o644))

	det, err := Message{Text: "AB123C", ImagePath: "crop.jpg"}.Detection(dir)
	require.NoError(t, err)
	require.NotNil(t, det.Image)
	assert.Equal(t, []byte{1, 2, 3}, det.Image.Bytes())

	det, err = Message{Text: "AB123C", Image: []byte{9}}.Detection("")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, det.Image.Bytes())

	_, err = Message{Text: "AB123C", ImagePath: "missing.jpg"}.Detection(dir)
	require.Error(t, err)
}

func TestMessage_DetectionRejectsPathsOutsideImageDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	secret := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("TOP-SECRET"), 0o600))
	dir := filepath.Join(root, "images")
	require.NoError(t, os.Mkdir(dir, 0o755))

	tests := []struct {
		name     string
		imageDir string
		path     string
	}{
		{"absolute path", dir, secret},
		{"parent traversal", dir, "../secret.txt"},
		{"nested traversal", dir, "a/../../secret.txt"},
		{"no image directory", "", secret},
		{"no image directory relative", "", "secret.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			det, err := Message{Text: "AB123C", ImagePath: tt.path}.Detection(tt.imageDir)
			require.Error(t, err)
			assert.Nil(t, det.Image)
		})
	}
}

func TestReplaySource_Run(t *testing.T) {
	t.Parallel()

	img := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8})
	input := strings.Join([]string{
		`{"text":"AB123C","confidence":70,"timestamp":"2025-03-14T09:00:00Z"}`,
		``,
		`{"text":"AB1Z3C","confidence":95,"timestamp":"2025-03-14T09:00:05Z","image":"` + img + `"}`,
		`{broken`,
		`{"text":"XYZ987","confidence":88}`,
	}, "\n")

	sink := &recordingSink{accept: true}
	res, err := NewReplaySource(strings.NewReader(input), sink).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReplayResult{Lines: 4, Accepted: 3, Invalid: 1}, res)
	require.Len(t, sink.got, 3)
	assert.Equal(t, "AB1Z3C", sink.got[1].Text)
	assert.Equal(t, []byte{0xff, 0xd8}, sink.got[1].Image.Bytes())
	assert.True(t, sink.got[2].Timestamp.IsZero())
}

func TestReplaySource_RealtimePacingAndCancel(t *testing.T) {
	t.Parallel()

	input := `{"text":"AB123C","confidence":70,"timestamp":"2025-03-14T09:00:00.000Z"}
{"text":"AB123C","confidence":70,"timestamp":"2025-03-14T09:00:00.050Z"}
{"text":"AB123C","confidence":70,"timestamp":"2025-03-14T10:00:00Z"}`

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sink := &recordingSink{accept: false}
	started := time.Now()
	res, err := NewReplaySource(strings.NewReader(input), sink, WithRealtime(true)).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	assert.Equal(t, 2, res.Dropped)
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]mqtt.MessageHandler
	connErr   error
}

func (c *fakeClient) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connErr != nil {
		return c.connErr
	}
	c.connected = true
	return nil
}

func (c *fakeClient) Publish(context.Context, string, []byte) error { return nil }

func (c *fakeClient) Subscribe(topic string, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]mqtt.MessageHandler)
	}
	c.handlers[topic] = handler
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) deliver(topic string, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	h(topic, []byte(payload))
}

func TestMQTTSource(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	sink := &recordingSink{accept: true}
	src := NewMQTTSource(client, "platewatch/detections", sink)
	require.NoError(t, src.Start(context.Background()))
	assert.True(t, client.IsConnected())

	client.deliver("platewatch/detections", `{"text":"AB123C","confidence":80}`)
	client.deliver("platewatch/detections", `{"text":"","confidence":80}`)
	client.deliver("platewatch/detections", `garbage`)

	assert.Equal(t, MQTTStats{Received: 3, Accepted: 1, Invalid: 2}, src.Stats())
	require.Len(t, sink.got, 1)
	assert.Equal(t, 80, sink.got[0].Confidence)

	src.Stop()
	assert.False(t, client.IsConnected())
}

func TestMQTTSource_IgnoresImagePaths(t *testing.T) {
	t.Parallel()

	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("TOP-SECRET"), 0o600))

	client := &fakeClient{}
	sink := &recordingSink{accept: true}
	src := NewMQTTSource(client, "platewatch/detections", sink)
	require.NoError(t, src.Start(context.Background()))

	client.deliver("platewatch/detections", `{"text":"AB123C","image_path":"`+filepath.ToSlash(secret)+`"}`)
	client.deliver("platewatch/detections", `{"text":"AB123C","image_path":"secret.txt"}`)

	assert.Empty(t, sink.got)
	assert.Equal(t, MQTTStats{Received: 2, Invalid: 2}, src.Stats())
}

func TestMQTTSource_ConnectFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{connErr: fmt.Errorf("connection refused")}
	src := NewMQTTSource(client, "t", &recordingSink{})
	require.Error(t, src.Start(context.Background()))
}
