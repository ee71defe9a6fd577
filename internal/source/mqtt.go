package source

import (
	"context"
	"sync/atomic"

	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/mqtt"
)

// MQTTStats counts messages handled by an MQTTSource.
type MQTTStats struct {
	Received uint64 `json:"received"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
	Invalid  uint64 `json:"invalid"`
}

// MQTTSource subscribes to a topic carrying JSON messages and forwards them
// to a sink. Handling runs on the MQTT client's callback goroutine, so the
// sink must not block.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	sink   Sink
	log    logger.Logger

	received atomic.Uint64
	accepted atomic.Uint64
	dropped  atomic.Uint64
	invalid  atomic.Uint64
}

// NewMQTTSource returns a source for topic on client.
func NewMQTTSource(client mqtt.Client, topic string, sink Sink) *MQTTSource {
	return &MQTTSource{
		client: client,
		topic:  topic,
		sink:   sink,
		log:    GetLogger().With(logger.String("topic", topic)),
	}
}

// Start connects the client when needed and subscribes.
func (s *MQTTSource) Start(ctx context.Context) error {
	if !s.client.IsConnected() {
		if err := s.client.Connect(ctx); err != nil {
			return err
		}
	}
	if err := s.client.Subscribe(s.topic, s.handle); err != nil {
		return err
	}
	s.log.Info("subscribed to detections")
	return nil
}

// Stop disconnects the client.
func (s *MQTTSource) Stop() {
	s.client.Disconnect()
}

func (s *MQTTSource) handle(_ string, payload []byte) {
	s.received.Add(1)

	msg, err := ParseMessage(payload)
	if err != nil {
		s.invalid.Add(1)
		s.log.Warn("discarding invalid detection message", logger.Error(err))
		return
	}
	det, err := msg.Detection("")
	if err != nil {
		s.invalid.Add(1)
		s.log.Warn("discarding detection message", logger.Error(err))
		return
	}
	if s.sink.OnDetection(det) {
		s.accepted.Add(1)
	} else {
		s.dropped.Add(1)
	}
}

// Stats returns the message counters.
func (s *MQTTSource) Stats() MQTTStats {
	return MQTTStats{
		Received: s.received.Load(),
		Accepted: s.accepted.Load(),
		Dropped:  s.dropped.Load(),
		Invalid:  s.invalid.Load(),
	}
}
