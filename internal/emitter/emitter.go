// Package emitter publishes zone occupancy transitions to an optional
// MQTT broker, mirroring the reference daemon's MQTT emitter pattern
// but carrying occupancy events instead of inference results.
package emitter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/config"
)

// Event is the JSON payload published for one zone occupancy transition.
// ID is a freshly generated UUID per event, letting a downstream
// consumer dedupe or trace a transition back to this publish call.
type Event struct {
	ID       string `json:"id"`
	Zone     string `json:"zone"`
	Occupied bool   `json:"occupied"`
	Pop      int64  `json:"pop"`
	SA       int32  `json:"sa"`
	At       string `json:"at"`
}

// Sink accepts occupancy transitions. Publish must never block the
// occupancy engine; a Sink queues internally and drops under pressure.
type Sink interface {
	Publish(z *catalog.Zone)
	Dropped() uint64
	Close()
}

// NoopSink is used when no broker is configured. Publish is a no-op
// that never blocks or panics.
type NoopSink struct{}

func (NoopSink) Publish(*catalog.Zone) {}
func (NoopSink) Dropped() uint64       { return 0 }
func (NoopSink) Close()                {}

const queueDepth = 256

// MQTTSink publishes occupancy transitions to a configured broker. A
// single goroutine drains a bounded channel; Publish enqueues without
// blocking and increments a drop counter when the channel is full.
type MQTTSink struct {
	client mqtt.Client
	topic  string

	events  chan Event
	dropped atomic.Uint64
	done    chan struct{}
}

// NewMQTTSink connects to the broker named in cfg and starts the
// publisher goroutine. Returns an error if the broker cannot be
// reached; callers should fall back to NoopSink on failure.
func NewMQTTSink(cfg config.MQTT) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnectionLost = func(mqtt.Client, error) {
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect", "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "kndd/occupancy"
	}

	s := &MQTTSink{
		client: client,
		topic:  topic,
		events: make(chan Event, queueDepth),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *MQTTSink) run() {
	defer close(s.done)
	for ev := range s.events {
		payload, err := json.Marshal(ev)
		if err != nil {
			slog.Error("emitter: marshal event", "error", err)
			continue
		}
		topic := fmt.Sprintf("%s/%s", s.topic, ev.Zone)
		token := s.client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(2 * time.Second) {
			slog.Error("emitter: publish timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			slog.Error("emitter: publish failed", "topic", topic, "error", err)
		}
	}
}

// Publish enqueues a transition. It never blocks: if the queue is
// full, the event is dropped and the drop counter increments.
func (s *MQTTSink) Publish(z *catalog.Zone) {
	ev := Event{
		ID:       uuid.New().String(),
		Zone:     z.Name,
		Occupied: z.ReportedOccupied(),
		Pop:      z.Pop,
		SA:       z.SA,
		At:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many transitions were dropped for a full queue.
func (s *MQTTSink) Dropped() uint64 { return s.dropped.Load() }

// Close stops the publisher goroutine and disconnects from the broker.
func (s *MQTTSink) Close() {
	close(s.events)
	<-s.done
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

// New returns a Sink appropriate for cfg: a NoopSink when no broker is
// configured, or a connected MQTTSink otherwise. On connection failure
// it logs and falls back to NoopSink rather than failing startup.
func New(cfg config.MQTT) Sink {
	if cfg.Broker == "" {
		return NoopSink{}
	}
	sink, err := NewMQTTSink(cfg)
	if err != nil {
		slog.Error("emitter: falling back to no-op sink", "error", err)
		return NoopSink{}
	}
	return sink
}
