// Package emitter publishes recognized actions to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/mudra/internal/session"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned by Observe while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Config describes the broker connection.
type Config struct {
	Broker      string // host:port, or a full URL such as ssl://host:8883
	ClientID    string
	TopicPrefix string
	QoS         byte
	Username    string
	Password    string
}

// publisher is the part of mqtt.Client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Message is the JSON payload published for each recognized action.
type Message struct {
	ID            string             `json:"id"`
	Mode          string             `json:"mode"`
	Action        string             `json:"action"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	Timestamp     time.Time          `json:"timestamp"`
}

// MQTTEmitter publishes verdicts whose action passed the confidence
// threshold. It implements session.Sink.
type MQTTEmitter struct {
	cfg    Config
	client publisher

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
}

// NewMQTTEmitter returns an emitter that is not yet connected.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "mudra"
	}
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Connect dials the broker. The client reconnects on its own afterwards.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetUsername(e.cfg.Username)
	opts.SetPassword(e.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		slog.Info("mqtt connected", "broker", broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()

	// Keep the client even if the first attempt is slow; it goes on
	// retrying and Observe reports ErrNotConnected until it succeeds.
	e.mu.Lock()
	e.client = client
	e.mu.Unlock()

	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connect %s: timeout", broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return nil
}

// Topic returns the topic an action is published on. Characters that are
// MQTT separators or wildcards are replaced with underscores.
func Topic(prefix, action string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, action)
	return strings.TrimSuffix(prefix, "/") + "/verdicts/" + clean
}

// Observe publishes out if its action was recognized.
func (e *MQTTEmitter) Observe(ctx context.Context, out session.Outcome) error {
	if !out.Verdict.Recognized() {
		return nil
	}

	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(Message{
		ID:            out.ID,
		Mode:          string(out.Mode),
		Action:        out.Verdict.Action,
		Confidence:    out.Verdict.Confidence,
		Probabilities: out.Verdict.Probabilities,
		Timestamp:     out.At,
	})
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal verdict: %w", err)
	}

	topic := Topic(e.cfg.TopicPrefix, out.Verdict.Action)
	token := client.Publish(topic, e.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		e.countError()
		return fmt.Errorf("publish %s: timeout", topic)
	case <-ctx.Done():
		e.countError()
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("verdict published", "topic", topic, "qos", e.cfg.QoS, "size", len(payload))
	return nil
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns current counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.client != nil && e.client.IsConnected(),
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
