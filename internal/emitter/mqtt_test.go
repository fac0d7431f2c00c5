package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/session"
)

// fakeToken is an already completed mqtt.Token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	connected bool
	err       error
	got       []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.got = append(c.got, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(c.err)
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)   { c.connected = false }

func outcome(action string, confidence float64) session.Outcome {
	return session.Outcome{
		ID:   "id-1",
		Mode: capture.ModeLive,
		Verdict: gesture.Verdict{
			Action:        action,
			Confidence:    confidence,
			Probabilities: map[string]float64{"fever": confidence},
		},
		At: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix, action, want string
	}{
		{"mudra", "fever", "mudra/verdicts/fever"},
		{"clinic/room1/", "sore_throat", "clinic/room1/verdicts/sore_throat"},
		{"mudra", "a/b", "mudra/verdicts/a_b"},
		{"mudra", "x+#", "mudra/verdicts/x__"},
	}

	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.action); got != tt.want {
			t.Errorf("Topic(%q, %q) = %q, want %q", tt.prefix, tt.action, got, tt.want)
		}
	}
}

func TestMQTTEmitter_Observe(t *testing.T) {
	client := &fakeClient{connected: true}
	e := NewMQTTEmitter(Config{TopicPrefix: "clinic", QoS: 1})
	e.client = client

	if err := e.Observe(context.Background(), outcome("fever", 0.9)); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	if len(client.got) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.got))
	}
	msg := client.got[0]
	if msg.topic != "clinic/verdicts/fever" || msg.qos != 1 {
		t.Errorf("unexpected topic/qos %s/%d", msg.topic, msg.qos)
	}

	var body Message
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body.ID != "id-1" || body.Mode != "live" || body.Action != "fever" || body.Confidence != 0.9 {
		t.Errorf("unexpected payload %+v", body)
	}

	stats := e.Stats()
	if stats.Published["clinic/verdicts/fever"] != 1 || stats.Errors != 0 || !stats.Connected {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMQTTEmitter_SkipsUnrecognized(t *testing.T) {
	client := &fakeClient{connected: true}
	e := NewMQTTEmitter(Config{})
	e.client = client

	if err := e.Observe(context.Background(), outcome(gesture.NoAction, 0.3)); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	if len(client.got) != 0 {
		t.Error("verdicts below threshold must not be published")
	}
}

func TestMQTTEmitter_Errors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		e := NewMQTTEmitter(Config{})
		if err := e.Observe(context.Background(), outcome("fever", 0.9)); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}

		e.client = &fakeClient{connected: false}
		if err := e.Observe(context.Background(), outcome("fever", 0.9)); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
		if e.Stats().Errors != 2 {
			t.Errorf("expected 2 errors, got %d", e.Stats().Errors)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		e := NewMQTTEmitter(Config{})
		e.client = &fakeClient{connected: true, err: errors.New("refused")}

		if err := e.Observe(context.Background(), outcome("cold", 0.7)); err == nil {
			t.Error("expected publish error")
		}
		if e.Stats().Errors != 1 {
			t.Errorf("expected 1 error, got %d", e.Stats().Errors)
		}
	})
}

func TestMQTTEmitter_Disconnect(t *testing.T) {
	client := &fakeClient{connected: true}
	e := NewMQTTEmitter(Config{})
	e.client = client

	e.Disconnect()
	if client.connected {
		t.Error("client should be disconnected")
	}
	if e.Stats().Connected {
		t.Error("stats should report disconnected")
	}

	// Idempotent.
	e.Disconnect()
}

func TestMQTTEmitter_ImplementsSink(t *testing.T) {
	var _ session.Sink = (*MQTTEmitter)(nil)
}
