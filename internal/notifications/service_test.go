package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"anigiffy/internal/config"
	"anigiffy/internal/logging"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	connected  bool
	connectErr error
	pending    bool
	messages   []published
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Connect() mqtt.Token {
	if f.connectErr == nil {
		f.connected = true
	}
	return doneToken(f.connectErr)
}

func (f *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.messages = append(f.messages, published{topic: topic, payload: payload.([]byte)})
	if f.pending {
		return &fakeToken{done: make(chan struct{})}
	}
	return doneToken(nil)
}

func (f *fakeClient) Disconnect(uint) { f.connected = false }

func newTestService(client *fakeClient) *mqttService {
	return &mqttService{
		client:  client,
		topic:   "anigiffy/events",
		timeout: 50 * time.Millisecond,
		logger:  logging.NewNop(),
		now:     func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) },
	}
}

func TestNewServiceReturnsNoopWithoutBroker(t *testing.T) {
	cfg := config.Default()
	svc := NewService(&cfg, logging.NewNop())
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyGenerated(context.Background(), Event{}); err != nil {
		t.Fatalf("noop returned %v", err)
	}
}

func TestNewServiceBuildsMQTTClient(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.MQTTBroker = "tcp://localhost:1883"
	cfg.Notifications.MQTTTopic = "gifs/"
	svc := NewService(&cfg, logging.NewNop())
	m, ok := svc.(*mqttService)
	if !ok {
		t.Fatalf("expected mqtt service, got %T", svc)
	}
	if m.topic != "gifs" {
		t.Fatalf("unexpected topic %q", m.topic)
	}
}

func TestPublishesEventsPerKind(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(client)
	ctx := context.Background()

	if err := svc.NotifyGenerated(ctx, Event{Mode: "full", SessionID: "abc", Filename: "demo_1.gif", Size: 42, Frames: 3}); err != nil {
		t.Fatalf("NotifyGenerated: %v", err)
	}
	if err := svc.NotifyFailed(ctx, Event{Mode: "preview", ErrorKind: "no_frames"}); err != nil {
		t.Fatalf("NotifyFailed: %v", err)
	}
	if err := svc.NotifyCleanup(ctx, 4); err != nil {
		t.Fatalf("NotifyCleanup: %v", err)
	}

	wantTopics := []string{"anigiffy/events/generated", "anigiffy/events/failed", "anigiffy/events/cleanup"}
	if len(client.messages) != len(wantTopics) {
		t.Fatalf("expected %d messages, got %d", len(wantTopics), len(client.messages))
	}
	for i, topic := range wantTopics {
		if client.messages[i].topic != topic {
			t.Fatalf("message %d topic = %q, want %q", i, client.messages[i].topic, topic)
		}
	}

	var got Event
	if err := json.Unmarshal(client.messages[0].payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Kind != KindGenerated || got.Filename != "demo_1.gif" || got.Size != 42 || got.Time.IsZero() {
		t.Fatalf("unexpected payload %+v", got)
	}
	var cleanup Event
	_ = json.Unmarshal(client.messages[2].payload, &cleanup)
	if cleanup.Removed != 4 {
		t.Fatalf("unexpected cleanup payload %+v", cleanup)
	}
}

func TestConnectFailureIsReported(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("refused")}
	err := newTestService(client).NotifyCleanup(context.Background(), 1)
	if err == nil || len(client.messages) != 0 {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestPublishTimesOut(t *testing.T) {
	client := &fakeClient{connected: true, pending: true}
	err := newTestService(client).NotifyCleanup(context.Background(), 1)
	if !errors.Is(err, errTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
