package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"anigiffy/internal/config"
	"anigiffy/internal/logging"
)

// Event kinds, used as the last topic segment.
const (
	KindGenerated = "generated"
	KindFailed    = "failed"
	KindCleanup   = "cleanup"
)

// Event describes one generation outcome.
type Event struct {
	Kind      string    `json:"kind"`
	Mode      string    `json:"mode"`
	SessionID string    `json:"session"`
	Project   string    `json:"project,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Size      int64     `json:"size,omitempty"`
	Frames    int       `json:"frames,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Removed   int       `json:"removed,omitempty"`
	Time      time.Time `json:"time"`
}

// Service defines the notification surface used by the server.
type Service interface {
	NotifyGenerated(ctx context.Context, event Event) error
	NotifyFailed(ctx context.Context, event Event) error
	NotifyCleanup(ctx context.Context, removed int) error
	Close()
}

// NewService builds an MQTT publisher when a broker is configured and a noop
// implementation otherwise.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	broker := strings.TrimSpace(cfg.Notifications.MQTTBroker)
	if broker == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	options := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.Notifications.MQTTClientID).
		SetUsername(cfg.Notifications.MQTTUsername).
		SetPassword(cfg.Notifications.MQTTPassword).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)

	return &mqttService{
		client:  mqtt.NewClient(options),
		topic:   strings.TrimRight(cfg.Notifications.MQTTTopic, "/"),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		now:     time.Now,
	}
}

// publisher is the subset of mqtt.Client the service needs.
type publisher interface {
	IsConnected() bool
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type mqttService struct {
	client  publisher
	topic   string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func (m *mqttService) NotifyGenerated(ctx context.Context, event Event) error {
	event.Kind = KindGenerated
	return m.send(ctx, event)
}

func (m *mqttService) NotifyFailed(ctx context.Context, event Event) error {
	event.Kind = KindFailed
	return m.send(ctx, event)
}

func (m *mqttService) NotifyCleanup(ctx context.Context, removed int) error {
	return m.send(ctx, Event{Kind: KindCleanup, Removed: removed})
}

func (m *mqttService) Close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func (m *mqttService) send(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = m.now().UTC()
	}
	if !m.client.IsConnected() {
		if err := m.wait(ctx, m.client.Connect()); err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	topic := m.topic + "/" + event.Kind
	if err := m.wait(ctx, m.client.Publish(topic, 0, false, body)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	m.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String(logging.FieldEventType, "notification_sent"),
	)
	return nil
}

var errTimeout = errors.New("timed out")

func (m *mqttService) wait(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopService struct{}

func (noopService) NotifyGenerated(context.Context, Event) error { return nil }
func (noopService) NotifyFailed(context.Context, Event) error    { return nil }
func (noopService) NotifyCleanup(context.Context, int) error     { return nil }
func (noopService) Close()                                       {}
