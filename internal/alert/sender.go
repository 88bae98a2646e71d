package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrSendTimeout is returned when the broker did not acknowledge in time.
var ErrSendTimeout = errors.New("alert: publish timed out")

// Emergency is the message handed to the SMS gateway.
type Emergency struct {
	AlertID     string    `json:"alert_id"`
	To          string    `json:"to"`
	Message     string    `json:"message"`
	HasLocation bool      `json:"has_location"`
	Lat         float64   `json:"lat,omitempty"`
	Lon         float64   `json:"lon,omitempty"`
	Time        time.Time `json:"time"`
}

// Sender delivers an emergency message.
type Sender interface {
	Send(ctx context.Context, e Emergency) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, e Emergency) error

func (f SenderFunc) Send(ctx context.Context, e Emergency) error { return f(ctx, e) }

// MQTTSender publishes emergencies (QoS 1, not retained) for an external
// gateway to deliver.
type MQTTSender struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTSender returns a sender publishing on topic.
func NewMQTTSender(client mqtt.Client, topic string, timeout time.Duration) *MQTTSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSender{client: client, topic: topic, timeout: timeout}
}

func (s *MQTTSender) Send(ctx context.Context, e Emergency) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("alert: marshal emergency: %w", err)
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
