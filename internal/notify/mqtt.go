// Package notify publishes stored impacts to interested subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/aeroimpact/internal/impact"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

var errPublishTimeout = errors.New("mqtt publish timed out")

// publisher is the part of mqtt.Client we use.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON body published for every impact.
type Message struct {
	ID          string          `json:"id"`
	FlightID    string          `json:"flight_id"`
	Callsign    *string         `json:"callsign"`
	Severity    impact.Severity `json:"severity"`
	ImpactScore float64         `json:"impact_score"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Altitude    float64         `json:"altitude"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MQTTPublisher sends impacts to <prefix>/<severity>.
type MQTTPublisher struct {
	client      publisher
	disconnect  func()
	prefix      string
	minSeverity impact.Severity
}

// NewMQTTPublisher connects to broker and returns a publisher for impacts at
// or above minSeverity.
func NewMQTTPublisher(broker, clientID, prefix string, minSeverity impact.Severity) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", broker, token.Error())
	}
	slog.Info("notify: connected to mqtt broker", "broker", broker, "client_id", clientID)

	p := newMQTTPublisher(client, prefix, minSeverity)
	p.disconnect = func() { client.Disconnect(disconnectQuiesce) }
	return p, nil
}

func newMQTTPublisher(client publisher, prefix string, minSeverity impact.Severity) *MQTTPublisher {
	if minSeverity == "" {
		minSeverity = impact.SeverityLow
	}
	return &MQTTPublisher{
		client:      client,
		prefix:      strings.TrimRight(prefix, "/"),
		minSeverity: minSeverity,
	}
}

// Topic returns the topic an impact of the given severity is published to.
func (p *MQTTPublisher) Topic(sev impact.Severity) string {
	return p.prefix + "/" + string(sev)
}

// Publish sends imp unless it is below the configured minimum severity.
func (p *MQTTPublisher) Publish(ctx context.Context, imp impact.Impact) error {
	if !imp.Severity.AtLeast(p.minSeverity) {
		return nil
	}

	payload, err := json.Marshal(Message{
		ID:          imp.ID,
		FlightID:    imp.FlightID,
		Callsign:    imp.Callsign,
		Severity:    imp.Severity,
		ImpactScore: imp.ImpactScore,
		Latitude:    imp.Position.Latitude,
		Longitude:   imp.Position.Longitude,
		Altitude:    imp.Position.Altitude,
		Description: imp.Description,
		CreatedAt:   imp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode impact message: %w", err)
	}

	topic := p.Topic(imp.Severity)
	token := p.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	slog.Debug("notify: impact published", "topic", topic, "impact_id", imp.ID)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.disconnect != nil {
		p.disconnect()
	}
}

// Nop discards every impact.
type Nop struct{}

func (Nop) Publish(context.Context, impact.Impact) error { return nil }

func (Nop) Close() {}
