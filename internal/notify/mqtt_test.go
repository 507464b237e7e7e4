package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/aeroimpact/internal/impact"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type sent struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu       sync.Mutex
	messages []sent
	err      error
	hang     bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, sent{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.err, !c.hang)
}

func testImpact(sev impact.Severity) impact.Impact {
	cs := "UAL123"
	return impact.Impact{
		ID:          "id-1",
		FlightID:    "abc123",
		Callsign:    &cs,
		Position:    telemetry.FlightPosition{FlightID: "abc123", Latitude: 45, Longitude: 10, Altitude: 10000},
		Severity:    sev,
		ImpactScore: 68,
		Description: "desc",
		CreatedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishToSeverityTopic(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, "aeroimpact/impacts/", impact.SeverityLow)

	require.NoError(t, p.Publish(context.Background(), testImpact(impact.SeverityHigh)))
	require.Len(t, client.messages, 1)

	msg := client.messages[0]
	assert.Equal(t, "aeroimpact/impacts/high", msg.topic)
	assert.Equal(t, byte(1), msg.qos)

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, "id-1", decoded.ID)
	assert.Equal(t, impact.SeverityHigh, decoded.Severity)
	assert.Equal(t, 68.0, decoded.ImpactScore)
	assert.Equal(t, 45.0, decoded.Latitude)
	assert.Equal(t, "UAL123", *decoded.Callsign)
}

func TestPublishSkipsBelowMinimum(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, "x", impact.SeverityHigh)

	require.NoError(t, p.Publish(context.Background(), testImpact(impact.SeverityMedium)))
	require.NoError(t, p.Publish(context.Background(), testImpact(impact.SeverityCritical)))
	require.Len(t, client.messages, 1)
	assert.Equal(t, "x/critical", client.messages[0].topic)
}

func TestPublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := newMQTTPublisher(client, "x", "")

	err := p.Publish(context.Background(), testImpact(impact.SeverityLow))
	assert.ErrorContains(t, err, "not connected")
}

func TestPublishHonoursContext(t *testing.T) {
	client := &fakeClient{hang: true}
	p := newMQTTPublisher(client, "x", "")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Publish(ctx, testImpact(impact.SeverityLow))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNop(t *testing.T) {
	var n Nop
	assert.NoError(t, n.Publish(context.Background(), testImpact(impact.SeverityCritical)))
	n.Close()
}
