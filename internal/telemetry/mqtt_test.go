package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/network"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload []byte
}

// fakeClient records publishes. Methods not overridden panic.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	messages  []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

type fixedStats network.Stats

func (s fixedStats) Stats() network.Stats { return network.Stats(s) }

func newTestHandler(client mqtt.Client, bus *events.EventBus, status StatusSource) *MQTTHandler {
	return &MQTTHandler{
		eventBus:       bus,
		status:         status,
		client:         client,
		logger:         zerolog.Nop(),
		metadata:       map[string]interface{}{"hostname": "test-host", "app_version": "v0.0.0"},
		StatusInterval: time.Hour,
	}
}

func decode(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestNewMQTTHandlerDisabled(t *testing.T) {
	_, err := NewMQTTHandler(config.MQTTConfig{}, "v1", events.NewEventBus(), nil)
	assert.Error(t, err)
}

func TestConnectionEventPublished(t *testing.T) {
	client := &fakeClient{connected: true}
	bus := events.NewEventBus()
	h := newTestHandler(client, bus, nil)
	h.subscribeEvents()

	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventConnectionLost,
		Payload: events.DisconnectedPayload{Remote: "srv:7171", Reason: "read: EOF"},
	}))

	msgs := client.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicConnection, msgs[0].topic)

	msg := decode(t, msgs[0].payload)
	assert.Equal(t, "test-host", msg["hostname"])
	assert.NotEmpty(t, msg["timestamp"])
	inner := msg["payload"].(map[string]interface{})
	assert.Equal(t, "connection_lost", inner["event"])

	h.unsubscribeEvents()
	require.NoError(t, bus.EmitSync(context.Background(), events.Event{Type: events.EventConnected}))
	assert.Len(t, client.sent(), 1)
}

func TestPublishSkippedWhenOffline(t *testing.T) {
	client := &fakeClient{}
	h := newTestHandler(client, events.NewEventBus(), nil)

	h.PublishStatus()
	h.PublishShutdown()

	assert.Empty(t, client.sent())
}

func TestPublishStatus(t *testing.T) {
	client := &fakeClient{connected: true}
	h := newTestHandler(client, events.NewEventBus(), fixedStats{
		Connected: true,
		Remote:    "srv:7171",
		Outbound:  2,
	})

	h.PublishStatus()

	msgs := client.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicStatus, msgs[0].topic)

	status := decode(t, msgs[0].payload)["payload"].(map[string]interface{})
	conn := status["connection"].(map[string]interface{})
	assert.Equal(t, true, conn["connected"])
	assert.Equal(t, "srv:7171", conn["remote"])
	assert.EqualValues(t, 2, conn["outbound"])
}
