// Package telemetry publishes connection events and client status to an
// MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/util"
)

// MQTT topics
const (
	TopicConnection = "client/connection"
	TopicStatus     = "client/status"
	TopicAdmin      = "client/admin"
)

// DefaultStatusInterval is how often the status topic is refreshed.
const DefaultStatusInterval = 60 * time.Second

// StatusSource reports the connection state for status messages.
type StatusSource interface {
	Stats() network.Stats
}

// MQTTHandler manages the MQTT connection and publishes telemetry.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	status   StatusSource
	client   mqtt.Client
	logger   zerolog.Logger

	// Metadata included in every message
	metadata map[string]interface{}

	StatusInterval time.Duration
}

// NewMQTTHandler creates a telemetry handler. status may be nil.
func NewMQTTHandler(cfg config.MQTTConfig, version string, eventBus *events.EventBus, status StatusSource) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":    sysInfo.Hostname,
		"os":          sysInfo.OS,
		"arch":        sysInfo.Architecture,
		"cpu_model":   sysInfo.CPUModel,
		"cpu_cores":   sysInfo.CPUCores,
		"memory_mb":   sysInfo.TotalMemory,
		"app_version": version,
	}

	h := &MQTTHandler{
		cfg:            cfg,
		eventBus:       eventBus,
		status:         status,
		metadata:       metadata,
		logger:         util.ComponentLogger("telemetry"),
		StatusInterval: DefaultStatusInterval,
	}

	opts, err := h.clientOptions(sysInfo.Hostname)
	if err != nil {
		return nil, err
	}
	h.client = mqtt.NewClient(opts)
	return h, nil
}

func (h *MQTTHandler) clientOptions(hostname string) (*mqtt.ClientOptions, error) {
	scheme := "tcp"
	if h.cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, h.cfg.BrokerURL, h.cfg.Port))

	if h.cfg.ClientID != "" {
		opts.SetClientID(h.cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("hearthlink-%s", hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if h.cfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		if h.cfg.CAFile != "" {
			pem, err := os.ReadFile(h.cfg.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", h.cfg.CAFile)
			}
			tlsConfig.RootCAs = pool
		}

		// mTLS: load client certificate
		if h.cfg.CertFile != "" && h.cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(h.cfg.CertFile, h.cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})
	return opts, nil
}

// Start connects to the broker, forwards connection events and publishes the
// status every StatusInterval until ctx is done.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	defer h.unsubscribeEvents()

	ticker := time.NewTicker(h.StatusInterval)
	defer ticker.Stop()

	h.PublishStatus()
	for {
		select {
		case <-ctx.Done():
			h.PublishShutdown()
			h.client.Disconnect(5000)
			h.logger.Info().Msg("MQTT disconnected")
			return nil
		case <-ticker.C:
			h.PublishStatus()
		}
	}
}

var connectionEvents = []events.EventType{
	events.EventConnected,
	events.EventDisconnected,
	events.EventConnectionLost,
	events.EventServerLogout,
}

func (h *MQTTHandler) subscribeEvents() {
	for _, t := range connectionEvents {
		h.eventBus.Subscribe(t, "mqtt", h.onConnectionEvent)
	}
}

func (h *MQTTHandler) unsubscribeEvents() {
	for _, t := range connectionEvents {
		h.eventBus.Unsubscribe(t, "mqtt")
	}
}

func (h *MQTTHandler) onConnectionEvent(_ context.Context, event events.Event) error {
	h.publish(TopicConnection, map[string]interface{}{
		"event":   event.Type,
		"payload": event.Payload,
	})
	return nil
}

// PublishStatus sends the connection and process status.
func (h *MQTTHandler) PublishStatus() {
	status := map[string]interface{}{}
	if h.status != nil {
		status["connection"] = h.status.Stats()
	}
	if usage, err := util.GetProcessUsage(); err == nil {
		status["process"] = usage
	}
	h.publish(TopicStatus, status)
}

// PublishShutdown sends a shutdown message to the broker.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, map[string]interface{}{
		"event": events.EventShutdown,
	})
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}
