// Package metrics exposes Prometheus counters for the protocol engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hearthlink"

// Resync reasons.
const (
	ReasonHeader   = "header"
	ReasonChecksum = "checksum"
	ReasonTimeout  = "timeout"
)

// Metrics holds the protocol engine's collectors.
type Metrics struct {
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter

	Resyncs          *prometheus.CounterVec
	DiscardedBytes   prometheus.Counter
	UnknownReplies   prometheus.Counter
	DecodeErrors     prometheus.Counter
	DroppedCommands  prometheus.Counter
	DeferredReplies  prometheus.Counter
	RepeatedUpdates  prometheus.Counter
	ExecutedReplies  prometheus.Counter
	OutboundQueued   prometheus.Gauge
	InboundQueued    prometheus.Gauge
	DelayedQueued    prometheus.Gauge
	Connects         prometheus.Counter
	ConnectionLosses prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		FramesSent:     counter("frames_sent_total", "Frames written to the server"),
		FramesReceived: counter("frames_received_total", "Valid frames read from the server"),
		BytesSent:      counter("bytes_sent_total", "Bytes written to the server"),
		BytesReceived:  counter("bytes_received_total", "Bytes read from the server"),

		Resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_total",
			Help:      "Receiver resynchronisations by reason",
		}, []string{"reason"}),
		DiscardedBytes:   counter("discarded_bytes_total", "Bytes dropped while resynchronising"),
		UnknownReplies:   counter("unknown_replies_total", "Frames with an unregistered id"),
		DecodeErrors:     counter("decode_errors_total", "Frames whose payload failed to decode"),
		DroppedCommands:  counter("dropped_commands_total", "Commands that could not be encoded"),
		DeferredReplies:  counter("deferred_replies_total", "Replies moved to the delayed queue"),
		RepeatedUpdates:  counter("repeated_updates_total", "Reply updates that asked to run again"),
		ExecutedReplies:  counter("executed_replies_total", "Replies fully executed"),
		OutboundQueued:   gauge("outbound_queue_length", "Commands waiting for the sender"),
		InboundQueued:    gauge("inbound_queue_length", "Replies waiting for the executor"),
		DelayedQueued:    gauge("delayed_queue_length", "Replies waiting to become ready"),
		Connects:         counter("connects_total", "Successful connects"),
		ConnectionLosses: counter("connection_losses_total", "Connections lost to worker failures"),
	}
}

// NewUnregistered returns collectors backed by a private registry, for
// callers that do not export metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
