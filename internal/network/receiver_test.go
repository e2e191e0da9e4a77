package network

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/reply"
	"github.com/hearthlink/hearthlink/internal/world"
)

// frame builds a wire frame around payload.
func frame(id byte, payload []byte) []byte {
	b := make([]byte, protocol.HeaderSize, protocol.HeaderSize+len(payload))
	b[0] = id
	b[1] = id ^ protocol.CheckMask
	binary.BigEndian.PutUint16(b[protocol.LengthPos:], uint16(len(payload)))
	binary.BigEndian.PutUint16(b[protocol.ChecksumPos:], protocol.Checksum(payload))
	return append(b, payload...)
}

func locationFrame(x, y, z int16) []byte {
	w := protocol.NewWriter(6)
	w.WriteLocation(protocol.Location{X: x, Y: y, Z: z})
	return frame(protocol.MsgLocation, w.Bytes())
}

func sayFrame(text string) []byte {
	w := protocol.NewWriter(16)
	w.WriteLocation(protocol.Location{})
	w.WriteString(text)
	return frame(protocol.MsgSay, w.Bytes())
}

func newTestReceiver(t *testing.T) (*Receiver, *Queue[protocol.Reply], *metrics.Metrics) {
	t.Helper()
	replies, err := reply.NewRegistry(&reply.Env{World: world.NewState()})
	require.NoError(t, err)

	inbound := NewQueue[protocol.Reply]()
	m := metrics.NewUnregistered()
	return NewReceiver(nil, replies, inbound, m), inbound, m
}

func feed(r *Receiver, now time.Time, chunks ...[]byte) {
	for _, c := range chunks {
		r.buf = append(r.buf, c...)
	}
	r.process(now)
}

func TestReceiverDecodesFrames(t *testing.T) {
	r, inbound, m := newTestReceiver(t)

	feed(r, time.Now(), locationFrame(10, 20, 1), sayFrame("hi"))

	require.Equal(t, 2, inbound.Len())
	first, _ := inbound.TryPop()
	loc, ok := first.(*reply.Location)
	require.True(t, ok)
	assert.Equal(t, protocol.Location{X: 10, Y: 20, Z: 1}, loc.Location)

	second, _ := inbound.TryPop()
	talk, ok := second.(*reply.Talk)
	require.True(t, ok)
	assert.Equal(t, "hi", talk.Text)

	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesReceived))
}

func TestReceiverResyncsOnBadHeader(t *testing.T) {
	r, inbound, m := newTestReceiver(t)

	feed(r, time.Now(), []byte{0x01, 0x02}, locationFrame(1, 2, 3))

	assert.Equal(t, 1, inbound.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Resyncs.WithLabelValues(metrics.ReasonHeader)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DiscardedBytes))
}

func TestReceiverResyncsOnChecksumMismatch(t *testing.T) {
	r, inbound, m := newTestReceiver(t)

	bad := locationFrame(10, 20, 1)
	bad[protocol.ChecksumPos+1]++

	feed(r, time.Now(), bad, locationFrame(4, 5, 6))

	require.Equal(t, 1, inbound.Len())
	msg, _ := inbound.TryPop()
	assert.Equal(t, protocol.Location{X: 4, Y: 5, Z: 6}, msg.(*reply.Location).Location)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resyncs.WithLabelValues(metrics.ReasonChecksum)))
	assert.Equal(t, float64(len(bad)), testutil.ToFloat64(m.DiscardedBytes))
}

func TestReceiverWaitsForSplitFrame(t *testing.T) {
	r, inbound, _ := newTestReceiver(t)
	full := sayFrame("split across reads")
	now := time.Now()

	feed(r, now, full[:4])
	assert.Equal(t, 4, r.Buffered())

	feed(r, now.Add(300*time.Millisecond), full[4:10])
	assert.Equal(t, 0, inbound.Len())

	feed(r, now.Add(600*time.Millisecond), full[10:])
	assert.Equal(t, 1, inbound.Len())
	assert.Equal(t, 0, r.Buffered())
}

func TestReceiverDiscardsStalePartialFrame(t *testing.T) {
	r, inbound, m := newTestReceiver(t)
	full := sayFrame("never completed")
	now := time.Now()

	feed(r, now, full[:8])
	feed(r, now.Add(500*time.Millisecond))
	assert.Equal(t, 8, r.Buffered())

	feed(r, now.Add(DefaultPartialTimeout+time.Millisecond))
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resyncs.WithLabelValues(metrics.ReasonTimeout)))

	// the stream continues cleanly after the discard
	feed(r, now.Add(2*time.Second), locationFrame(1, 1, 1))
	assert.Equal(t, 1, inbound.Len())
}

func TestReceiverWaitsForTricklingFrame(t *testing.T) {
	r, inbound, m := newTestReceiver(t)
	full := sayFrame("slow but steady")
	now := time.Now()

	step := DefaultPartialTimeout * 3 / 5
	for i := 0; i < len(full)-1; i++ {
		feed(r, now.Add(time.Duration(i)*step), full[i:i+1])
	}
	require.Equal(t, len(full)-1, r.Buffered())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Resyncs.WithLabelValues(metrics.ReasonTimeout)))

	feed(r, now.Add(time.Duration(len(full)-1)*step), full[len(full)-1:])
	assert.Equal(t, 1, inbound.Len())
	assert.Equal(t, 0, r.Buffered())
}

func TestReceiverSkipsUnregisteredAndUndecodable(t *testing.T) {
	r, inbound, m := newTestReceiver(t)

	feed(r, time.Now(),
		frame(0x01, []byte{1, 2, 3}),
		frame(protocol.MsgPlayerID, []byte{0, 1}),
		locationFrame(7, 8, 9),
	)

	require.Equal(t, 1, inbound.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnknownReplies))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.FramesReceived))
}

func TestReceiverRunStopsOnEOF(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	r, inbound, _ := newTestReceiver(t)
	r.conn = client
	r.ReadPoll = 10 * time.Millisecond

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()

	_, err := server.Write(locationFrame(3, 3, 3))
	require.NoError(t, err)
	require.NoError(t, server.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop")
	}
	assert.Equal(t, 1, inbound.Len())
}

func TestReceiverRunStopsOnCancel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r, _, _ := newTestReceiver(t)
	r.conn = client
	r.ReadPoll = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver ignored cancellation")
	}
}
