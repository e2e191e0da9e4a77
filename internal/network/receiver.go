package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

const (
	// DefaultPartialTimeout is how long an incomplete frame may sit in the
	// buffer before the buffer is discarded.
	DefaultPartialTimeout = 1000 * time.Millisecond
	// DefaultReadPoll bounds each socket read so cancellation and the
	// partial-frame timer are observed while the server is silent.
	DefaultReadPoll = 100 * time.Millisecond

	readChunkSize = 4096
)

// ErrWorkerPanic wraps a panic recovered in one of the connection workers.
var ErrWorkerPanic = errors.New("worker panicked")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Receiver reads frames from the server, decodes them into replies and
// queues them for the executor.
type Receiver struct {
	conn     io.Reader
	replies  *protocol.Registry[protocol.Reply]
	inbound  *Queue[protocol.Reply]
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	payloads protocol.Reader

	buf          []byte
	processed    int // len(buf) after the last process call
	pendingSince time.Time

	PartialTimeout time.Duration
	ReadPoll       time.Duration
}

// NewReceiver creates a receiver reading from conn. A nil m disables export
// of the receiver counters.
func NewReceiver(conn io.Reader, replies *protocol.Registry[protocol.Reply], inbound *Queue[protocol.Reply], m *metrics.Metrics) *Receiver {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Receiver{
		conn:           conn,
		replies:        replies,
		inbound:        inbound,
		metrics:        m,
		logger:         util.ComponentLogger("receiver"),
		buf:            make([]byte, 0, readChunkSize),
		PartialTimeout: DefaultPartialTimeout,
		ReadPoll:       DefaultReadPoll,
	}
}

// Buffered returns the number of bytes waiting to form a frame.
func (r *Receiver) Buffered() int {
	return len(r.buf)
}

// Run reads until ctx is done or the connection fails. It returns nil on
// cancellation and an error on any read failure, including EOF.
func (r *Receiver) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: receiver: %v", ErrWorkerPanic, p)
		}
	}()

	deadliner, canPoll := r.conn.(readDeadliner)
	chunk := make([]byte, readChunkSize)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if canPoll && r.ReadPoll > 0 {
			if err := deadliner.SetReadDeadline(time.Now().Add(r.ReadPoll)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to set read deadline: %w", err)
			}
		}

		n, readErr := r.conn.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			r.metrics.BytesReceived.Add(float64(n))
			r.logger.Trace().Int("bytes", n).Int("buffered", len(r.buf)).Msg("read")
		}

		if readErr != nil {
			if isTimeout(readErr) {
				r.process(time.Now())
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(readErr, io.EOF) {
				r.logger.Info().Msg("server closed connection")
			}
			return fmt.Errorf("failed to read from server: %w", readErr)
		}

		r.process(time.Now())
	}
}

// process consumes every complete frame in the buffer and applies the
// partial-frame timeout to whatever remains. The timer restarts whenever
// bytes arrive or a frame or byte is consumed.
func (r *Receiver) process(now time.Time) {
	off := 0
	progressed := len(r.buf) > r.processed

	for {
		rest := r.buf[off:]
		if len(rest) < 2 {
			break
		}

		if !protocol.ValidHead(rest[0], rest[1]) {
			r.logger.Warn().
				Uint8("id", rest[0]).
				Uint8("check", rest[1]).
				Msg("bad frame header, resynchronising")
			r.dropByte(metrics.ReasonHeader)
			off++
			progressed = true
			continue
		}

		if len(rest) < protocol.HeaderSize {
			break
		}
		header, err := protocol.ParseHeader(rest)
		if err != nil {
			// ValidHead passed and the buffer holds a full header.
			r.logger.Warn().Err(err).Msg("unparseable frame header, resynchronising")
			r.dropByte(metrics.ReasonHeader)
			off++
			progressed = true
			continue
		}

		total := protocol.HeaderSize + header.Length
		if len(rest) < total {
			break
		}

		payload := rest[protocol.HeaderSize:total]
		if sum := protocol.Checksum(payload); sum != header.Checksum {
			r.logger.Warn().
				Str("id", protocol.ReplyName(header.ID)).
				Uint16("expected", header.Checksum).
				Uint16("actual", sum).
				Msg("frame checksum mismatch, resynchronising")
			r.dropByte(metrics.ReasonChecksum)
			off++
			progressed = true
			continue
		}

		r.metrics.FramesReceived.Inc()
		r.dispatch(header, payload)
		off += total
		progressed = true
	}

	if off > 0 {
		n := copy(r.buf, r.buf[off:])
		r.buf = r.buf[:n]
	}

	switch {
	case len(r.buf) == 0:
		r.pendingSince = time.Time{}
	case progressed || r.pendingSince.IsZero():
		r.pendingSince = now
	case now.Sub(r.pendingSince) >= r.PartialTimeout:
		r.logger.Warn().
			Int("discarded", len(r.buf)).
			Dur("waited", now.Sub(r.pendingSince)).
			Msg("incomplete frame timed out, discarding buffer")
		r.metrics.Resyncs.WithLabelValues(metrics.ReasonTimeout).Inc()
		r.metrics.DiscardedBytes.Add(float64(len(r.buf)))
		r.buf = r.buf[:0]
		r.pendingSince = time.Time{}
	}
	r.processed = len(r.buf)
}

func (r *Receiver) dropByte(reason string) {
	r.metrics.Resyncs.WithLabelValues(reason).Inc()
	r.metrics.DiscardedBytes.Inc()
}

// dispatch decodes one checked frame and queues the reply. Unknown ids and
// undecodable payloads are logged and skipped.
func (r *Receiver) dispatch(header protocol.Header, payload []byte) {
	msg, err := r.replies.Get(header.ID)
	if err != nil {
		r.metrics.UnknownReplies.Inc()
		r.logger.Error().
			Str("id", protocol.ReplyName(header.ID)).
			Int("length", header.Length).
			Msg("unregistered reply id, frame skipped")
		return
	}

	r.payloads.Reset(payload)
	if err := msg.Decode(&r.payloads); err != nil {
		r.replies.Recycle(msg)
		r.metrics.DecodeErrors.Inc()
		r.logger.Error().
			Err(err).
			Str("id", protocol.ReplyName(header.ID)).
			Int("length", header.Length).
			Msg("failed to decode reply, frame skipped")
		return
	}

	r.logger.Trace().
		Str("id", protocol.ReplyName(header.ID)).
		Int("length", header.Length).
		Msg("reply received")
	r.inbound.Push(msg)
	r.metrics.InboundQueued.Set(float64(r.inbound.Len()))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
