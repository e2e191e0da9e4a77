package network

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Sender takes commands off the outbound queue, frames them and writes them
// to the server.
type Sender struct {
	conn     io.Writer
	commands *protocol.Registry[protocol.Command]
	outbound *Queue[protocol.Command]
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	frame    *protocol.Writer

	WriteTimeout time.Duration
}

// NewSender creates a sender writing to conn. A nil m disables export of the
// sender counters.
func NewSender(conn io.Writer, commands *protocol.Registry[protocol.Command], outbound *Queue[protocol.Command], m *metrics.Metrics) *Sender {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Sender{
		conn:         conn,
		commands:     commands,
		outbound:     outbound,
		metrics:      m,
		logger:       util.ComponentLogger("sender"),
		frame:        protocol.NewWriter(256),
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Run sends queued commands until ctx is done or a write fails.
func (s *Sender) Run(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: sender: %v", ErrWorkerPanic, p)
		}
	}()

	for {
		cmd, popErr := s.outbound.Pop(ctx)
		if popErr != nil {
			return nil
		}
		s.metrics.OutboundQueued.Set(float64(s.outbound.Len()))

		if err := s.send(cmd); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// send frames cmd and writes it. Commands that cannot be framed are dropped;
// only write failures are returned.
func (s *Sender) send(cmd protocol.Command) error {
	id := cmd.ID()
	encodeErr := protocol.AppendFrame(s.frame, cmd)
	s.commands.Recycle(cmd)

	if encodeErr != nil {
		s.metrics.DroppedCommands.Inc()
		s.logger.Error().Err(encodeErr).Str("id", protocol.CommandName(id)).Msg("command dropped")
		return nil
	}

	if d, ok := s.conn.(writeDeadliner); ok && s.WriteTimeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	n, err := s.conn.Write(s.frame.Bytes())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", protocol.CommandName(id), err)
	}

	s.metrics.FramesSent.Inc()
	s.metrics.BytesSent.Add(float64(n))
	s.logger.Trace().Str("id", protocol.CommandName(id)).Int("bytes", n).Msg("command sent")
	return nil
}
