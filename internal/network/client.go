// Package network implements the client side of the game connection: the
// frame receiver, the frame sender, the reply executor and the connection
// manager that runs them.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("already connected")
)

// Options controls the connection and its workers.
type Options struct {
	Address           string
	ConnectTimeout    time.Duration
	ShutdownGrace     time.Duration
	KeepAliveDelay    time.Duration
	KeepAliveInterval time.Duration
	PartialTimeout    time.Duration
	ReadPoll          time.Duration
	WriteTimeout      time.Duration
	DelayedPoll       time.Duration
}

// DefaultOptions returns the stock timings for addr.
func DefaultOptions(addr string) Options {
	return Options{
		Address:           addr,
		ConnectTimeout:    5 * time.Second,
		ShutdownGrace:     2 * time.Second,
		KeepAliveDelay:    500 * time.Millisecond,
		KeepAliveInterval: 10 * time.Second,
		PartialTimeout:    DefaultPartialTimeout,
		ReadPoll:          DefaultReadPoll,
		WriteTimeout:      DefaultWriteTimeout,
		DelayedPoll:       DefaultDelayedPoll,
	}
}

// Stats is a snapshot of the connection.
type Stats struct {
	Connected   bool      `json:"connected"`
	Remote      string    `json:"remote,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	Outbound    int       `json:"outbound"`
	Inbound     int       `json:"inbound"`
	Delayed     int       `json:"delayed"`
}

// link is one live connection and the workers serving it.
type link struct {
	conn        net.Conn
	remote      string
	connectedAt time.Time
	executor    *Executor
	cancel      context.CancelFunc
	done        chan struct{}
	once        sync.Once
}

// Client owns the connection to the game server.
type Client struct {
	opts     Options
	commands *protocol.Registry[protocol.Command]
	replies  *protocol.Registry[protocol.Reply]
	bus      events.Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	outbound *Queue[protocol.Command]
	inbound  *Queue[protocol.Reply]

	dial func(ctx context.Context, network, addr string) (net.Conn, error)

	mu         sync.Mutex
	link       *link
	connecting bool
}

// NewClient creates an idle client. bus and m may be nil.
func NewClient(opts Options, commands *protocol.Registry[protocol.Command], replies *protocol.Registry[protocol.Reply], bus events.Publisher, m *metrics.Metrics) *Client {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	return &Client{
		dial:     dialer.DialContext,
		opts:     opts,
		commands: commands,
		replies:  replies,
		bus:      bus,
		metrics:  m,
		logger:   util.ComponentLogger("client"),
		outbound: NewQueue[protocol.Command](),
		inbound:  NewQueue[protocol.Reply](),
	}
}

// Connect dials the server and starts the receiver, sender, executor and
// keep-alive workers. On failure nothing is left running. The dial runs
// without the client lock, so SendCommand and Stats answer while it is in
// flight; a second Connect meanwhile gets ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.link != nil || c.connecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.connecting = true
	c.mu.Unlock()

	conn, err := c.dial(ctx, "tcp", c.opts.Address)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.opts.Address, err)
	}

	receiver := NewReceiver(conn, c.replies, c.inbound, c.metrics)
	receiver.PartialTimeout = c.opts.PartialTimeout
	receiver.ReadPoll = c.opts.ReadPoll

	sender := NewSender(conn, c.commands, c.outbound, c.metrics)
	sender.WriteTimeout = c.opts.WriteTimeout

	executor := NewExecutor(c.replies, c.inbound, c.metrics)
	executor.DelayedPoll = c.opts.DelayedPoll

	runCtx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:        conn,
		remote:      conn.RemoteAddr().String(),
		connectedAt: time.Now(),
		executor:    executor,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return receiver.Run(groupCtx) })
	group.Go(func() error { return sender.Run(groupCtx) })
	group.Go(func() error { return executor.Run(groupCtx) })
	group.Go(func() error { return c.keepAlive(groupCtx) })

	c.link = l
	go c.watch(l, group)

	c.metrics.Connects.Inc()
	c.logger.Info().Str("remote", l.remote).Msg("connected to server")
	c.emit(events.EventConnected, events.ConnectedPayload{Remote: l.remote, At: l.connectedAt})
	return nil
}

// watch waits for the workers of l. A worker failure tears the link down and
// reports the connection as lost.
func (c *Client) watch(l *link, group *errgroup.Group) {
	err := group.Wait()
	close(l.done)
	if err == nil {
		return
	}

	c.mu.Lock()
	owned := c.link == l
	if owned {
		c.link = nil
	}
	c.mu.Unlock()
	if !owned {
		return
	}

	c.metrics.ConnectionLosses.Inc()
	c.logger.Error().Err(err).Str("remote", l.remote).Msg("connection lost")
	c.emit(events.EventConnectionLost, events.DisconnectedPayload{
		Remote: l.remote,
		Reason: err.Error(),
		Since:  l.connectedAt,
		At:     time.Now(),
	})
	c.shutdown(l, err.Error())
}

// Disconnect stops the workers, waits up to the shutdown grace period,
// clears both queues and closes the socket.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	l := c.link
	c.link = nil
	c.mu.Unlock()

	if l == nil {
		return ErrNotConnected
	}
	c.shutdown(l, "client disconnect")
	return nil
}

func (c *Client) shutdown(l *link, reason string) {
	l.once.Do(func() {
		l.cancel()

		stopped := true
		select {
		case <-l.done:
		case <-time.After(c.opts.ShutdownGrace):
			stopped = false
			c.logger.Warn().Dur("grace", c.opts.ShutdownGrace).Msg("workers did not stop in time")
		}

		dropped := c.outbound.Clear() + c.inbound.Clear()
		if stopped {
			l.executor.Reset()
		}
		c.metrics.OutboundQueued.Set(0)
		c.metrics.InboundQueued.Set(0)

		if err := l.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn().Err(err).Msg("failed to close connection")
		}

		c.logger.Info().
			Str("remote", l.remote).
			Str("reason", reason).
			Int("dropped", dropped).
			Msg("disconnected from server")
		c.emit(events.EventDisconnected, events.DisconnectedPayload{
			Remote: l.remote,
			Reason: reason,
			Since:  l.connectedAt,
			At:     time.Now(),
		})
	})
}

// keepAlive queues a keep-alive command after KeepAliveDelay and then every
// KeepAliveInterval.
func (c *Client) keepAlive(ctx context.Context) error {
	timer := time.NewTimer(c.opts.KeepAliveDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		cmd, err := c.commands.Get(protocol.CmdKeepAlive)
		if err != nil {
			return fmt.Errorf("failed to create keep-alive: %w", err)
		}
		c.outbound.Push(cmd)
		c.logger.Trace().Msg("keep-alive queued")

		timer.Reset(c.opts.KeepAliveInterval)
	}
}

// NewCommand returns a pooled command for id.
func (c *Client) NewCommand(id int) (protocol.Command, error) {
	return c.commands.Get(id)
}

// SendCommand queues cmd for the sender. It never blocks. The sender
// recycles cmd once it has been framed; on error cmd stays with the caller.
func (c *Client) SendCommand(cmd protocol.Command) error {
	c.mu.Lock()
	connected := c.link != nil
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	c.outbound.Push(cmd)
	c.metrics.OutboundQueued.Set(float64(c.outbound.Len()))
	return nil
}

// IsConnected reports whether a connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Stats returns a snapshot of the connection.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()

	s := Stats{
		Outbound: c.outbound.Len(),
		Inbound:  c.inbound.Len(),
	}
	if l != nil {
		s.Connected = true
		s.Remote = l.remote
		s.ConnectedAt = l.connectedAt
		s.Delayed = l.executor.Delayed()
	}
	return s
}

// Commands returns the command registry.
func (c *Client) Commands() *protocol.Registry[protocol.Command] {
	return c.commands
}

// Replies returns the reply registry.
func (c *Client) Replies() *protocol.Registry[protocol.Reply] {
	return c.replies
}

func (c *Client) emit(eventType events.EventType, payload interface{}) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(context.Background(), events.Event{
		Type:    eventType,
		Source:  "client",
		Payload: payload,
	})
}
