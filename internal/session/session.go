// Package session keeps the character logged in: it connects, sends the
// login, and reconnects whenever the server drops the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/util"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultLogoffGrace    = time.Second

	flushPoll = 20 * time.Millisecond
)

// Engine is the connection the session drives. *network.Client implements it.
type Engine interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendCommand(cmd protocol.Command) error
	Commands() *protocol.Registry[protocol.Command]
	Stats() network.Stats
}

// Session runs the login loop for one account.
type Session struct {
	engine  Engine
	bus     *events.EventBus
	account config.AccountConfig
	logger  zerolog.Logger

	// ReconnectDelay is the pause between attempts.
	ReconnectDelay time.Duration
	// LogoffGrace bounds how long Run waits for the logoff to be written.
	LogoffGrace time.Duration

	ended chan events.Event
}

// New creates a session for account on engine. bus must be the bus engine
// publishes to.
func New(engine Engine, bus *events.EventBus, account config.AccountConfig) *Session {
	return &Session{
		engine:         engine,
		bus:            bus,
		account:        account,
		logger:         util.ComponentLogger("session"),
		ReconnectDelay: DefaultReconnectDelay,
		LogoffGrace:    DefaultLogoffGrace,
		ended:          make(chan events.Event, 4),
	}
}

// Run connects and logs in, then waits until the session ends and starts
// over after ReconnectDelay. When ctx is done it logs off, disconnects and
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.bus.Subscribe(events.EventConnectionLost, "session", s.onEnded)
	s.bus.Subscribe(events.EventServerLogout, "session", s.onEnded)
	defer func() {
		s.bus.Unsubscribe(events.EventConnectionLost, "session")
		s.bus.Unsubscribe(events.EventServerLogout, "session")
	}()

	s.logger.Info().Str("account", s.account.Name).Msg("starting session manager")

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.drain()

		if err := s.engine.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Msg("connect failed")
			if !s.pause(ctx) {
				return nil
			}
			continue
		}
		connectedAt := s.engine.Stats().ConnectedAt

		if err := s.login(); err != nil {
			s.logger.Error().Err(err).Msg("login failed")
			s.disconnect()
			if !s.pause(ctx) {
				return nil
			}
			continue
		}

		reason, done := s.wait(ctx, connectedAt)
		if done {
			s.logoff()
			s.disconnect()
			return nil
		}

		s.logger.Warn().Str("reason", reason).Msg("session ended, reconnecting")
		s.disconnect()
		if !s.pause(ctx) {
			return nil
		}
	}
}

func (s *Session) onEnded(_ context.Context, event events.Event) error {
	select {
	case s.ended <- event:
	default:
	}
	return nil
}

// wait blocks until the session that started at connectedAt ends or ctx is
// done. Reports of earlier sessions are skipped. A zero connectedAt means
// the link was already gone when Run looked, so any report ends it.
func (s *Session) wait(ctx context.Context, connectedAt time.Time) (string, bool) {
	for {
		select {
		case <-ctx.Done():
			return "", true
		case event := <-s.ended:
			switch p := event.Payload.(type) {
			case events.DisconnectedPayload:
				if !connectedAt.IsZero() && !p.Since.Equal(connectedAt) {
					continue
				}
				return p.Reason, false
			case events.LogoutPayload:
				return fmt.Sprintf("server logout (reason %d)", p.Reason), false
			default:
				return string(event.Type), false
			}
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case <-s.ended:
		default:
			return
		}
	}
}

func (s *Session) login() error {
	cmd, err := command.Acquire[*command.Login](s.engine.Commands(), protocol.CmdLogin)
	if err != nil {
		return err
	}
	cmd.Version = s.account.ClientVersion
	cmd.Name = s.account.Name
	cmd.Password = s.account.Password

	if err := s.engine.SendCommand(cmd); err != nil {
		s.engine.Commands().Recycle(cmd)
		return fmt.Errorf("failed to queue login: %w", err)
	}
	s.logger.Info().Str("account", s.account.Name).Msg("login sent")
	return nil
}

// logoff queues a Logoff and waits up to LogoffGrace for the outbound queue
// to drain.
func (s *Session) logoff() {
	cmd, err := s.engine.Commands().Get(protocol.CmdLogoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create logoff")
		return
	}
	if err := s.engine.SendCommand(cmd); err != nil {
		s.engine.Commands().Recycle(cmd)
		return
	}

	deadline := time.Now().Add(s.LogoffGrace)
	for s.engine.Stats().Outbound > 0 && time.Now().Before(deadline) {
		time.Sleep(flushPoll)
	}
	// The sender pops before it writes.
	time.Sleep(flushPoll)
}

func (s *Session) disconnect() {
	if err := s.engine.Disconnect(); err != nil && !errors.Is(err, network.ErrNotConnected) {
		s.logger.Warn().Err(err).Msg("disconnect failed")
	}
}

func (s *Session) pause(ctx context.Context) bool {
	timer := time.NewTimer(s.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
