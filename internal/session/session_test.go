package session

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/config"
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/reply"
	"github.com/hearthlink/hearthlink/internal/world"
)

type frame struct {
	id      int
	payload []byte
}

// readFrame reads the next frame that is not a keep-alive.
func readFrame(t *testing.T, conn net.Conn) (frame, error) {
	t.Helper()
	for {
		if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
			return frame{}, err
		}
		head := make([]byte, protocol.HeaderSize)
		if _, err := io.ReadFull(conn, head); err != nil {
			return frame{}, err
		}
		h, err := protocol.ParseHeader(head)
		if err != nil {
			return frame{}, err
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return frame{}, err
		}
		if h.ID == protocol.CmdKeepAlive {
			continue
		}
		return frame{id: h.ID, payload: payload}, nil
	}
}

type sessionFixture struct {
	session  *Session
	listener net.Listener
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	bus := events.NewEventBus()
	commands, err := command.NewRegistry()
	require.NoError(t, err)
	replies, err := reply.NewRegistry(&reply.Env{World: world.NewState(), Events: bus})
	require.NoError(t, err)

	opts := network.DefaultOptions(ln.Addr().String())
	opts.ReadPoll = 10 * time.Millisecond
	opts.ShutdownGrace = time.Second
	client := network.NewClient(opts, commands, replies, bus, nil)

	s := New(client, bus, config.AccountConfig{Name: "Rowan", Password: "secret", ClientVersion: 3})
	s.ReconnectDelay = 20 * time.Millisecond

	return &sessionFixture{session: s, listener: ln}
}

func (f *sessionFixture) accept(t *testing.T) net.Conn {
	t.Helper()
	require.NoError(t, f.listener.(*net.TCPListener).SetDeadline(time.Now().Add(3*time.Second)))
	conn, err := f.listener.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func loginPayload(version byte, name, password string) []byte {
	w := protocol.NewWriter(64)
	w.WriteUint8(int(version))
	w.WriteString(name)
	w.WriteString(password)
	return w.Bytes()
}

func TestSessionLogsInAndLogsOff(t *testing.T) {
	f := newSessionFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	server := f.accept(t)

	login, err := readFrame(t, server)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdLogin, login.id)
	assert.Equal(t, loginPayload(3, "Rowan", "secret"), login.payload)

	cancel()

	logoff, err := readFrame(t, server)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdLogoff, logoff.id)
	assert.Empty(t, logoff.payload)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSessionReconnectsAfterConnectionLoss(t *testing.T) {
	f := newSessionFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.session.Run(ctx) }()

	first := f.accept(t)
	login, err := readFrame(t, first)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdLogin, login.id)

	require.NoError(t, first.Close())

	second := f.accept(t)
	login, err = readFrame(t, second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdLogin, login.id)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSessionReconnectsAfterServerLogout(t *testing.T) {
	f := newSessionFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.session.Run(ctx)

	first := f.accept(t)
	_, err := readFrame(t, first)
	require.NoError(t, err)

	// Disconnect reply, reason 1.
	payload := []byte{0x01}
	head := []byte{protocol.MsgDisconnect, protocol.MsgDisconnect ^ 0xFF, 0x00, 0x01, 0x00, 0x01}
	_, err = first.Write(append(head, payload...))
	require.NoError(t, err)

	second := f.accept(t)
	login, err := readFrame(t, second)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdLogin, login.id)
}

func TestSessionRetriesFailedConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	bus := events.NewEventBus()
	commands, err := command.NewRegistry()
	require.NoError(t, err)
	replies, err := reply.NewRegistry(&reply.Env{World: world.NewState(), Events: bus})
	require.NoError(t, err)

	client := network.NewClient(network.DefaultOptions(addr), commands, replies, bus, nil)
	s := New(client, bus, config.AccountConfig{Name: "Rowan"})
	s.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, s.Run(ctx))
	assert.False(t, client.IsConnected())
}
