package network

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/metrics"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func newTestSender(t *testing.T, w io.Writer) (*Sender, *command.Registry, *Queue[protocol.Command], *metrics.Metrics) {
	t.Helper()
	commands, err := command.NewRegistry()
	require.NoError(t, err)

	outbound := NewQueue[protocol.Command]()
	m := metrics.NewUnregistered()
	return NewSender(w, commands, outbound, m), commands, outbound, m
}

func TestSenderWritesFramesInOrder(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s, commands, outbound, m := newTestSender(t, client)

	keepAlive, err := commands.Get(protocol.CmdKeepAlive)
	require.NoError(t, err)
	say, err := command.Acquire[*command.Talk](commands, protocol.CmdSay)
	require.NoError(t, err)
	say.Text = "hi"
	outbound.Push(keepAlive, say)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	buf := make([]byte, 6)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD8, 0x27, 0x00, 0x00, 0x00, 0x00}, buf)

	sayFrame := make([]byte, protocol.HeaderSize+4)
	_, err = io.ReadFull(server, sayFrame)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.CmdSay), sayFrame[0])
	assert.Equal(t, []byte{0x00, 0x02, 'h', 'i'}, sayFrame[protocol.HeaderSize:])

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not stop")
	}
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesSent))
}

func TestSenderDropsOversizedCommand(t *testing.T) {
	s, commands, _, m := newTestSender(t, failingWriter{})

	login, err := command.Acquire[*command.Login](commands, protocol.CmdLogin)
	require.NoError(t, err)
	login.Name = strings.Repeat("n", protocol.MaxStringLength)
	login.Password = "secret"

	require.NoError(t, s.send(login))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DroppedCommands))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FramesSent))
}

func TestSenderWriteErrorIsFatal(t *testing.T) {
	s, commands, outbound, _ := newTestSender(t, failingWriter{})

	cmd, err := commands.Get(protocol.CmdKeepAlive)
	require.NoError(t, err)
	outbound.Push(cmd)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}
