package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/db"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/reply"
	"github.com/hearthlink/hearthlink/internal/world"
)

type fakeEngine struct {
	commands  *protocol.Registry[protocol.Command]
	replies   *protocol.Registry[protocol.Reply]
	connected bool
	sent      []protocol.Command
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	commands, err := command.NewRegistry()
	require.NoError(t, err)
	replies, err := reply.NewRegistry(&reply.Env{World: world.NewState()})
	require.NoError(t, err)
	return &fakeEngine{commands: commands, replies: replies, connected: true}
}

func (e *fakeEngine) Stats() network.Stats {
	return network.Stats{
		Connected:   e.connected,
		Remote:      "10.0.0.5:7171",
		ConnectedAt: time.Now().Add(-90 * time.Second),
		Outbound:    len(e.sent),
	}
}

func (e *fakeEngine) SendCommand(cmd protocol.Command) error {
	if !e.connected {
		return network.ErrNotConnected
	}
	e.sent = append(e.sent, cmd)
	return nil
}

func (e *fakeEngine) Commands() *protocol.Registry[protocol.Command] { return e.commands }
func (e *fakeEngine) Replies() *protocol.Registry[protocol.Reply]    { return e.replies }

type fakeJournal []db.Session

func (j fakeJournal) Recent(context.Context, int) ([]db.Session, error) { return j, nil }

func runConsole(t *testing.T, engine Engine, journal Journal, input string) (string, bool) {
	t.Helper()
	var out bytes.Buffer
	quit := false
	c := NewCLI(engine, journal, func() { quit = true }, strings.NewReader(input), &out)
	c.Start(context.Background())
	return out.String(), quit
}

func TestConsoleQueuesCommands(t *testing.T) {
	engine := newFakeEngine(t)

	out, quit := runConsole(t, engine, nil, "shout hello there\nrun sw\nturn e\nquit\n")
	assert.True(t, quit)
	assert.NotContains(t, out, "Error")

	require.Len(t, engine.sent, 3)

	talk := engine.sent[0].(*command.Talk)
	assert.Equal(t, protocol.CmdShout, talk.ID())
	assert.Equal(t, "hello there", talk.Text)

	move := engine.sent[1].(*command.Move)
	assert.Equal(t, command.SouthWest, move.Direction)
	assert.Equal(t, command.ModeRun, move.Mode)

	assert.Equal(t, command.East, engine.sent[2].(*command.Turn).Direction)
}

func TestConsoleErrors(t *testing.T) {
	engine := newFakeEngine(t)
	engine.connected = false

	out, _ := runConsole(t, engine, nil, "say\nmove up\nsay hi\nsessions\ndance\n")

	assert.Contains(t, out, "usage: say <text>")
	assert.Contains(t, out, `unknown direction "up"`)
	assert.Contains(t, out, network.ErrNotConnected.Error())
	assert.Contains(t, out, "journal is disabled")
	assert.Contains(t, out, "Unknown command: 'dance'")
	assert.Empty(t, engine.sent)
}

func TestConsoleTables(t *testing.T) {
	engine := newFakeEngine(t)
	started := time.Now().Add(-time.Hour)
	ended := started.Add(30 * time.Minute)
	journal := fakeJournal{
		{ID: 2, Remote: "srv:7171", StartedAt: started, EndedAt: &ended, Reason: "read: EOF", Lost: true},
	}

	out, _ := runConsole(t, engine, journal, "status\nids\nsessions\n")

	assert.Contains(t, out, "10.0.0.5:7171")
	assert.Contains(t, out, "0xF4")
	assert.Contains(t, out, "shout")
	assert.Contains(t, out, "30m0s")
	assert.Contains(t, out, "lost: read: EOF")
}

func TestRenderStatusDisconnected(t *testing.T) {
	var out bytes.Buffer
	RenderStatus(&out, network.Stats{}, time.Now())
	assert.Contains(t, out.String(), "false")
}

type fakeSettings struct {
	fields map[string]interface{}
	saved  int
}

func (s *fakeSettings) UpdateField(section, key string, value interface{}) error {
	if section != "network" {
		return errors.New("unknown config section")
	}
	s.fields[section+"."+key] = value
	return nil
}

func (s *fakeSettings) Save() error {
	s.saved++
	return nil
}

func TestConsoleSet(t *testing.T) {
	settings := &fakeSettings{fields: map[string]interface{}{}}

	var out bytes.Buffer
	c := NewCLI(newFakeEngine(t), nil, nil, strings.NewReader(
		"set network.read_poll_ms 250\nset network.console true\nset server.host x\nset nodot 1\n"), &out)
	c.SetSettings(settings)
	c.Start(context.Background())

	assert.Equal(t, 250, settings.fields["network.read_poll_ms"])
	assert.Equal(t, true, settings.fields["network.console"])
	assert.Equal(t, 2, settings.saved)
	assert.Contains(t, out.String(), "unknown config section")
	assert.Contains(t, out.String(), "want section.key")
}
