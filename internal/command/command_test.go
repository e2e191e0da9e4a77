package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/protocol"
)

func frameOf(t *testing.T, cmd protocol.Command) []byte {
	t.Helper()
	w := protocol.NewWriter(32)
	require.NoError(t, protocol.AppendFrame(w, cmd))
	return append([]byte(nil), w.Bytes()...)
}

func TestRegistryIsSealedAndComplete(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.True(t, reg.Sealed())

	for _, id := range []int{
		protocol.CmdKeepAlive, protocol.CmdLogin, protocol.CmdLogoff,
		protocol.CmdSay, protocol.CmdShout, protocol.CmdWhisper,
		protocol.CmdMove, protocol.CmdTurn, protocol.CmdLookAtTile,
		protocol.CmdRequestAppearance, protocol.CmdMapDimension,
	} {
		assert.True(t, reg.Has(id), protocol.CommandName(id))
	}
}

func TestKeepAliveFrame(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	cmd, err := reg.Get(protocol.CmdKeepAlive)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD8, 0x27, 0x00, 0x00, 0x00, 0x00}, frameOf(t, cmd))
}

func TestTalkAliases(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	shout, err := Acquire[*Talk](reg, protocol.CmdShout)
	require.NoError(t, err)
	shout.Text = "hey"

	frame := frameOf(t, shout)
	assert.Equal(t, byte(protocol.CmdShout), frame[0])
	assert.Equal(t, byte(protocol.CmdShout^0xFF), frame[1])
	assert.Equal(t, []byte{0x00, 0x03, 'h', 'e', 'y'}, frame[protocol.HeaderSize:])

	reg.Recycle(shout)
	assert.Equal(t, "", shout.Text)

	whisper, err := Acquire[*Talk](reg, protocol.CmdWhisper)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdWhisper, whisper.ID())
}

func TestAcquireWrongType(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = Acquire[*Login](reg, protocol.CmdSay)
	require.Error(t, err)

	_, err = Acquire[*Login](reg, 0x01)
	require.ErrorIs(t, err, protocol.ErrUnregistered)
}

func TestLoginPayload(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	login, err := Acquire[*Login](reg, protocol.CmdLogin)
	require.NoError(t, err)
	login.Version = 122
	login.Name = "Ava"
	login.Password = "pw"

	frame := frameOf(t, login)
	payload := frame[protocol.HeaderSize:]
	assert.Equal(t, []byte{122, 0, 3, 'A', 'v', 'a', 0, 2, 'p', 'w'}, payload)

	h, err := protocol.ParseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, len(payload), h.Length)
	assert.Equal(t, protocol.Checksum(payload), h.Checksum)
}

func TestMoveValidatesDirection(t *testing.T) {
	move := &Move{Direction: NorthWest + 1}
	move.Activate(protocol.CmdMove)

	w := protocol.NewWriter(8)
	require.Error(t, protocol.AppendFrame(w, move))

	move.Direction = SouthWest
	move.Mode = ModeRun
	assert.Equal(t, []byte{5, 1}, frameOf(t, move)[protocol.HeaderSize:])
}

func TestLocationCommands(t *testing.T) {
	look := &LookAtTile{Location: protocol.Location{X: 1, Y: -1, Z: 2}}
	look.Activate(protocol.CmdLookAtTile)
	assert.Equal(t, []byte{0, 1, 0xFF, 0xFF, 0, 2}, frameOf(t, look)[protocol.HeaderSize:])

	req := &RequestAppearance{CharacterID: 0x01020304}
	req.Activate(protocol.CmdRequestAppearance)
	assert.Equal(t, []byte{1, 2, 3, 4}, frameOf(t, req)[protocol.HeaderSize:])

	dim := &MapDimension{Width: 17, Height: 13}
	dim.Activate(protocol.CmdMapDimension)
	assert.Equal(t, []byte{17, 13}, frameOf(t, dim)[protocol.HeaderSize:])
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("NE")
	require.NoError(t, err)
	assert.Equal(t, NorthEast, d)

	d, err = ParseDirection("w")
	require.NoError(t, err)
	assert.Equal(t, West, d)

	_, err = ParseDirection("up")
	assert.Error(t, err)
}

func TestTalkID(t *testing.T) {
	id, err := TalkID("")
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdSay, id)

	id, err = TalkID("Whisper")
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdWhisper, id)

	_, err = TalkID("yell")
	assert.Error(t, err)
}

func TestRecycledMoveWalks(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	run, err := Acquire[*Move](reg, protocol.CmdMove)
	require.NoError(t, err)
	run.Direction = SouthWest
	run.Mode = ModeRun
	assert.Equal(t, []byte{5, 1}, frameOf(t, run)[protocol.HeaderSize:])
	reg.Recycle(run)

	walk, err := Acquire[*Move](reg, protocol.CmdMove)
	require.NoError(t, err)
	assert.Equal(t, ModeWalk, walk.Mode)
	walk.Direction = East
	assert.Equal(t, []byte{2, 0}, frameOf(t, walk)[protocol.HeaderSize:])
}

func TestRecycleClearsFields(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	turn, err := Acquire[*Turn](reg, protocol.CmdTurn)
	require.NoError(t, err)
	turn.Direction = West
	reg.Recycle(turn)
	assert.Equal(t, North, turn.Direction)

	look, err := Acquire[*LookAtTile](reg, protocol.CmdLookAtTile)
	require.NoError(t, err)
	look.Location = protocol.Location{X: 4, Y: 5, Z: 6}
	reg.Recycle(look)
	assert.Equal(t, protocol.Location{}, look.Location)

	appearance, err := Acquire[*RequestAppearance](reg, protocol.CmdRequestAppearance)
	require.NoError(t, err)
	appearance.CharacterID = 9
	reg.Recycle(appearance)
	assert.Zero(t, appearance.CharacterID)

	dim, err := Acquire[*MapDimension](reg, protocol.CmdMapDimension)
	require.NoError(t, err)
	dim.Width, dim.Height = 17, 13
	reg.Recycle(dim)
	assert.Zero(t, dim.Width)
	assert.Zero(t, dim.Height)
}
