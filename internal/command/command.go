// Package command contains the commands the client sends to the server.
package command

import (
	"fmt"
	"strings"

	"github.com/hearthlink/hearthlink/internal/protocol"
)

// Registry is the command registry type.
type Registry = protocol.Registry[protocol.Command]

// NewRegistry registers every command type and seals the registry.
func NewRegistry() (*Registry, error) {
	reg := protocol.NewRegistry[protocol.Command]("commands")

	register := []struct {
		id    int
		newFn func() protocol.Command
	}{
		{protocol.CmdKeepAlive, func() protocol.Command { return &KeepAlive{} }},
		{protocol.CmdLogin, func() protocol.Command { return &Login{} }},
		{protocol.CmdLogoff, func() protocol.Command { return &Logoff{} }},
		{protocol.CmdSay, func() protocol.Command { return &Talk{} }},
		{protocol.CmdMove, func() protocol.Command { return &Move{} }},
		{protocol.CmdTurn, func() protocol.Command { return &Turn{} }},
		{protocol.CmdLookAtTile, func() protocol.Command { return &LookAtTile{} }},
		{protocol.CmdRequestAppearance, func() protocol.Command { return &RequestAppearance{} }},
		{protocol.CmdMapDimension, func() protocol.Command { return &MapDimension{} }},
	}
	for _, r := range register {
		if err := reg.Register(r.id, r.newFn); err != nil {
			return nil, err
		}
	}

	if err := reg.Map(protocol.CmdShout, protocol.CmdSay); err != nil {
		return nil, err
	}
	if err := reg.Map(protocol.CmdWhisper, protocol.CmdSay); err != nil {
		return nil, err
	}

	if err := reg.Finish(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Acquire fetches the command for id and asserts its concrete type.
func Acquire[C protocol.Command](reg *Registry, id int) (C, error) {
	var zero C

	cmd, err := reg.Get(id)
	if err != nil {
		return zero, err
	}
	typed, ok := cmd.(C)
	if !ok {
		reg.Recycle(cmd)
		return zero, fmt.Errorf("command %s is %T, not %T", protocol.CommandName(id), cmd, zero)
	}
	return typed, nil
}

// KeepAlive tells the server the client is still there. Empty payload.
type KeepAlive struct {
	protocol.Base
}

// Encode writes nothing.
func (c *KeepAlive) Encode(*protocol.Writer) error {
	return nil
}

// Login authenticates a character.
// Format: [version:1][name:str][password:str]
type Login struct {
	protocol.Base
	Version  int
	Name     string
	Password string
}

// Encode writes the version and credentials.
func (c *Login) Encode(w *protocol.Writer) error {
	w.WriteUint8(c.Version)
	w.WriteString(c.Name)
	w.WriteString(c.Password)
	return nil
}

// Reset drops the credentials so pooled instances do not keep them.
func (c *Login) Reset() {
	c.Version = 0
	c.Name = ""
	c.Password = ""
}

// Logoff leaves the game. Empty payload.
type Logoff struct {
	protocol.Base
}

// Encode writes nothing.
func (c *Logoff) Encode(*protocol.Writer) error {
	return nil
}

// Talk sends a chat line. It serves say, shout and whisper; the activated id
// decides the range.
// Format: [text:str]
type Talk struct {
	protocol.Base
	Text string
}

// Encode writes the chat line.
func (c *Talk) Encode(w *protocol.Writer) error {
	w.WriteString(c.Text)
	return nil
}

// Reset clears the text.
func (c *Talk) Reset() {
	c.Text = ""
}

var talkIDs = map[string]int{
	"say":     protocol.CmdSay,
	"shout":   protocol.CmdShout,
	"whisper": protocol.CmdWhisper,
}

// TalkID returns the command id for a chat range name. An empty name is say.
func TalkID(mode string) (int, error) {
	if mode == "" {
		return protocol.CmdSay, nil
	}
	id, ok := talkIDs[strings.ToLower(mode)]
	if !ok {
		return 0, fmt.Errorf("unknown chat mode %q, want say, shout or whisper", mode)
	}
	return id, nil
}

// Direction is one of the eight compass directions, north = 0, clockwise.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = map[string]Direction{
	"n": North, "ne": NorthEast, "e": East, "se": SouthEast,
	"s": South, "sw": SouthWest, "w": West, "nw": NorthWest,
}

// ParseDirection reads a compass abbreviation such as "ne".
func ParseDirection(s string) (Direction, error) {
	d, ok := directionNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// MoveMode selects walking or running.
type MoveMode int

const (
	ModeWalk MoveMode = iota
	ModeRun
)

// Move walks or runs one step.
// Format: [direction:1][mode:1]
type Move struct {
	protocol.Base
	Direction Direction
	Mode      MoveMode
}

// Encode writes the direction and mode. Directions outside the compass fail.
func (c *Move) Encode(w *protocol.Writer) error {
	if c.Direction < North || c.Direction > NorthWest {
		return fmt.Errorf("invalid direction %d", c.Direction)
	}
	w.WriteUint8(int(c.Direction))
	w.WriteUint8(int(c.Mode))
	return nil
}

// Reset restores a northward walk.
func (c *Move) Reset() {
	c.Direction = North
	c.Mode = ModeWalk
}

// Turn faces a direction without moving.
// Format: [direction:1]
type Turn struct {
	protocol.Base
	Direction Direction
}

// Encode writes the direction.
func (c *Turn) Encode(w *protocol.Writer) error {
	if c.Direction < North || c.Direction > NorthWest {
		return fmt.Errorf("invalid direction %d", c.Direction)
	}
	w.WriteUint8(int(c.Direction))
	return nil
}

// Reset faces north.
func (c *Turn) Reset() {
	c.Direction = North
}

// LookAtTile asks for the description of a tile.
// Format: [x:2][y:2][z:2]
type LookAtTile struct {
	protocol.Base
	Location protocol.Location
}

// Encode writes the tile position.
func (c *LookAtTile) Encode(w *protocol.Writer) error {
	w.WriteLocation(c.Location)
	return nil
}

func (c *LookAtTile) Reset() {
	c.Location = protocol.Location{}
}

// RequestAppearance asks for the appearance of a character.
// Format: [id:4]
type RequestAppearance struct {
	protocol.Base
	CharacterID uint32
}

// Encode writes the character id.
func (c *RequestAppearance) Encode(w *protocol.Writer) error {
	w.WriteUint32(int64(c.CharacterID))
	return nil
}

func (c *RequestAppearance) Reset() {
	c.CharacterID = 0
}

// MapDimension tells the server how many tiles the client displays.
// Format: [width:1][height:1]
type MapDimension struct {
	protocol.Base
	Width  int
	Height int
}

// Encode writes the window size in tiles.
func (c *MapDimension) Encode(w *protocol.Writer) error {
	w.WriteUint8(c.Width)
	w.WriteUint8(c.Height)
	return nil
}

func (c *MapDimension) Reset() {
	c.Width = 0
	c.Height = 0
}
