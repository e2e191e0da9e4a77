package reply

import (
	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

// PlayerID carries the id of the character the client controls.
// Format: [id:4]
type PlayerID struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	CharacterID uint32
}

// Decode reads the character id.
func (m *PlayerID) Decode(r *protocol.Reader) error {
	m.CharacterID = r.ReadUint32()
	return r.Err()
}

// Execute stores the id in the world.
func (m *PlayerID) Execute() bool {
	m.env.World.SetPlayerID(m.CharacterID)
	m.env.emit(events.EventPlayerID, events.PlayerIDPayload{ID: m.CharacterID})
	return true
}

// Location places the player.
// Format: [x:2][y:2][z:2]
type Location struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Location protocol.Location
}

// Decode reads the position.
func (m *Location) Decode(r *protocol.Reader) error {
	m.Location = r.ReadLocation()
	return r.Err()
}

// Execute moves the player, which invalidates the map.
func (m *Location) Execute() bool {
	m.env.World.SetPlayerLocation(m.Location)
	m.env.emit(events.EventLocation, events.LocationPayload{Location: m.Location})
	return true
}

// Talk is a chat line heard by the player. The same type decodes say,
// shout and whisper; only the presentation differs.
// Format: [x:2][y:2][z:2][text:str]
type Talk struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Location protocol.Location
	Text     string
}

// Decode reads the speaker position and the text.
func (m *Talk) Decode(r *protocol.Reader) error {
	m.Location = r.ReadLocation()
	m.Text = r.ReadString()
	return r.Err()
}

// Mode maps the activated id to the chat range.
func (m *Talk) Mode() events.ChatMode {
	switch m.ID() {
	case protocol.MsgShout:
		return events.ChatShout
	case protocol.MsgWhisper:
		return events.ChatWhisper
	default:
		return events.ChatSay
	}
}

// Execute publishes the line as a chat event.
func (m *Talk) Execute() bool {
	m.env.emit(events.EventChat, events.ChatPayload{
		Mode:     m.Mode(),
		Location: m.Location,
		Text:     m.Text,
	})
	return true
}

// Reset clears the decoded fields.
func (m *Talk) Reset() {
	m.Text = ""
}

// Inform is a server notice.
// Format: [kind:1][text:str]
type Inform struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Kind uint8
	Text string
}

// Decode reads the notice kind and text.
func (m *Inform) Decode(r *protocol.Reader) error {
	m.Kind = r.ReadUint8()
	m.Text = r.ReadString()
	return r.Err()
}

// Execute publishes the notice.
func (m *Inform) Execute() bool {
	m.env.emit(events.EventInform, events.InformPayload{Kind: m.Kind, Text: m.Text})
	return true
}

// Reset clears the decoded fields.
func (m *Inform) Reset() {
	m.Text = ""
}

// ServerTime is the in-game clock.
// Format: [hour:1][minute:1][day:1][month:1][year:2]
type ServerTime struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Hour, Minute, Day, Month uint8
	Year                     uint16
}

// Decode reads the clock fields.
func (m *ServerTime) Decode(r *protocol.Reader) error {
	m.Hour = r.ReadUint8()
	m.Minute = r.ReadUint8()
	m.Day = r.ReadUint8()
	m.Month = r.ReadUint8()
	m.Year = r.ReadUint16()
	return r.Err()
}

// Execute publishes the clock.
func (m *ServerTime) Execute() bool {
	m.env.emit(events.EventServerTime, events.ServerTimePayload{
		Year:   m.Year,
		Month:  m.Month,
		Day:    m.Day,
		Hour:   m.Hour,
		Minute: m.Minute,
	})
	return true
}

// CharMove reports a character appearing at or moving to a location.
// Format: [id:4][x:2][y:2][z:2][mode:1]
type CharMove struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	CharacterID uint32
	Location    protocol.Location
	Mode        uint8
}

// Decode reads the character, its position and the move mode.
func (m *CharMove) Decode(r *protocol.Reader) error {
	m.CharacterID = r.ReadUint32()
	m.Location = r.ReadLocation()
	m.Mode = r.ReadUint8()
	return r.Err()
}

// Execute records the character position.
func (m *CharMove) Execute() bool {
	m.env.World.MoveCharacter(m.CharacterID, m.Location)
	m.env.emit(events.EventCharacterMove, events.CharacterMovePayload{
		ID:       m.CharacterID,
		Location: m.Location,
		Mode:     m.Mode,
	})
	return true
}

// Appearance describes a character. It can arrive before the character
// itself; until then it waits in the delayed queue.
// Format: [id:4][name:str][hit points:1]
type Appearance struct {
	protocol.Base
	env *Env

	CharacterID uint32
	Name        string
	HitPoints   uint8
}

// Decode reads the id, name and hit points.
func (m *Appearance) Decode(r *protocol.Reader) error {
	m.CharacterID = r.ReadUint32()
	m.Name = r.ReadString()
	m.HitPoints = r.ReadUint8()
	return r.Err()
}

// Ready reports whether the described character is known.
func (m *Appearance) Ready() bool {
	return m.env.World.HasCharacter(m.CharacterID)
}

// Execute publishes the appearance once Ready holds.
func (m *Appearance) Execute() bool {
	m.env.emit(events.EventAppearance, events.AppearancePayload{
		ID:        m.CharacterID,
		Name:      m.Name,
		HitPoints: m.HitPoints,
	})
	return true
}

// Reset clears the decoded fields.
func (m *Appearance) Reset() {
	m.Name = ""
}

// stripeSteps is the tile offset per direction, north = 0, clockwise.
var stripeSteps = [8][2]int16{
	{0, -1}, {1, -1}, {1, 0}, {1, 1},
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// MapStripe is a row of tiles starting at Start and running in Direction.
// Large stripes are applied over several updates.
// Format: [x:2][y:2][z:2][direction:1][count:1][tile:2]*count
type MapStripe struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Start     protocol.Location
	Direction uint8
	Tiles     []uint16

	applied int
}

// Decode reads the start, direction and tiles.
func (m *MapStripe) Decode(r *protocol.Reader) error {
	m.Start = r.ReadLocation()
	m.Direction = r.ReadUint8() % 8
	count := int(r.ReadUint8())

	m.Tiles = m.Tiles[:0]
	for i := 0; i < count && r.Err() == nil; i++ {
		m.Tiles = append(m.Tiles, r.ReadUint16())
	}
	m.applied = 0
	return r.Err()
}

// TileLocation returns the location of the i-th tile of the stripe.
func (m *MapStripe) TileLocation(i int) protocol.Location {
	step := stripeSteps[m.Direction%8]
	return protocol.Location{
		X: m.Start.X + step[0]*int16(i),
		Y: m.Start.Y + step[1]*int16(i),
		Z: m.Start.Z,
	}
}

// Execute applies the next batch of tiles and reports whether the stripe
// is done.
func (m *MapStripe) Execute() bool {
	end := m.applied + m.env.StripeBatch
	if end > len(m.Tiles) {
		end = len(m.Tiles)
	}
	for i := m.applied; i < end; i++ {
		m.env.World.SetTile(m.TileLocation(i), m.Tiles[i])
	}
	m.applied = end
	return m.applied == len(m.Tiles)
}

// Reset forgets the tiles and the progress.
func (m *MapStripe) Reset() {
	m.Tiles = m.Tiles[:0]
	m.applied = 0
}

// MapComplete marks the end of a map transfer. Empty payload.
type MapComplete struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env
}

// Decode reads nothing.
func (m *MapComplete) Decode(*protocol.Reader) error {
	return nil
}

// Execute marks the map complete.
func (m *MapComplete) Execute() bool {
	m.env.World.MarkMapComplete()
	m.env.emit(events.EventMapComplete, nil)
	return true
}

// Disconnect is sent before the server drops the session.
// Format: [reason:1]
type Disconnect struct {
	protocol.Base
	protocol.AlwaysReady
	env *Env

	Reason uint8
}

// Decode reads the reason code.
func (m *Disconnect) Decode(r *protocol.Reader) error {
	m.Reason = r.ReadUint8()
	return r.Err()
}

// Execute reports the server logout.
func (m *Disconnect) Execute() bool {
	m.env.emit(events.EventServerLogout, events.LogoutPayload{Reason: m.Reason})
	return true
}
