// Package protocol implements the binary wire format spoken between the game
// client and the game server. Every frame starts with a self-checking header
// followed by a payload guarded by an additive checksum. All integers are
// big-endian and strings use a 2-byte length prefix with ISO-8859-1 bytes.
package protocol

import "fmt"

// Frame header layout.
//
//	offset 0: id           (1 byte)
//	offset 1: id ^ 0xFF    (1 byte)
//	offset 2: length       (2 bytes, payload byte count)
//	offset 4: checksum     (2 bytes)
//	offset 6: payload
const (
	HeaderSize  = 6
	LengthPos   = 2
	ChecksumPos = 4

	// CheckMask is XORed with the id to produce the second header byte.
	CheckMask byte = 0xFF

	// MaxPayload is the largest payload the 2-byte length field can describe.
	MaxPayload = 65535
)

// Command identifiers (client -> server).
const (
	CmdLogin             = 0x0D // Login with version, name and password
	CmdLogoff            = 0x0E // Leave the game
	CmdRequestAppearance = 0x0F // Ask for the appearance of a character
	CmdMove              = 0x10 // Walk or run one step
	CmdTurn              = 0x11 // Turn in place
	CmdLookAtTile        = 0x18 // Look at a map tile
	CmdMapDimension      = 0xA0 // Visible map window size
	CmdKeepAlive         = 0xD8 // Heartbeat, empty payload
	CmdWhisper           = 0xF3 // Talk, whisper range
	CmdShout             = 0xF4 // Talk, shout range
	CmdSay               = 0xF5 // Talk, normal range
)

// Reply identifiers (server -> client).
const (
	MsgMapStripe   = 0xA1 // Row of map tiles
	MsgMapComplete = 0xA2 // All map stripes were sent
	MsgServerTime  = 0xB8 // In-game date and time
	MsgLocation    = 0xBD // Player location
	MsgPlayerID    = 0xCA // Id of the controlled character
	MsgDisconnect  = 0xCC // Server closes the session
	MsgInform      = 0xD4 // Server information text
	MsgWhisper     = 0xD5 // Chat, whisper range
	MsgShout       = 0xD6 // Chat, shout range
	MsgSay         = 0xD7 // Chat, normal range
	MsgCharMove    = 0xDF // Character appeared or moved
	MsgAppearance  = 0xE8 // Character appearance
)

var commandNames = map[int]string{
	CmdLogin:             "login",
	CmdLogoff:            "logoff",
	CmdRequestAppearance: "request_appearance",
	CmdMove:              "move",
	CmdTurn:              "turn",
	CmdLookAtTile:        "look_at_tile",
	CmdMapDimension:      "map_dimension",
	CmdKeepAlive:         "keep_alive",
	CmdWhisper:           "whisper",
	CmdShout:             "shout",
	CmdSay:               "say",
}

var replyNames = map[int]string{
	MsgMapStripe:   "map_stripe",
	MsgMapComplete: "map_complete",
	MsgServerTime:  "server_time",
	MsgLocation:    "location",
	MsgPlayerID:    "player_id",
	MsgDisconnect:  "disconnect",
	MsgInform:      "inform",
	MsgWhisper:     "whisper",
	MsgShout:       "shout",
	MsgSay:         "say",
	MsgCharMove:    "char_move",
	MsgAppearance:  "appearance",
}

// CommandName returns a readable name for a command id.
func CommandName(id int) string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return fmt.Sprintf("cmd_0x%02X", id)
}

// ReplyName returns a readable name for a reply id.
func ReplyName(id int) string {
	if name, ok := replyNames[id]; ok {
		return name
	}
	return fmt.Sprintf("msg_0x%02X", id)
}

// Location is a position in the game world.
type Location struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// String formats the location as "(x, y, z)".
func (l Location) String() string {
	return fmt.Sprintf("(%d, %d, %d)", l.X, l.Y, l.Z)
}
