// Package events defines the events the protocol engine publishes to the
// rest of the client: connection lifecycle changes and the state changes
// applied by inbound replies.
package events

import (
	"time"

	"github.com/hearthlink/hearthlink/internal/protocol"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventConnected      EventType = "connected"
	EventDisconnected   EventType = "disconnected"
	EventConnectionLost EventType = "connection_lost" // fall back to login
	EventServerLogout   EventType = "server_logout"

	// State changes applied by replies
	EventPlayerID      EventType = "player_id"
	EventLocation      EventType = "location"
	EventChat          EventType = "chat"
	EventInform        EventType = "inform"
	EventServerTime    EventType = "server_time"
	EventCharacterMove EventType = "character_move"
	EventAppearance    EventType = "appearance"
	EventMapComplete   EventType = "map_complete"

	// Process
	EventShutdown EventType = "shutdown"
)

// Event is a single notification passed through the EventBus.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Payload interface{} `json:"payload,omitempty"`
}

// ChatMode tells how far a chat line carries.
type ChatMode int

const (
	ChatSay ChatMode = iota
	ChatShout
	ChatWhisper
)

var chatModeStrings = map[ChatMode]string{
	ChatSay:     "say",
	ChatShout:   "shout",
	ChatWhisper: "whisper",
}

// String returns the lowercase name of the mode.
func (m ChatMode) String() string {
	if s, ok := chatModeStrings[m]; ok {
		return s
	}
	return "unknown"
}

// MarshalJSON serializes ChatMode as a JSON string (e.g. "shout").
func (m ChatMode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// ConnectedPayload is sent with EventConnected.
type ConnectedPayload struct {
	Remote string    `json:"remote"`
	At     time.Time `json:"at"`
}

// DisconnectedPayload is sent with EventDisconnected and EventConnectionLost.
// Since is the connect time of the session that ended.
type DisconnectedPayload struct {
	Remote string    `json:"remote"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
	At     time.Time `json:"at"`
}

// LogoutPayload is sent with EventServerLogout.
type LogoutPayload struct {
	Reason byte `json:"reason"`
}

// PlayerIDPayload is sent with EventPlayerID.
type PlayerIDPayload struct {
	ID uint32 `json:"id"`
}

// LocationPayload is sent with EventLocation.
type LocationPayload struct {
	Location protocol.Location `json:"location"`
}

// ChatPayload is sent with EventChat.
type ChatPayload struct {
	Mode     ChatMode          `json:"mode"`
	Location protocol.Location `json:"location"`
	Text     string            `json:"text"`
}

// InformPayload is sent with EventInform.
type InformPayload struct {
	Kind uint8  `json:"kind"`
	Text string `json:"text"`
}

// ServerTimePayload is sent with EventServerTime.
type ServerTimePayload struct {
	Year   uint16 `json:"year"`
	Month  uint8  `json:"month"`
	Day    uint8  `json:"day"`
	Hour   uint8  `json:"hour"`
	Minute uint8  `json:"minute"`
}

// CharacterMovePayload is sent with EventCharacterMove.
type CharacterMovePayload struct {
	ID       uint32            `json:"id"`
	Location protocol.Location `json:"location"`
	Mode     uint8             `json:"mode"`
}

// AppearancePayload is sent with EventAppearance.
type AppearancePayload struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	HitPoints uint8  `json:"hit_points"`
}
