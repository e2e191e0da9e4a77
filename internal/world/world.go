// Package world holds the client-side view of the game world that inbound
// replies update. Rendering and movement code read it; the protocol engine
// only writes through the Model interface.
package world

import (
	"sync"

	"github.com/hearthlink/hearthlink/internal/protocol"
)

// Model is the part of the world the reply handlers touch.
type Model interface {
	SetPlayerID(id uint32)
	PlayerID() uint32
	SetPlayerLocation(loc protocol.Location)
	PlayerLocation() protocol.Location

	MoveCharacter(id uint32, loc protocol.Location)
	HasCharacter(id uint32) bool
	CharacterLocation(id uint32) (protocol.Location, bool)

	SetTile(loc protocol.Location, tileID uint16)
	Tile(loc protocol.Location) (uint16, bool)
	IsBlocked(loc protocol.Location) bool
	MarkMapComplete()
	MapComplete() bool
}

// BlockingTile is the tile id the server uses for impassable ground.
const BlockingTile uint16 = 0

// State is an in-memory Model safe for concurrent use.
type State struct {
	mu sync.RWMutex

	playerID  uint32
	playerLoc protocol.Location

	characters  map[uint32]protocol.Location
	tiles       map[protocol.Location]uint16
	mapComplete bool
}

// NewState creates an empty world.
func NewState() *State {
	return &State{
		characters: make(map[uint32]protocol.Location),
		tiles:      make(map[protocol.Location]uint16),
	}
}

// SetPlayerID records the id of the controlled character.
func (s *State) SetPlayerID(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = id
}

// PlayerID returns the controlled character, 0 before login.
func (s *State) PlayerID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

// SetPlayerLocation moves the player. A new location invalidates the map
// until the server sends it again.
func (s *State) SetPlayerLocation(loc protocol.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerLoc = loc
	if s.playerID != 0 {
		s.characters[s.playerID] = loc
	}
	s.mapComplete = false
}

// PlayerLocation returns the last location the server sent.
func (s *State) PlayerLocation() protocol.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerLoc
}

// MoveCharacter places or moves a character.
func (s *State) MoveCharacter(id uint32, loc protocol.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[id] = loc
}

// HasCharacter reports whether id has been seen.
func (s *State) HasCharacter(id uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.characters[id]
	return ok
}

// CharacterLocation returns where id stands.
func (s *State) CharacterLocation(id uint32) (protocol.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.characters[id]
	return loc, ok
}

// SetTile stores the tile type at loc.
func (s *State) SetTile(loc protocol.Location, tileID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[loc] = tileID
}

// Tile returns the tile type at loc.
func (s *State) Tile(loc protocol.Location) (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tiles[loc]
	return id, ok
}

// IsBlocked reports whether loc cannot be entered: unknown tiles, blocking
// tiles and tiles occupied by a character.
func (s *State) IsBlocked(loc protocol.Location) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tile, ok := s.tiles[loc]
	if !ok || tile == BlockingTile {
		return true
	}
	for _, charLoc := range s.characters {
		if charLoc == loc {
			return true
		}
	}
	return false
}

// MarkMapComplete flags the current map as fully received.
func (s *State) MarkMapComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapComplete = true
}

// MapComplete reports whether the map was fully received since the last relocation.
func (s *State) MapComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapComplete
}
