// Package reply contains the messages the server sends to the client and the
// updates they apply when the executor runs them.
package reply

import (
	"context"

	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/protocol"
	"github.com/hearthlink/hearthlink/internal/world"
)

// DefaultStripeBatch is how many map tiles a MapStripe applies per update.
const DefaultStripeBatch = 16

// Registry is the reply registry type.
type Registry = protocol.Registry[protocol.Reply]

// Env is what reply handlers work on. Every reply produced by one registry
// shares the same Env.
type Env struct {
	World  world.Model
	Events events.Publisher

	// StripeBatch limits the tiles applied per MapStripe update.
	StripeBatch int
}

func (e *Env) emit(eventType events.EventType, payload interface{}) {
	if e.Events == nil {
		return
	}
	e.Events.Emit(context.Background(), events.Event{
		Type:    eventType,
		Source:  "executor",
		Payload: payload,
	})
}

// NewRegistry registers every reply type bound to env and seals the registry.
func NewRegistry(env *Env) (*Registry, error) {
	if env.StripeBatch <= 0 {
		env.StripeBatch = DefaultStripeBatch
	}

	reg := protocol.NewRegistry[protocol.Reply]("replies")

	register := []struct {
		id    int
		newFn func() protocol.Reply
	}{
		{protocol.MsgPlayerID, func() protocol.Reply { return &PlayerID{env: env} }},
		{protocol.MsgLocation, func() protocol.Reply { return &Location{env: env} }},
		{protocol.MsgSay, func() protocol.Reply { return &Talk{env: env} }},
		{protocol.MsgInform, func() protocol.Reply { return &Inform{env: env} }},
		{protocol.MsgServerTime, func() protocol.Reply { return &ServerTime{env: env} }},
		{protocol.MsgCharMove, func() protocol.Reply { return &CharMove{env: env} }},
		{protocol.MsgAppearance, func() protocol.Reply { return &Appearance{env: env} }},
		{protocol.MsgMapStripe, func() protocol.Reply { return &MapStripe{env: env} }},
		{protocol.MsgMapComplete, func() protocol.Reply { return &MapComplete{env: env} }},
		{protocol.MsgDisconnect, func() protocol.Reply { return &Disconnect{env: env} }},
	}
	for _, r := range register {
		if err := reg.Register(r.id, r.newFn); err != nil {
			return nil, err
		}
	}

	if err := reg.Map(protocol.MsgShout, protocol.MsgSay); err != nil {
		return nil, err
	}
	if err := reg.Map(protocol.MsgWhisper, protocol.MsgSay); err != nil {
		return nil, err
	}

	if err := reg.Finish(); err != nil {
		return nil, err
	}
	return reg, nil
}
