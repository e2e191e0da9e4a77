package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlink/hearthlink/internal/events"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalSessionLifecycle(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	start := time.UnixMilli(1_700_000_000_000)
	end := start.Add(90 * time.Second)

	require.NoError(t, j.SessionStarted(ctx, "10.0.0.1:7171", start))
	require.NoError(t, j.SessionStarted(ctx, "10.0.0.1:7171", start))

	sessions, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].EndedAt)

	require.NoError(t, j.SessionEnded(ctx, "10.0.0.1:7171", start, end, "read: EOF", true))
	require.NoError(t, j.SessionEnded(ctx, "10.0.0.1:7171", start, end.Add(time.Second), "later", false))

	sessions, err = j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	require.NotNil(t, s.EndedAt)
	assert.True(t, s.StartedAt.Equal(start))
	assert.True(t, s.EndedAt.Equal(end))
	assert.Equal(t, "read: EOF", s.Reason)
	assert.True(t, s.Lost)
	assert.Equal(t, 90*time.Second, s.Duration(time.Now()))
}

func TestJournalEndBeforeStart(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	start := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, j.SessionEnded(ctx, "srv:1", start, start.Add(time.Second), "client disconnect", false))
	require.NoError(t, j.SessionStarted(ctx, "srv:1", start))

	sessions, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].EndedAt)
	assert.False(t, sessions[0].Lost)
}

func TestJournalRecentOrderAndLimit(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.SessionStarted(ctx, "srv:1", base.Add(time.Duration(i)*time.Minute)))
	}

	sessions, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.True(t, sessions[0].StartedAt.Equal(base.Add(4*time.Minute)))
	assert.True(t, sessions[2].StartedAt.Equal(base.Add(2*time.Minute)))
}

func TestJournalAttach(t *testing.T) {
	j := newTestJournal(t)
	bus := events.NewEventBus()
	j.Attach(bus)

	ctx := context.Background()
	start := time.Now().Truncate(time.Millisecond)

	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventConnected,
		Payload: events.ConnectedPayload{Remote: "srv:2", At: start},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type: events.EventChat,
		Payload: events.ChatPayload{
			Mode:     events.ChatShout,
			Location: protocol.Location{X: 1, Y: 2, Z: 3},
			Text:     "hello all",
		},
	}))
	require.NoError(t, bus.EmitSync(ctx, events.Event{
		Type:    events.EventDisconnected,
		Payload: events.DisconnectedPayload{Remote: "srv:2", Reason: "client disconnect", Since: start, At: start.Add(time.Second)},
	}))

	sessions, err := j.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "client disconnect", sessions[0].Reason)
	assert.False(t, sessions[0].Lost)

	chat, err := j.RecentChat(ctx, 5)
	require.NoError(t, err)
	require.Len(t, chat, 1)
	assert.Equal(t, "shout", chat[0].Mode)
	assert.Equal(t, "hello all", chat[0].Text)
	assert.Equal(t, int16(3), chat[0].Z)
}
