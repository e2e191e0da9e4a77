package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthlink/hearthlink/internal/events"
)

// Session is one connection to the game server.
type Session struct {
	ID        int64      `json:"id"`
	Remote    string     `json:"remote"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Lost      bool       `json:"lost"`
}

// Duration returns how long the session lasted, or has lasted so far.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// ChatLine is a chat message heard by the player.
type ChatLine struct {
	ID   int64     `json:"id"`
	At   time.Time `json:"at"`
	Mode string    `json:"mode"`
	X    int16     `json:"x"`
	Y    int16     `json:"y"`
	Z    int16     `json:"z"`
	Text string    `json:"text"`
}

// Journal records sessions and chat in SQLite.
type Journal struct {
	db *Database
}

// NewJournal opens the journal at dbPath and migrates its schema.
func NewJournal(dbPath string) (*Journal, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database}
	if err := j.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			remote TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			reason TEXT NOT NULL DEFAULT '',
			lost INTEGER NOT NULL DEFAULT 0,
			UNIQUE (remote, started_at)
		);

		CREATE TABLE IF NOT EXISTS chat (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			mode TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			text TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
		CREATE INDEX IF NOT EXISTS idx_chat_at ON chat(at);
	`

	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("journal schema migrated")
	return nil
}

// SessionStarted records a new session. Recording the same session twice is
// a no-op.
func (j *Journal) SessionStarted(ctx context.Context, remote string, at time.Time) error {
	_, err := j.db.Exec(ctx,
		"INSERT OR IGNORE INTO sessions (remote, started_at) VALUES (?, ?)",
		remote, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded closes the session that started at since. The session row is
// created if the start has not been recorded yet.
func (j *Journal) SessionEnded(ctx context.Context, remote string, since, at time.Time, reason string, lost bool) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO sessions (remote, started_at, ended_at, reason, lost)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (remote, started_at) DO UPDATE SET
			ended_at = COALESCE(sessions.ended_at, excluded.ended_at),
			reason = CASE WHEN sessions.reason = '' THEN excluded.reason ELSE sessions.reason END,
			lost = MAX(sessions.lost, excluded.lost)
	`, remote, since.UnixMilli(), at.UnixMilli(), reason, boolInt(lost))
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	return nil
}

// RecordChat stores a chat line.
func (j *Journal) RecordChat(ctx context.Context, at time.Time, chat events.ChatPayload) error {
	_, err := j.db.Exec(ctx,
		"INSERT INTO chat (at, mode, x, y, z, text) VALUES (?, ?, ?, ?, ?, ?)",
		at.UnixMilli(), chat.Mode.String(), chat.Location.X, chat.Location.Y, chat.Location.Z, chat.Text)
	if err != nil {
		return fmt.Errorf("failed to record chat: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Session, error) {
	rows, err := j.db.Query(ctx, `
		SELECT id, remote, started_at, ended_at, reason, lost
		FROM sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
			lost    int
		)
		if err := rows.Scan(&s.ID, &s.Remote, &started, &ended, &s.Reason, &lost); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			s.EndedAt = &t
		}
		s.Lost = lost != 0
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RecentChat returns up to limit chat lines, newest first.
func (j *Journal) RecentChat(ctx context.Context, limit int) ([]ChatLine, error) {
	rows, err := j.db.Query(ctx, `
		SELECT id, at, mode, x, y, z, text
		FROM chat
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat: %w", err)
	}
	defer rows.Close()

	var lines []ChatLine
	for rows.Next() {
		var (
			l  ChatLine
			at int64
		)
		if err := rows.Scan(&l.ID, &at, &l.Mode, &l.X, &l.Y, &l.Z, &l.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chat line: %w", err)
		}
		l.At = time.UnixMilli(at)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Attach subscribes the journal to connection and chat events.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventConnected, "journal", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.ConnectedPayload)
		if !ok {
			return nil
		}
		return j.SessionStarted(ctx, p.Remote, p.At)
	})

	ended := func(lost bool) events.HandlerFunc {
		return func(ctx context.Context, e events.Event) error {
			p, ok := e.Payload.(events.DisconnectedPayload)
			if !ok {
				return nil
			}
			return j.SessionEnded(ctx, p.Remote, p.Since, p.At, p.Reason, lost)
		}
	}
	bus.Subscribe(events.EventDisconnected, "journal", ended(false))
	bus.Subscribe(events.EventConnectionLost, "journal", ended(true))

	bus.Subscribe(events.EventChat, "journal", func(ctx context.Context, e events.Event) error {
		p, ok := e.Payload.(events.ChatPayload)
		if !ok {
			return nil
		}
		return j.RecordChat(ctx, time.Now(), p)
	})
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
