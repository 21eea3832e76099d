package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"deskmate/internal/types"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS transcript (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	role    TEXT NOT NULL,
	content TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session);
CREATE INDEX IF NOT EXISTS idx_transcript_ts ON transcript(ts);
`

// History archives conversation turns in a local sqlite database, one
// session per open handle. It is advisory storage: the in-memory
// conversation is authoritative for the running session, the archive is
// for later inspection.
type History struct {
	mu      sync.Mutex
	db      *sql.DB
	session string
}

// OpenHistory opens (creating if needed) the transcript database at path
// and starts a fresh session.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript schema: %w", err)
	}
	return &History{db: db, session: uuid.NewString()}, nil
}

// Session returns this handle's session identifier.
func (h *History) Session() string {
	return h.session
}

// Append records one turn in the current session. Implements the chat
// archive contract.
func (h *History) Append(role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.db.Exec(
		"INSERT INTO transcript (session, ts, role, content) VALUES (?, ?, ?, ?)",
		h.session, time.Now().UnixMilli(), role, content,
	)
	if err != nil {
		return fmt.Errorf("append transcript turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns of the current session, oldest first.
func (h *History) Recent(limit int) ([]types.ConversationTurn, error) {
	return h.SessionTurns(h.session, limit)
}

// SessionTurns returns up to limit turns of one session, oldest first.
func (h *History) SessionTurns(session string, limit int) ([]types.ConversationTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(
		"SELECT role, content FROM transcript WHERE session = ? ORDER BY id DESC LIMIT ?",
		session, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var turns []types.ConversationTurn
	for rows.Next() {
		var t types.ConversationTurn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Sessions lists the distinct session identifiers, most recent first.
func (h *History) Sessions() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows, err := h.db.Query(
		"SELECT session FROM transcript GROUP BY session ORDER BY MAX(ts) DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Prune deletes turns older than the retention window. Returns the number
// of rows removed.
func (h *History) Prune(olderThan time.Duration) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := h.db.Exec("DELETE FROM transcript WHERE ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transcript: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}
