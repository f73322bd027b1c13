// Package feedback persists submitted feedback so it survives workspace
// restarts. Backed by SQLite; the schema is created on open.
package feedback

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/primarycredit/workspace/pkg/models"
)

// SQLiteStore records inline and per-message feedback submissions.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) the feedback database at path.
func NewSQLiteStore(path string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open feedback database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping feedback database: %w", err)
	}

	store := &SQLiteStore{db: db, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize feedback schema: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS inline_feedback (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation_id TEXT NOT NULL,
        comments TEXT NOT NULL,
        submitted_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS message_feedback (
        message_id TEXT PRIMARY KEY,
        minutes_saved INTEGER NOT NULL,
        score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 10),
        comments TEXT NOT NULL,
        submitted_at DATETIME NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// SaveInline records one inline feedback submission.
func (s *SQLiteStore) SaveInline(payload models.InlineFeedback) error {
	_, err := s.db.Exec(
		"INSERT INTO inline_feedback (conversation_id, comments, submitted_at) VALUES (?, ?, ?)",
		payload.ConversationID, payload.Comments, payload.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inline feedback: %w", err)
	}
	s.log.Info().Str("conversation_id", payload.ConversationID).Msg("inline feedback persisted")
	return nil
}

// SaveMessage records per-message feedback. A resubmission for the same
// message id replaces the prior row.
func (s *SQLiteStore) SaveMessage(messageID string, record models.FeedbackRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO message_feedback (message_id, minutes_saved, score, comments, submitted_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET
		   minutes_saved=excluded.minutes_saved,
		   score=excluded.score,
		   comments=excluded.comments,
		   submitted_at=excluded.submitted_at`,
		messageID, record.MinutesSaved, record.Score, record.Comments, record.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message feedback: %w", err)
	}
	return nil
}

// CountInline returns the number of persisted inline submissions.
func (s *SQLiteStore) CountInline() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM inline_feedback").Scan(&n); err != nil {
		return 0, fmt.Errorf("count inline feedback: %w", err)
	}
	return n, nil
}
