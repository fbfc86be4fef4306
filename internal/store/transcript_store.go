// Package store provides the local SQLite transcript cache. Every finalized
// message is mirrored here so past sessions can be replayed offline without
// hitting the durable store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"codeflow/internal/types"
)

// TranscriptStore handles SQLite persistence for session transcripts
type TranscriptStore struct {
	db   *sql.DB
	path string
}

// NewTranscriptStore opens or creates a SQLite database at the given path
func NewTranscriptStore(dbPath string) (*TranscriptStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &TranscriptStore{
		db:   db,
		path: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			hidden INTEGER DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_session ON messages(session_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *TranscriptStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveMessage upserts one message for a session. Re-saving the same id
// replaces the cached row, which matches how a streaming message settles
// into its final content.
func (s *TranscriptStore) SaveMessage(sessionID string, msg types.Message) error {
	var metadata any
	if msg.Metadata != nil {
		encoded, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(encoded)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO messages (id, session_id, role, content, metadata, hidden, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, sessionID, string(msg.Role), msg.Content, metadata, boolToInt(msg.Hidden), msg.Timestamp.Unix())
	return err
}

// SaveMessages saves a batch of messages in one transaction.
func (s *TranscriptStore) SaveMessages(sessionID string, msgs []types.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		var metadata any
		if msg.Metadata != nil {
			encoded, err := json.Marshal(msg.Metadata)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = string(encoded)
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO messages (id, session_id, role, content, metadata, hidden, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, msg.ID, sessionID, string(msg.Role), msg.Content, metadata, boolToInt(msg.Hidden), msg.Timestamp.Unix()); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetMessages returns all messages for a session in chronological order
func (s *TranscriptStore) GetMessages(sessionID string) ([]types.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, metadata, hidden, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		var msg types.Message
		var role string
		var metadata sql.NullString
		var hiddenInt int
		var createdAt int64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &metadata, &hiddenInt, &createdAt); err != nil {
			return nil, err
		}
		msg.Role = types.Role(role)
		msg.Hidden = hiddenInt != 0
		msg.Timestamp = time.Unix(createdAt, 0)
		if metadata.Valid && metadata.String != "" {
			var meta types.MessageMetadata
			if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for message %s: %w", msg.ID, err)
			}
			msg.Metadata = &meta
		}
		messages = append(messages, msg)
	}

	if messages == nil {
		return []types.Message{}, nil
	}
	return messages, rows.Err()
}

// Sessions returns the distinct session ids in the cache, most recent first
func (s *TranscriptStore) Sessions() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT session_id
		FROM messages
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

// Clear removes all cached messages for a session
func (s *TranscriptStore) Clear(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}

// Count returns the number of cached messages for a session
func (s *TranscriptStore) Count(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
