package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// SQLiteStore keeps chat transcripts. Datasets are never written here.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(dataSourceName string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        analysis_json TEXT, -- AnalysisResponse as JSON, NULL for plain messages
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Session methods
func (s *SQLiteStore) CreateSession() (*Session, error) {
	sessionID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO sessions (id, created_at) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	if _, err = stmt.Exec(sessionID, now); err != nil {
		return nil, fmt.Errorf("failed to execute session insert: %w", err)
	}
	return &Session{ID: sessionID, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*Session, error) {
	var session Session
	err := s.db.QueryRow("SELECT id, created_at FROM sessions WHERE id = ?", sessionID).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session and its transcript. It reports whether the
// session existed.
func (s *SQLiteStore) DeleteSession(sessionID string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin session delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return false, fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit session delete: %w", err)
	}
	return n > 0, nil
}

// Message methods
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()

	var analysisJSON sql.NullString
	if msg.Analysis != nil {
		b, err := json.Marshal(msg.Analysis)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
		analysisJSON = sql.NullString{String: string(b), Valid: true}
	}

	stmt, err := s.db.Prepare(`
        INSERT INTO messages (id, session_id, seq, role, content, analysis_json, timestamp)
        VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?), ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.SessionID, msg.SessionID, msg.Role, msg.Content, analysisJSON, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesBySessionID(sessionID string, limit int, offset int) ([]Message, error) {
	query := `
        SELECT id, session_id, role, content, analysis_json, timestamp
        FROM messages
        WHERE session_id = ?
        ORDER BY seq ASC
        LIMIT ? OFFSET ?
    `
	rows, err := s.db.Query(query, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var analysisJSON sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &analysisJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if analysisJSON.Valid && analysisJSON.String != "" {
			var analysis AnalysisResponse
			if err := json.Unmarshal([]byte(analysisJSON.String), &analysis); err != nil {
				s.logger.Warn("failed to unmarshal stored analysis, dropping it",
					zap.String("message_id", msg.ID), zap.Error(err))
			} else {
				msg.Analysis = &analysis
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
