package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema tables.
func (s *SQLiteStore) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		vars            TEXT NOT NULL DEFAULT '{}',
		setters         TEXT NOT NULL DEFAULT '[]',
		source          TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_conversation ON snapshots(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot records a snapshot.
func (s *SQLiteStore) SaveSnapshot(snap Snapshot) (Snapshot, error) {
	vars, err := json.Marshal(snap.Vars)
	if err != nil {
		return Snapshot{}, err
	}
	setters, err := json.Marshal(snap.Setters)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO snapshots (conversation_id, vars, setters, source, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.ConversationID, string(vars), string(setters), snap.Source, snap.CreatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	snap.ID, err = res.LastInsertId()
	return snap, err
}

// LatestSnapshot returns the newest snapshot of a conversation.
func (s *SQLiteStore) LatestSnapshot(conversationID string) (Snapshot, error) {
	list, err := s.ListSnapshots(conversationID, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(list) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return list[0], nil
}

// ListSnapshots returns a conversation's snapshots, newest first.
func (s *SQLiteStore) ListSnapshots(conversationID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, conversation_id, vars, setters, source, created_at
		 FROM snapshots WHERE conversation_id = ? ORDER BY id DESC LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var (
			snap          Snapshot
			vars, setters string
		)
		if err := rows.Scan(&snap.ID, &snap.ConversationID, &vars, &setters, &snap.Source, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := errors.Join(
			json.Unmarshal([]byte(vars), &snap.Vars),
			json.Unmarshal([]byte(setters), &snap.Setters),
		); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
