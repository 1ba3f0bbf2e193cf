// Package store persists snapshots of a conversation's shared variables
// between runs.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoSnapshot is returned when a conversation has no saved snapshot.
var ErrNoSnapshot = errors.New("no snapshot for conversation")

// Store persists shared-variable snapshots.
type Store interface {
	// Init creates tables or files if they don't exist.
	Init() error

	// Close closes the store.
	Close() error

	// SaveSnapshot records a snapshot and returns it with ID and
	// CreatedAt filled in.
	SaveSnapshot(s Snapshot) (Snapshot, error)

	// LatestSnapshot returns the newest snapshot of a conversation.
	LatestSnapshot(conversationID string) (Snapshot, error)

	// ListSnapshots returns a conversation's snapshots, newest first.
	ListSnapshots(conversationID string, limit int) ([]Snapshot, error)
}

// Snapshot is the shared state of a conversation after one run.
type Snapshot struct {
	ID             int64          `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Vars           map[string]any `json:"vars"`

	// Setters lists the shared names the run wrote, in first-write order.
	Setters []string `json:"setters"`

	// Source is the full shared state as a "> result" block. Parsing and
	// running it restores every variable, type values included.
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// NewConversationID returns a fresh conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// Open opens and initializes the store at path. Paths ending in .json use
// a JSONStore; anything else is a SQLite database.
func Open(path string) (Store, error) {
	var s Store
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		s = NewJSONStore(path)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		db, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		s = db
	}
	if err := s.Init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
