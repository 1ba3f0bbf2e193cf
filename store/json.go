package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONStore implements Store as a single JSON file. It suits small
// conversations and setups without a database.
type JSONStore struct {
	path string

	mu        sync.Mutex
	nextID    int64
	snapshots []Snapshot
}

// NewJSONStore returns a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Init loads the file, creating its directory when missing.
func (s *JSONStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.snapshots = nil
		s.nextID = 1
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.snapshots); err != nil {
		return err
	}
	s.nextID = 1
	for _, snap := range s.snapshots {
		if snap.ID >= s.nextID {
			s.nextID = snap.ID + 1
		}
	}
	return nil
}

// Close is a no-op; every save is flushed immediately.
func (s *JSONStore) Close() error {
	return nil
}

// SaveSnapshot appends a snapshot and rewrites the file.
func (s *JSONStore) SaveSnapshot(snap Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextID == 0 {
		s.nextID = 1
	}
	snap.ID = s.nextID
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots = append(s.snapshots, snap)
	if err := s.flush(); err != nil {
		s.snapshots = s.snapshots[:len(s.snapshots)-1]
		return Snapshot{}, err
	}
	s.nextID++
	return snap, nil
}

// LatestSnapshot returns the newest snapshot of a conversation.
func (s *JSONStore) LatestSnapshot(conversationID string) (Snapshot, error) {
	list, _ := s.ListSnapshots(conversationID, 1)
	if len(list) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return list[0], nil
}

// ListSnapshots returns a conversation's snapshots, newest first.
func (s *JSONStore) ListSnapshots(conversationID string, limit int) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Snapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].ConversationID != conversationID {
			continue
		}
		out = append(out, s.snapshots[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// flush writes a temp file and renames it over the store file.
func (s *JSONStore) flush() error {
	data, err := json.MarshalIndent(s.snapshots, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
