package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mcdev12/flamingo/go/internal/game"
)

// ErrNotFound is returned by Load when no snapshot exists for the session
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is what a session persists so a reload of the same session can resume.
// Snapshots are never shared between sessions.
type Snapshot struct {
	SessionID  string      `json:"sessionId" yaml:"sessionId"`
	SelfName   string      `json:"selfName,omitempty" yaml:"selfName,omitempty"`
	SelfID     string      `json:"selfId,omitempty" yaml:"selfId,omitempty"`
	RoomID     string      `json:"roomId,omitempty" yaml:"roomId,omitempty"`
	HostLaunch bool        `json:"hostLaunch,omitempty" yaml:"hostLaunch,omitempty"`
	State      game.Record `json:"state" yaml:"state"`
	SavedAt    time.Time   `json:"savedAt" yaml:"savedAt"`
}

// Store persists snapshots keyed by session id
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// NopStore persists nothing
type NopStore struct{}

func (NopStore) Save(context.Context, Snapshot) error { return nil }

func (NopStore) Load(context.Context, string) (Snapshot, error) {
	return Snapshot{}, ErrNotFound
}

func (NopStore) Delete(context.Context, string) error { return nil }

// MemoryStore keeps snapshots in process, mostly for tests
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	if snap.SessionID == "" {
		return errors.New("snapshot has no session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.SessionID] = snap
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[sessionID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, sessionID)
	return nil
}
