// Package storage persists match snapshots and the card catalog.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mysticduel/duel-server/internal/game"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a match.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// MemoryStore keeps the latest snapshot of each match in memory. Stored
// snapshots are encoded copies, so callers cannot mutate them.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string][]byte
	seqs  map[string]uint64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string][]byte),
		seqs:  make(map[string]uint64),
	}
}

// SaveSnapshot stores snap unless a later one is already stored.
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *game.MatchSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.MatchID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq, ok := s.seqs[snap.MatchID]; ok && seq > snap.Seq {
		return nil
	}
	s.snaps[snap.MatchID] = data
	s.seqs[snap.MatchID] = snap.Seq
	return nil
}

// LoadSnapshot returns the latest snapshot of a match.
func (s *MemoryStore) LoadSnapshot(_ context.Context, matchID string) (*game.MatchSnapshot, error) {
	s.mu.RLock()
	data, ok := s.snaps[matchID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, matchID)
	}
	var snap game.MatchSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", matchID, err)
	}
	return &snap, nil
}

// DeleteSnapshot forgets a match.
func (s *MemoryStore) DeleteSnapshot(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, matchID)
	delete(s.seqs, matchID)
	return nil
}

// MatchIDs lists stored matches in order.
func (s *MemoryStore) MatchIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ game.SnapshotStore = (*MemoryStore)(nil)
