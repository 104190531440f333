package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const replayFormatVersion = 1

// Replay is a recorded match: the snapshot after every accepted action.
type Replay struct {
	MatchID string

	mu        sync.RWMutex
	snapshots []*MatchSnapshot
	cursor    int
}

// NewReplay creates an empty replay.
func NewReplay(matchID string) *Replay {
	return &Replay{MatchID: matchID}
}

// Record appends a snapshot.
func (r *Replay) Record(snap *MatchSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

// Len returns the number of recorded snapshots.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}

// At returns the snapshot at index, or nil.
func (r *Replay) At(index int) *MatchSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.snapshots) {
		return nil
	}
	return r.snapshots[index]
}

// Rewind moves the playback cursor to the start.
func (r *Replay) Rewind() {
	r.mu.Lock()
	r.cursor = 0
	r.mu.Unlock()
}

// Next returns the snapshot at the cursor and advances it. It returns nil
// at the end of the recording.
func (r *Replay) Next() *MatchSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.snapshots) {
		return nil
	}
	snap := r.snapshots[r.cursor]
	r.cursor++
	return snap
}

// Previous steps the cursor back and returns that snapshot.
func (r *Replay) Previous() *MatchSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 {
		return nil
	}
	r.cursor--
	return r.snapshots[r.cursor]
}

type replayHeader struct {
	MatchID string
	Saved   time.Time
	Version int
	Count   int
}

func replayPath(directory, matchID string) string {
	return filepath.Join(directory, matchID+".replay")
}

// SaveToFile writes the replay as gzip-compressed gob to
// <directory>/<match id>.replay.
func (r *Replay) SaveToFile(directory string) (err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("create replay directory: %w", err)
	}
	file, err := os.Create(replayPath(directory, r.MatchID))
	if err != nil {
		return fmt.Errorf("create replay file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	zw := gzip.NewWriter(file)
	enc := gob.NewEncoder(zw)
	header := replayHeader{MatchID: r.MatchID, Saved: time.Now().UTC(), Version: replayFormatVersion, Count: len(r.snapshots)}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("encode replay header: %w", err)
	}
	for i, snap := range r.snapshots {
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot %d: %w", i, err)
		}
	}
	return zw.Close()
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, matchID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, matchID))
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("decode replay header: %w", err)
	}
	if header.Version != replayFormatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}

	replay := NewReplay(header.MatchID)
	for i := 0; i < header.Count; i++ {
		var snap MatchSnapshot
		if err := dec.Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %d: %w", i, err)
		}
		replay.snapshots = append(replay.snapshots, &snap)
	}
	return replay, nil
}

// ReplayRecorder keeps one replay per recorded match and writes it to
// disk when the match is finished.
type ReplayRecorder struct {
	logger  *zap.Logger
	saveDir string

	mu      sync.RWMutex
	replays map[string]*Replay
}

// NewReplayRecorder creates a recorder that saves into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		saveDir: saveDir,
		replays: make(map[string]*Replay),
	}
}

// Start begins recording a match.
func (rr *ReplayRecorder) Start(matchID string) {
	rr.mu.Lock()
	rr.replays[matchID] = NewReplay(matchID)
	rr.mu.Unlock()
	rr.logger.Debug("started replay recording", zap.String("match_id", matchID))
}

// Record appends snap to the match's replay if it is being recorded.
func (rr *ReplayRecorder) Record(snap *MatchSnapshot) {
	rr.mu.RLock()
	replay := rr.replays[snap.MatchID]
	rr.mu.RUnlock()
	if replay == nil {
		return
	}
	replay.Record(snap)
}

// Replay returns the in-memory replay of a match.
func (rr *ReplayRecorder) Replay(matchID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, ok := rr.replays[matchID]
	return replay, ok
}

// Save writes a match's replay to disk and forgets it.
func (rr *ReplayRecorder) Save(matchID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[matchID]
	delete(rr.replays, matchID)
	rr.mu.Unlock()
	if !ok {
		return fmt.Errorf("no replay recorded for match %s", matchID)
	}

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("save replay: %w", err)
	}
	rr.logger.Info("saved replay",
		zap.String("match_id", matchID),
		zap.Int("snapshots", replay.Len()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// Load reads a saved replay.
func (rr *ReplayRecorder) Load(matchID string) (*Replay, error) {
	return LoadReplayFromFile(rr.saveDir, matchID)
}
