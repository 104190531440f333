package netsync

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/mana"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

var (
	// ErrMalformedSnapshot is returned for snapshots that fail validation
	// or whose checksum does not match.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	// ErrSequenceGap is returned when a state skips sequence numbers.
	ErrSequenceGap = errors.New("sequence gap")
	// ErrDesynchronized is returned for ordinary states received while
	// the mirror waits for a resync.
	ErrDesynchronized = errors.New("mirror desynchronized")
)

// SyncState is the mirror's relation to the authoritative match.
type SyncState int

const (
	StateAwaiting SyncState = iota
	StateSynced
	StateDesynchronized
)

func (s SyncState) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateSynced:
		return "synced"
	case StateDesynchronized:
		return "desynchronized"
	}
	return fmt.Sprintf("SyncState(%d)", int(s))
}

// SideView is the mirrored state of one side. Cards are rebuilt
// instances; the mirror never evaluates rules against them.
type SideView struct {
	Seat      rules.Seat
	Health    int
	MaxHealth int
	Mana      mana.Pool
	Hand      []*game.Card
	Field     []*game.Card
	Deck      []*game.Card
	Graveyard []catalog.CardTemplate
	Fatigue   int
	Ready     bool
}

// Mirror is a read-only copy of a match kept current from snapshots.
type Mirror struct {
	matchID string
	factory *game.CardFactory
	logger  *zap.Logger

	mu    sync.RWMutex
	state SyncState
	cause error
	snap  *game.MatchSnapshot
	sides map[rules.Seat]SideView
}

// NewMirror creates a mirror for matchID. Cards are rebuilt through
// factory, so its catalog must match the authority's.
func NewMirror(matchID string, factory *game.CardFactory, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		matchID: matchID,
		factory: factory,
		logger:  logger.With(zap.String("match_id", matchID)),
		sides:   make(map[rules.Seat]SideView),
	}
}

// Apply installs a snapshot. Ordinary states must follow the last one
// without a gap; older ones are ignored. A resync answer is accepted
// whatever its sequence number and clears a desynchronized state. Any
// failure leaves the mirror desynchronized.
func (m *Mirror) Apply(snap *game.MatchSnapshot, resync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(snap); err != nil {
		m.desync(err)
		return err
	}

	if !resync {
		switch m.state {
		case StateDesynchronized:
			return ErrDesynchronized
		case StateSynced:
			last := m.snap.Seq
			if snap.Seq < last {
				m.logger.Debug("stale state ignored", zap.Uint64("seq", snap.Seq), zap.Uint64("last", last))
				return nil
			}
			if snap.Seq > last+1 {
				err := fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, last, snap.Seq)
				m.desync(err)
				return err
			}
		}
	}

	sides := make(map[rules.Seat]SideView, len(snap.Sides))
	for _, s := range snap.Sides {
		sides[s.Seat] = SideView{
			Seat:      s.Seat,
			Health:    s.Health,
			MaxHealth: s.MaxHealth,
			Mana:      s.Mana,
			Hand:      m.rebuild(s.Hand),
			Field:     m.rebuild(s.Field),
			Deck:      m.rebuild(s.Deck),
			Graveyard: s.Graveyard,
			Fatigue:   s.Fatigue,
			Ready:     s.Ready,
		}
	}
	if m.state == StateDesynchronized {
		m.logger.Info("mirror resynchronized", zap.Uint64("seq", snap.Seq))
	}
	m.snap = snap
	m.sides = sides
	m.state = StateSynced
	m.cause = nil
	return nil
}

func (m *Mirror) validate(snap *game.MatchSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	if snap.Version != game.SnapshotVersion {
		return fmt.Errorf("%w: version %d", ErrMalformedSnapshot, snap.Version)
	}
	if m.matchID != "" && snap.MatchID != m.matchID {
		return fmt.Errorf("%w: snapshot of match %q", ErrMalformedSnapshot, snap.MatchID)
	}
	if _, ok := snap.Side(rules.SeatHost); !ok {
		return fmt.Errorf("%w: missing host side", ErrMalformedSnapshot)
	}
	if _, ok := snap.Side(rules.SeatGuest); !ok {
		return fmt.Errorf("%w: missing guest side", ErrMalformedSnapshot)
	}
	for _, s := range snap.Sides {
		for _, zone := range [][]game.CardData{s.Hand, s.Field, s.Deck} {
			for _, d := range zone {
				if d.Name == "" {
					return fmt.Errorf("%w: card %q has no name", ErrMalformedSnapshot, d.ID)
				}
			}
		}
	}
	ok, err := snap.VerifyChecksum()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if !ok {
		return fmt.Errorf("%w: checksum mismatch at seq %d", ErrMalformedSnapshot, snap.Seq)
	}
	return nil
}

func (m *Mirror) rebuild(data []game.CardData) []*game.Card {
	out := make([]*game.Card, 0, len(data))
	for _, d := range data {
		out = append(out, m.factory.Rebuild(d))
	}
	return out
}

func (m *Mirror) desync(cause error) {
	if m.state != StateDesynchronized {
		m.logger.Warn("mirror desynchronized", zap.Error(cause))
	}
	m.state = StateDesynchronized
	m.cause = cause
}

// MarkDesynchronized records a failure seen outside Apply, such as an
// undecodable state message.
func (m *Mirror) MarkDesynchronized(cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desync(cause)
}

// State returns the sync state.
func (m *Mirror) State() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Cause returns why the mirror is desynchronized, or nil.
func (m *Mirror) Cause() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cause
}

// Seq returns the sequence number of the installed snapshot.
func (m *Mirror) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return 0
	}
	return m.snap.Seq
}

// Snapshot returns the installed snapshot, or nil before the first one.
func (m *Mirror) Snapshot() *game.MatchSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Side returns the mirrored view of seat.
func (m *Mirror) Side(seat rules.Seat) (SideView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sides[seat]
	return s, ok
}

// Paused reports whether the authority has paused the match.
func (m *Mirror) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap != nil && m.snap.Paused
}
