package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

var (
	// ErrMatchNotFound is returned for an unknown match id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchExists is returned when creating or restoring a match id
	// that is already hosted.
	ErrMatchExists = errors.New("match already exists")
)

// ActionKind names an inbound action.
type ActionKind string

const (
	ActionInitDeck      ActionKind = "initDeck"
	ActionPlayCard      ActionKind = "playCard"
	ActionDeclareAttack ActionKind = "declareAttack"
	ActionEndTurn       ActionKind = "endTurn"
)

// Action is one inbound request against a match.
type Action struct {
	Kind       ActionKind `json:"type"`
	Seat       rules.Seat `json:"seat"`
	Deck       []string   `json:"deck,omitempty"`
	CardID     string     `json:"cardId,omitempty"`
	AttackerID string     `json:"attackerId,omitempty"`
	Target     *Target    `json:"target,omitempty"`
}

// NotificationType classifies engine notifications.
type NotificationType string

const (
	NotifyState   NotificationType = "STATE"
	NotifyPaused  NotificationType = "PAUSED"
	NotifyResumed NotificationType = "RESUMED"
	NotifyOver    NotificationType = "MATCH_OVER"
)

// Notification is pushed after every change to a hosted match.
type Notification struct {
	Type      NotificationType
	MatchID   string
	Seq       uint64
	Timestamp time.Time
	Snapshot  *MatchSnapshot
	Result    *ActionResult
	Reason    string
}

// NotificationHandler receives notifications. It runs on the match's
// runner goroutine, so notifications of one match arrive in sequence
// order; it must not block or call back into the engine synchronously.
type NotificationHandler func(n Notification)

// SnapshotStore persists match snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *MatchSnapshot) error
	LoadSnapshot(ctx context.Context, matchID string) (*MatchSnapshot, error)
	DeleteSnapshot(ctx context.Context, matchID string) error
}

// MatchSummary is the listing view of a hosted match.
type MatchSummary struct {
	ID     string     `json:"id"`
	Status Status     `json:"status"`
	Turn   int        `json:"turn"`
	Active rules.Seat `json:"active"`
	Seq    uint64     `json:"seq"`
	Paused bool       `json:"paused"`
	Winner rules.Seat `json:"winner,omitempty"`
}

type hostedMatch struct {
	match  *Match
	runner *Runner
}

// Engine hosts authoritative matches. Every operation on a match runs on
// that match's runner.
type Engine struct {
	logger  *zap.Logger
	factory *CardFactory
	rules   config.RulesConfig
	store   SnapshotStore
	replays *ReplayRecorder

	mu      sync.RWMutex
	matches map[string]*hostedMatch
	handler NotificationHandler
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSnapshotStore persists a snapshot after every accepted action.
func WithSnapshotStore(store SnapshotStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithReplayRecorder records every hosted match.
func WithReplayRecorder(rec *ReplayRecorder) EngineOption {
	return func(e *Engine) { e.replays = rec }
}

// NewEngine creates an engine.
func NewEngine(factory *CardFactory, r config.RulesConfig, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:  logger,
		factory: factory,
		rules:   r,
		matches: make(map[string]*hostedMatch),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotificationHandler sets the handler for match notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// Factory returns the card factory matches are built with.
func (e *Engine) Factory() *CardFactory { return e.factory }

func (e *Engine) notify(n Notification) {
	e.mu.RLock()
	handler := e.handler
	e.mu.RUnlock()
	if handler == nil {
		return
	}
	n.Timestamp = time.Now().UTC()
	handler(n)
}

func (e *Engine) hosted(id string) (*hostedMatch, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return h, nil
}

func (e *Engine) host(m *Match) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.matches[m.ID]; exists {
		return fmt.Errorf("%w: %s", ErrMatchExists, m.ID)
	}
	e.matches[m.ID] = &hostedMatch{match: m, runner: NewRunner(32)}
	return nil
}

// CreateMatch hosts a new match waiting for decks. An empty id gets a
// generated one.
func (e *Engine) CreateMatch(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m := NewMatch(id, e.factory, e.rules, e.logger)
	if err := e.host(m); err != nil {
		return "", err
	}
	if e.replays != nil {
		e.replays.Start(id)
	}
	e.logger.Info("match created", zap.String("match_id", id))

	h, err := e.hosted(id)
	if err != nil {
		return "", err
	}
	var snap *MatchSnapshot
	runErr := h.runner.Do(ctx, func() {
		snap, err = e.commit(ctx, m)
	})
	if runErr != nil {
		return "", runErr
	}
	if err != nil {
		return "", err
	}
	e.notify(Notification{Type: NotifyState, MatchID: id, Seq: snap.Seq, Snapshot: snap})
	return id, nil
}

// Submit applies one action. Rule violations come back as
// *rules.Violation and leave the match unchanged.
func (e *Engine) Submit(ctx context.Context, matchID string, a Action) (*ActionResult, error) {
	h, err := e.hosted(matchID)
	if err != nil {
		return nil, err
	}

	var res *ActionResult
	runErr := h.runner.Do(ctx, func() {
		res, err = e.apply(h.match, a)
		if err != nil {
			return
		}
		snap, serr := e.commit(ctx, h.match)
		if serr != nil {
			e.logger.Error("snapshot failed", zap.String("match_id", matchID), zap.Error(serr))
			return
		}
		e.notify(Notification{Type: NotifyState, MatchID: matchID, Seq: res.Seq, Snapshot: snap, Result: res})
		if h.match.Status() == StatusOver {
			e.finish(h.match, snap)
		}
	})
	if runErr != nil {
		return nil, runErr
	}
	return res, err
}

func (e *Engine) apply(m *Match, a Action) (*ActionResult, error) {
	switch a.Kind {
	case ActionInitDeck:
		return m.InitDeck(a.Seat, a.Deck)
	case ActionPlayCard:
		return m.PlayCard(a.Seat, a.CardID, a.Target)
	case ActionDeclareAttack:
		if a.Target == nil {
			return nil, rules.Violationf(rules.CodeTargetRequired, "an attack needs a target")
		}
		return m.DeclareAttack(a.Seat, a.AttackerID, *a.Target)
	case ActionEndTurn:
		return m.EndTurn(a.Seat)
	}
	return nil, rules.Violationf(rules.CodeUnknownAction, "unknown action %q", a.Kind)
}

// commit snapshots the match, persists it and records it for replay.
// Persistence failures are logged; the match carries on in memory.
func (e *Engine) commit(ctx context.Context, m *Match) (*MatchSnapshot, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		if err := e.store.SaveSnapshot(ctx, snap); err != nil {
			e.logger.Warn("failed to persist snapshot",
				zap.String("match_id", m.ID),
				zap.Uint64("seq", snap.Seq),
				zap.Error(err),
			)
		}
	}
	if e.replays != nil {
		e.replays.Record(snap)
	}
	return snap, nil
}

func (e *Engine) finish(m *Match, snap *MatchSnapshot) {
	e.logger.Info("match finished",
		zap.String("match_id", m.ID),
		zap.String("winner", string(m.Winner())),
		zap.Int("turn", m.Turn()),
	)
	e.notify(Notification{Type: NotifyOver, MatchID: m.ID, Seq: snap.Seq, Snapshot: snap})
	if e.replays != nil {
		if err := e.replays.Save(m.ID); err != nil {
			e.logger.Warn("failed to save replay", zap.String("match_id", m.ID), zap.Error(err))
		}
	}
}

// Pause stops a match from accepting actions until Resume. It is used
// when the remote peer stops acknowledging state.
func (e *Engine) Pause(ctx context.Context, matchID, reason string) error {
	return e.setPaused(ctx, matchID, true, reason)
}

// Resume lets a paused match accept actions again.
func (e *Engine) Resume(ctx context.Context, matchID string) error {
	return e.setPaused(ctx, matchID, false, "")
}

func (e *Engine) setPaused(ctx context.Context, matchID string, paused bool, reason string) error {
	h, err := e.hosted(matchID)
	if err != nil {
		return err
	}
	return h.runner.Do(ctx, func() {
		if h.match.Paused() == paused {
			return
		}
		h.match.SetPaused(paused)
		snap, serr := e.commit(ctx, h.match)
		if serr != nil {
			e.logger.Error("snapshot failed", zap.String("match_id", matchID), zap.Error(serr))
			return
		}
		typ := NotifyResumed
		if paused {
			typ = NotifyPaused
			e.logger.Warn("match paused", zap.String("match_id", matchID), zap.String("reason", reason))
		} else {
			e.logger.Info("match resumed", zap.String("match_id", matchID))
		}
		e.notify(Notification{Type: typ, MatchID: matchID, Seq: snap.Seq, Snapshot: snap, Reason: reason})
	})
}

// Snapshot returns a fresh snapshot of a hosted match.
func (e *Engine) Snapshot(ctx context.Context, matchID string) (*MatchSnapshot, error) {
	h, err := e.hosted(matchID)
	if err != nil {
		return nil, err
	}
	var snap *MatchSnapshot
	if runErr := h.runner.Do(ctx, func() { snap, err = h.match.Snapshot() }); runErr != nil {
		return nil, runErr
	}
	return snap, err
}

// ListMatches summarises every hosted match, ordered by id.
func (e *Engine) ListMatches(ctx context.Context) ([]MatchSummary, error) {
	e.mu.RLock()
	hosted := make([]*hostedMatch, 0, len(e.matches))
	for _, h := range e.matches {
		hosted = append(hosted, h)
	}
	e.mu.RUnlock()

	out := make([]MatchSummary, 0, len(hosted))
	for _, h := range hosted {
		var s MatchSummary
		err := h.runner.Do(ctx, func() {
			m := h.match
			s = MatchSummary{
				ID:     m.ID,
				Status: m.Status(),
				Turn:   m.Turn(),
				Active: m.Active(),
				Seq:    m.Seq(),
				Paused: m.Paused(),
				Winner: m.Winner(),
			}
		})
		if errors.Is(err, ErrRunnerStopped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RestoreMatch hosts a match from its last persisted snapshot.
func (e *Engine) RestoreMatch(ctx context.Context, matchID string) error {
	if e.store == nil {
		return fmt.Errorf("restore match %s: no snapshot store configured", matchID)
	}
	snap, err := e.store.LoadSnapshot(ctx, matchID)
	if err != nil {
		return fmt.Errorf("restore match %s: %w", matchID, err)
	}
	ok, err := snap.VerifyChecksum()
	if err != nil {
		return fmt.Errorf("restore match %s: %w", matchID, err)
	}
	if !ok {
		return fmt.Errorf("restore match %s: snapshot checksum mismatch", matchID)
	}
	m, err := RestoreMatch(snap, e.factory, e.rules, e.logger)
	if err != nil {
		return err
	}
	if err := e.host(m); err != nil {
		return err
	}
	if e.replays != nil {
		e.replays.Start(matchID)
		e.replays.Record(snap)
	}
	e.logger.Info("match restored", zap.String("match_id", matchID), zap.Uint64("seq", snap.Seq))
	return nil
}

// Remove stops hosting a match. Its persisted snapshot is kept.
func (e *Engine) Remove(matchID string) error {
	e.mu.Lock()
	h, ok := e.matches[matchID]
	delete(e.matches, matchID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	h.runner.Stop()
	e.logger.Info("match removed", zap.String("match_id", matchID))
	return nil
}

// Close stops every runner.
func (e *Engine) Close() {
	e.mu.Lock()
	hosted := e.matches
	e.matches = make(map[string]*hostedMatch)
	e.mu.Unlock()
	for _, h := range hosted {
		h.runner.Stop()
	}
}
