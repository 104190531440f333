package game

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// Status is the lifecycle state of a match.
type Status string

const (
	StatusWaitingForDecks Status = "waitingForDecks"
	StatusInProgress      Status = "inProgress"
	StatusOver            Status = "over"
)

// ErrMatchPaused is returned for actions on a match waiting for a resync.
var ErrMatchPaused = &rules.Violation{Code: rules.CodeMatchPaused, Message: "match is paused awaiting resync"}

// Target addresses a player or a creature. An empty CardID targets the
// player in Seat.
type Target struct {
	Seat   rules.Seat `json:"seat"`
	CardID string     `json:"cardId,omitempty"`
}

// IsPlayer reports whether the target is a player.
func (t Target) IsPlayer() bool { return t.CardID == "" }

// ActionResult is what an accepted action produced.
type ActionResult struct {
	Seq    uint64        `json:"seq"`
	Events []rules.Event `json:"events"`
	Combat *CombatResult `json:"combat,omitempty"`
	Sweep  SweepReport   `json:"sweep"`
}

// Match is the authoritative state of one game. It is not safe for
// concurrent use; the engine serialises actions through a Runner.
type Match struct {
	ID string

	logger  *zap.Logger
	factory *CardFactory
	rules   config.RulesConfig

	sides   map[rules.Seat]*Side
	turns   *rules.TurnManager
	machine *rules.ActionMachine
	bus     *rules.EventBus
	pending []rules.Event

	status Status
	winner rules.Seat
	paused bool
	seq    uint64
	seed   uint64
	rng    *rand.Rand
}

// NewMatch creates a match waiting for both decks.
func NewMatch(id string, factory *CardFactory, r config.RulesConfig, logger *zap.Logger) *Match {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Match{
		ID:      id,
		logger:  logger.With(zap.String("match_id", id)),
		factory: factory,
		rules:   r,
		sides: map[rules.Seat]*Side{
			rules.SeatHost:  newSide(rules.SeatHost, r),
			rules.SeatGuest: newSide(rules.SeatGuest, r),
		},
		turns:   rules.NewTurnManager(rules.SeatHost),
		machine: rules.NewActionMachine(r.SweepIterationCap),
		bus:     rules.NewEventBus(),
		status:  StatusWaitingForDecks,
		seed:    seedFor(id),
	}
	m.rng = rand.New(rand.NewPCG(m.seed, 0))
	return m
}

func seedFor(id string) uint64 {
	sum := blake2b.Sum256([]byte(id))
	return binary.LittleEndian.Uint64(sum[:8])
}

// Events returns the match event bus.
func (m *Match) Events() *rules.EventBus { return m.bus }

// Side returns one side of the match.
func (m *Match) Side(seat rules.Seat) *Side { return m.sides[seat] }

// Status returns the lifecycle state.
func (m *Match) Status() Status { return m.status }

// Winner returns the winning seat once the match is over. A draw has no
// winner.
func (m *Match) Winner() rules.Seat { return m.winner }

// Active returns the seat whose turn it is.
func (m *Match) Active() rules.Seat { return m.turns.Active() }

// Turn returns the current turn number.
func (m *Match) Turn() int { return m.turns.TurnNumber() }

// Seq returns the number of accepted actions.
func (m *Match) Seq() uint64 { return m.seq }

// Paused reports whether the match waits for a resync.
func (m *Match) Paused() bool { return m.paused }

// SetPaused pauses or resumes the match.
func (m *Match) SetPaused(paused bool) { m.paused = paused }

// Phase returns the action machine phase.
func (m *Match) Phase() rules.ActionPhase { return m.machine.Phase() }

func (m *Match) resolver() *abilities.Resolver { return m.factory.Resolver() }

func (m *Match) context(seat rules.Seat) abilities.Context {
	return abilities.Context{MainColors: m.sides[seat].MainColors()}
}

func (m *Match) emit(evt rules.Event) {
	m.pending = append(m.pending, evt)
	m.bus.Publish(evt)
}

// act runs fn as one action. fn must check every precondition before it
// mutates state, so a rejected action leaves the match untouched.
func (m *Match) act(seat rules.Seat, needTurn bool, fn func(res *ActionResult) error) (*ActionResult, error) {
	if !seat.Valid() {
		return nil, rules.Violationf(rules.CodeInvalidTarget, "unknown seat %q", seat)
	}
	if m.status == StatusOver {
		return nil, rules.Violationf(rules.CodeMatchOver, "match %s is over", m.ID)
	}
	if m.paused {
		return nil, ErrMatchPaused
	}
	if needTurn {
		if m.status != StatusInProgress {
			return nil, rules.Violationf(rules.CodeMatchNotStarted, "match %s has not started", m.ID)
		}
		if m.turns.Active() != seat {
			return nil, rules.Violationf(rules.CodeNotYourTurn, "it is %s's turn", m.turns.Active())
		}
	}

	if err := m.machine.Declare(); err != nil {
		return nil, err
	}
	defer m.machine.Finish()

	m.pending = nil
	m.rng = rand.New(rand.NewPCG(m.seed, m.seq))
	res := &ActionResult{}
	if err := fn(res); err != nil {
		var v *rules.Violation
		if !errors.As(err, &v) {
			m.logger.Error("action failed", zap.String("seat", string(seat)), zap.Error(err))
		}
		return nil, err
	}
	m.seq++
	res.Seq = m.seq
	res.Events = m.pending
	m.pending = nil
	return res, nil
}

// InitDeck validates and installs a side's deck. Once both decks are in
// the match starts: opening hands are drawn and the host takes turn 1.
func (m *Match) InitDeck(seat rules.Seat, names []string) (*ActionResult, error) {
	return m.act(seat, false, func(res *ActionResult) error {
		side := m.sides[seat]
		if side.Ready || m.status != StatusWaitingForDecks {
			return rules.Violationf(rules.CodeDeckAlreadySet, "%s already has a deck", seat)
		}
		templates, err := catalog.ValidateDeck(m.factory.Catalog(), names, catalog.DeckRules{
			MinSize:   m.rules.MinDeckSize,
			MaxSize:   m.rules.MaxDeckSize,
			MaxCopies: m.rules.MaxCopies,
		})
		if err != nil {
			return rules.Violationf(rules.CodeInvalidDeck, "%v", err)
		}

		side.DeckList = templates
		side.Deck = make([]*Card, 0, len(templates))
		for _, t := range templates {
			side.Deck = append(side.Deck, m.factory.NewCard(t))
		}
		if m.rules.ShuffleDecks {
			m.rng.Shuffle(len(side.Deck), func(i, j int) {
				side.Deck[i], side.Deck[j] = side.Deck[j], side.Deck[i]
			})
		}
		side.Ready = true
		m.logger.Info("deck installed", zap.String("seat", string(seat)), zap.Int("cards", len(side.Deck)))

		if m.sides[rules.SeatHost].Ready && m.sides[rules.SeatGuest].Ready {
			m.start()
		}
		return nil
	})
}

func (m *Match) start() {
	m.status = StatusInProgress
	m.turns = rules.NewTurnManager(rules.SeatHost)
	m.emit(rules.NewEvent(rules.EventMatchStarted, rules.SeatHost, "", ""))
	m.draw(rules.SeatHost, m.rules.FirstHandSize)
	m.draw(rules.SeatGuest, m.rules.SecondHandSize)
	m.beginTurn(rules.SeatHost)
	m.checkGameOver()
	m.logger.Info("match started")
}

// PlayCard plays a card from the active side's hand. target is optional
// and is used by targeted effects.
func (m *Match) PlayCard(seat rules.Seat, cardID string, target *Target) (*ActionResult, error) {
	return m.act(seat, true, func(res *ActionResult) error {
		side := m.sides[seat]
		i := side.handIndex(cardID)
		if i < 0 {
			return rules.Violationf(rules.CodeCardNotInHand, "card %s is not in hand", cardID)
		}
		card := side.Hand[i]
		if !side.Mana.CanSpend(card.Template.Cost) {
			return rules.Violationf(rules.CodeNotEnoughMana, "%s costs %d, %d available", card.Name(), card.Template.Cost, side.Mana.Current)
		}
		if card.IsCreature() && side.Field.Full() {
			return rules.Violationf(rules.CodeFieldFull, "field is full")
		}
		isSpell := !card.IsCreature()
		effects := m.resolver().Resolve(card.Source(), abilities.TriggerPlay, m.context(seat))
		if err := m.checkPlayTarget(seat, card, effects, target, isSpell); err != nil {
			return err
		}

		side.Mana.Spend(card.Template.Cost)
		side.removeFromHand(card.ID)
		if err := m.machine.Resolve(); err != nil {
			return err
		}
		played := rules.NewEventWithAmount(rules.EventCardPlayed, seat, card.ID, "", card.Template.Cost)
		played.Card = card.Name()
		m.emit(played)
		for _, e := range effects {
			if e.Splash {
				bonus := rules.NewEvent(rules.EventSplashBonus, seat, card.ID, "")
				bonus.Card = card.Name()
				m.emit(bonus)
				break
			}
		}

		if card.IsCreature() {
			card.JustPlayed = true
			side.Field.Add(card)
			m.recomputeAuras()
		} else {
			cast := rules.NewEvent(rules.EventSpellCast, seat, card.ID, "")
			cast.Card = card.Name()
			m.emit(cast)
		}
		m.applyEffects(card, seat, effects, target)
		if isSpell {
			side.Graveyard = append(side.Graveyard, card.Snapshot())
		}

		m.deathSweep(&res.Sweep)
		m.recomputeAuras()
		m.checkGameOver()
		return nil
	})
}

func (m *Match) checkPlayTarget(seat rules.Seat, card *Card, effects []abilities.Effect, target *Target, isSpell bool) error {
	needsTarget, needsCreature := false, false
	for _, e := range effects {
		if e.Scope != abilities.ScopeTarget {
			continue
		}
		needsTarget = true
		if e.Kind == abilities.EffectFreeze || e.Kind == abilities.EffectBuffAttack {
			needsCreature = true
		}
	}
	if target == nil {
		if needsTarget && isSpell {
			return rules.Violationf(rules.CodeTargetRequired, "%s needs a target", card.Name())
		}
		return nil
	}
	if !target.Seat.Valid() {
		return rules.Violationf(rules.CodeInvalidTarget, "unknown seat %q", target.Seat)
	}
	if target.IsPlayer() {
		if needsCreature {
			return rules.Violationf(rules.CodeInvalidTarget, "%s must target a creature", card.Name())
		}
		return nil
	}
	c, ok := m.sides[target.Seat].Field.Get(target.CardID)
	if !ok {
		return rules.Violationf(rules.CodeInvalidTarget, "no creature %s on %s's field", target.CardID, target.Seat)
	}
	if target.Seat != seat && c.Flags.Stealth {
		return rules.Violationf(rules.CodeTargetStealthed, "%s is stealthed", c.Name())
	}
	if isSpell && c.Flags.SpellShield {
		return rules.Violationf(rules.CodeTargetSpellShielded, "%s cannot be targeted by spells", c.Name())
	}
	return nil
}

// DeclareAttack resolves an attack by one of the active side's creatures.
// target must be on the opposing side.
func (m *Match) DeclareAttack(seat rules.Seat, attackerID string, target Target) (*ActionResult, error) {
	return m.act(seat, true, func(res *ActionResult) error {
		side := m.sides[seat]
		opp := m.sides[seat.Opponent()]

		attacker, ok := side.Field.Get(attackerID)
		if !ok {
			return rules.Violationf(rules.CodeUnknownAttacker, "no creature %s on your field", attackerID)
		}
		if target.Seat != seat.Opponent() {
			return rules.Violationf(rules.CodeInvalidTarget, "attacks must target the opposing side")
		}
		info := rules.TargetInfo{IsPlayer: true, Name: string(target.Seat)}
		var defender *Card
		if !target.IsPlayer() {
			defender, ok = opp.Field.Get(target.CardID)
			if !ok {
				return rules.Violationf(rules.CodeInvalidTarget, "no creature %s on the opposing field", target.CardID)
			}
			info = rules.TargetInfo{
				ID:      defender.ID,
				Name:    defender.Name(),
				Stealth: defender.Flags.Stealth,
				Flying:  defender.Flags.Flying,
				Taunt:   defender.Flags.Taunt,
			}
		}
		if err := rules.CheckAttack(attackerInfo(attacker), info, opp.TauntCount()); err != nil {
			return err
		}

		if err := m.machine.Resolve(); err != nil {
			return err
		}
		declared := rules.NewEvent(rules.EventAttackDeclared, seat, attacker.ID, target.CardID)
		declared.Card = attacker.Name()
		m.emit(declared)

		triggers := m.resolver().Resolve(attacker.Source(), abilities.TriggerAttack, m.context(seat))
		if len(triggers) > 0 {
			m.applyEffects(attacker, seat, triggers, &target)
			m.deathSweep(&res.Sweep)
			m.recomputeAuras()
			if m.checkGameOver() {
				return nil
			}
		}

		_, attackerAlive := side.Field.Get(attacker.ID)
		defenderAlive := true
		if defender != nil {
			_, defenderAlive = opp.Field.Get(defender.ID)
		}
		if !attackerAlive || !defenderAlive || m.machine.Truncated() {
			if attackerAlive {
				result := CombatResult{AttackerID: attacker.ID}
				finishSwing(attacker, &result)
				res.Combat = &result
			}
			return nil
		}

		result := ResolveAttack(attacker, side, AttackTarget{Creature: defender, Player: opp})
		res.Combat = &result
		m.emitCombat(seat, attacker, defender, result)

		m.deathSweep(&res.Sweep)
		m.recomputeAuras()
		m.checkGameOver()
		return nil
	})
}

func attackerInfo(c *Card) rules.AttackerInfo {
	return rules.AttackerInfo{
		ID:                     c.ID,
		Name:                   c.Name(),
		Frozen:                 c.Frozen,
		Tapped:                 c.Tapped,
		SummoningSick:          c.JustPlayed,
		HasCharge:              c.HasCharge(),
		SwingsUsed:             c.SwingsUsed,
		Swings:                 c.Flags.Swings(),
		CanOnlyAttackCreatures: c.Flags.CanOnlyAttackCreatures,
		Flying:                 c.Flags.Flying,
		Reach:                  c.Flags.Reach,
		IgnoresTaunt:           c.Flags.IgnoresTaunt,
	}
}

func (m *Match) emitCombat(seat rules.Seat, attacker, defender *Card, r CombatResult) {
	opp := seat.Opponent()
	if r.StealthBroken {
		m.emit(rules.NewEvent(rules.EventStealthBroken, seat, attacker.ID, ""))
	}
	if r.TargetShieldPopped {
		m.emit(rules.NewEvent(rules.EventShieldPopped, opp, attacker.ID, defender.ID))
	}
	if r.AttackerShieldPopped {
		m.emit(rules.NewEvent(rules.EventShieldPopped, seat, defender.ID, attacker.ID))
	}
	if r.DamageToTarget > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventDamageDealt, opp, attacker.ID, defender.ID, r.DamageToTarget))
	}
	if r.DamageToAttacker > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventDamageDealt, seat, defender.ID, attacker.ID, r.DamageToAttacker))
	}
	if r.DamageToPlayer > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventPlayerDamaged, opp, attacker.ID, "", r.DamageToPlayer))
	}
	if r.TargetEnraged {
		m.emit(rules.NewEvent(rules.EventEnraged, opp, "", defender.ID))
	}
	if r.AttackerEnraged {
		m.emit(rules.NewEvent(rules.EventEnraged, seat, "", attacker.ID))
	}
	if r.TargetFrozen {
		m.emit(rules.NewEvent(rules.EventFrozen, opp, attacker.ID, defender.ID))
	}
	if r.AttackerFrozen {
		m.emit(rules.NewEvent(rules.EventFrozen, seat, defender.ID, attacker.ID))
	}
	if r.LifestealHealed > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventPlayerHealed, seat, attacker.ID, "", r.LifestealHealed))
	}
	if r.DefenderLifestealHealed > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventPlayerHealed, opp, defender.ID, "", r.DefenderLifestealHealed))
	}
}

// EndTurn runs end-of-turn triggers and upkeep for the active side and
// starts the opponent's turn.
func (m *Match) EndTurn(seat rules.Seat) (*ActionResult, error) {
	return m.act(seat, true, func(res *ActionResult) error {
		side := m.sides[seat]
		if err := m.machine.Resolve(); err != nil {
			return err
		}

		for _, c := range side.Field.Cards() {
			effects := m.resolver().Resolve(c.Source(), abilities.TriggerEndOfTurn, m.context(seat))
			if len(effects) > 0 && !c.Dead() {
				m.applyEffects(c, seat, effects, nil)
			}
		}
		m.deathSweep(&res.Sweep)
		m.recomputeAuras()
		if m.checkGameOver() {
			return nil
		}

		for _, c := range side.Field.Cards() {
			regenerated, thawed := c.endTurn()
			if regenerated {
				m.emit(rules.NewEvent(rules.EventRegenerated, seat, "", c.ID))
			}
			if thawed {
				m.emit(rules.NewEvent(rules.EventThawed, seat, "", c.ID))
			}
		}
		m.emit(rules.NewEvent(rules.EventTurnEnded, seat, "", ""))

		next := m.turns.Advance()
		m.beginTurn(next)
		m.checkGameOver()
		return nil
	})
}

func (m *Match) beginTurn(seat rules.Seat) {
	side := m.sides[seat]
	side.Mana.StartTurn()
	for _, c := range side.Field.Cards() {
		c.startTurn()
	}
	m.emit(rules.NewEventWithAmount(rules.EventTurnStarted, seat, "", "", m.turns.TurnNumber()))
	m.draw(seat, 1)
}

// draw moves n cards from the front of the deck to the hand. An empty deck
// deals increasing fatigue damage; a full hand burns the drawn card.
func (m *Match) draw(seat rules.Seat, n int) {
	side := m.sides[seat]
	for i := 0; i < n; i++ {
		if len(side.Deck) == 0 {
			side.Fatigue++
			dealt := side.TakeDamage(side.Fatigue)
			m.emit(rules.NewEventWithAmount(rules.EventFatigue, seat, "", "", dealt))
			continue
		}
		card := side.Deck[0]
		side.Deck = side.Deck[1:]
		m.addToHand(seat, card, rules.EventCardDrawn)
	}
}

func (m *Match) addToHand(seat rules.Seat, card *Card, eventType rules.EventType) {
	side := m.sides[seat]
	if len(side.Hand) >= m.rules.HandCapacity {
		side.Graveyard = append(side.Graveyard, card.Snapshot())
		m.logger.Info("hand full, card burned",
			zap.String("seat", string(seat)),
			zap.String("card", card.Name()),
		)
		burned := rules.NewEvent(rules.EventCardBurned, seat, "", card.ID)
		burned.Card = card.Name()
		m.emit(burned)
		return
	}
	side.Hand = append(side.Hand, card)
	evt := rules.NewEvent(eventType, seat, "", card.ID)
	evt.Card = card.Name()
	m.emit(evt)
}

// checkGameOver ends the match when a player is at zero health.
func (m *Match) checkGameOver() bool {
	if m.status == StatusOver {
		return true
	}
	hostDead := m.sides[rules.SeatHost].Health <= 0
	guestDead := m.sides[rules.SeatGuest].Health <= 0
	if !hostDead && !guestDead {
		return false
	}
	m.status = StatusOver
	switch {
	case hostDead && guestDead:
		m.winner = ""
	case hostDead:
		m.winner = rules.SeatGuest
	default:
		m.winner = rules.SeatHost
	}
	evt := rules.NewEvent(rules.EventGameOver, m.winner, "", "")
	evt.Data = string(m.winner)
	m.emit(evt)
	m.logger.Info("match over", zap.String("winner", string(m.winner)))
	return true
}
