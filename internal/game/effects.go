package game

import (
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// applyEffects applies resolved effects in order. src is the card the
// effects come from; for a deathrattle it has already left the field.
// Scopes are relative to seat, the source's controller.
func (m *Match) applyEffects(src *Card, seat rules.Seat, effects []abilities.Effect, target *Target) {
	for _, e := range effects {
		m.applyEffect(src, seat, e, target)
	}
}

func (m *Match) applyEffect(src *Card, seat rules.Seat, e abilities.Effect, target *Target) {
	side := m.sides[seat]
	opp := m.sides[seat.Opponent()]

	switch e.Kind {
	case abilities.EffectNone:
		evt := rules.NewEvent(rules.EventAbilityNoEffect, seat, src.ID, "")
		evt.Card = src.Name()
		evt.Data = e.Text
		m.emit(evt)

	case abilities.EffectDraw:
		m.draw(seat, e.Amount)

	case abilities.EffectDamage:
		amount := e.Amount
		if !src.IsCreature() {
			amount += side.SpellPower()
		}
		m.applyDamage(src, seat, e.Scope, amount, target)

	case abilities.EffectHeal:
		switch {
		case e.Scope == abilities.ScopeTarget && target == nil:
			m.skipUntargeted(src, e)
		case e.Scope == abilities.ScopeFriendlyPlayer, target == nil:
			m.healPlayer(src, seat, e.Amount)
		case target.IsPlayer():
			m.healPlayer(src, target.Seat, e.Amount)
		default:
			if c, ok := m.sides[target.Seat].Field.Get(target.CardID); ok {
				if healed := c.Heal(e.Amount); healed > 0 {
					m.emit(rules.NewEventWithAmount(rules.EventCreatureHealed, target.Seat, src.ID, c.ID, healed))
				}
			}
		}

	case abilities.EffectSummon:
		if e.Token == nil {
			return
		}
		for i := 0; i < e.Token.Count; i++ {
			tok := m.factory.NewToken(*e.Token)
			tok.JustPlayed = true
			if !side.Field.Add(tok) {
				m.logger.Info("field full, token discarded",
					zap.String("seat", string(seat)),
					zap.String("token", tok.Name()),
				)
				lost := rules.NewEvent(rules.EventTokenLost, seat, src.ID, "")
				lost.Card = tok.Name()
				m.emit(lost)
				continue
			}
			summoned := rules.NewEvent(rules.EventTokenSummoned, seat, src.ID, tok.ID)
			summoned.Card = tok.Name()
			m.emit(summoned)
		}
		m.recomputeAuras()

	case abilities.EffectReturnToHand:
		if src.Token {
			return
		}
		if _, onField := side.Field.Remove(src.ID); !onField {
			// A deathrattle source is already in the graveyard.
			side.takeFromGraveyard(src.Name())
		}
		m.addToHand(seat, m.factory.FromSnapshot(src.Snapshot()), rules.EventReturnedHand)

	case abilities.EffectLoseHealth:
		lost := opp.TakeDamage(e.Amount)
		m.emit(rules.NewEventWithAmount(rules.EventPlayerDamaged, opp.Seat, src.ID, "", lost))

	case abilities.EffectFreeze:
		switch e.Scope {
		case abilities.ScopeAllEnemyCreatures:
			for _, c := range opp.Field.Cards() {
				m.freeze(src, opp.Seat, c)
			}
		default:
			if c, owner, ok := m.targetCreature(target); ok {
				m.freeze(src, owner, c)
			}
		}

	case abilities.EffectBuffAttack:
		c := src
		if e.Scope == abilities.ScopeTarget {
			var ok bool
			if c, _, ok = m.targetCreature(target); !ok {
				return
			}
		}
		c.AttackBuff += e.Amount

	case abilities.EffectGainMana:
		side.Mana.Gain(e.Amount)

	case abilities.EffectAuraStats, abilities.EffectAuraCharge:
		m.recomputeAuras()
	}
}

func (m *Match) applyDamage(src *Card, seat rules.Seat, scope abilities.Scope, amount int, target *Target) {
	opp := m.sides[seat.Opponent()]
	switch scope {
	case abilities.ScopeEnemyPlayer:
		m.damagePlayer(src, opp.Seat, amount)
	case abilities.ScopeAllEnemies:
		for _, c := range opp.Field.Cards() {
			m.damageCreature(src, opp.Seat, c, amount)
		}
		m.damagePlayer(src, opp.Seat, amount)
	case abilities.ScopeAllEnemyCreatures:
		for _, c := range opp.Field.Cards() {
			m.damageCreature(src, opp.Seat, c, amount)
		}
	case abilities.ScopeAllCreatures:
		for _, s := range []rules.Seat{seat, opp.Seat} {
			for _, c := range m.sides[s].Field.Cards() {
				m.damageCreature(src, s, c, amount)
			}
		}
	case abilities.ScopeRandomEnemy:
		var living []*Card
		for _, c := range opp.Field.Cards() {
			if !c.Dead() {
				living = append(living, c)
			}
		}
		if pick := m.rng.IntN(len(living) + 1); pick < len(living) {
			m.damageCreature(src, opp.Seat, living[pick], amount)
		} else {
			m.damagePlayer(src, opp.Seat, amount)
		}
	default:
		// Both scopes hit the declared target. Without one, unspecified
		// damage goes to the opposing player and targeted damage fizzles.
		switch {
		case target == nil && scope == abilities.ScopeTarget:
			m.skipUntargeted(src, abilities.Effect{Kind: abilities.EffectDamage, Scope: scope, Amount: amount})
		case target == nil:
			m.damagePlayer(src, opp.Seat, amount)
		case target.IsPlayer():
			m.damagePlayer(src, target.Seat, amount)
		default:
			if c, ok := m.sides[target.Seat].Field.Get(target.CardID); ok {
				m.damageCreature(src, target.Seat, c, amount)
			}
		}
	}
}

func (m *Match) damageCreature(src *Card, owner rules.Seat, c *Card, amount int) {
	if c.Dead() {
		return
	}
	applied, popped := c.TakeDamage(amount)
	if popped {
		m.emit(rules.NewEvent(rules.EventShieldPopped, owner, src.ID, c.ID))
	}
	if applied > 0 {
		m.emit(rules.NewEventWithAmount(rules.EventDamageDealt, owner, src.ID, c.ID, applied))
	}
	if c.checkEnrage(applied) {
		m.emit(rules.NewEvent(rules.EventEnraged, owner, src.ID, c.ID))
	}
}

func (m *Match) damagePlayer(src *Card, seat rules.Seat, amount int) {
	dealt := m.sides[seat].TakeDamage(amount)
	m.emit(rules.NewEventWithAmount(rules.EventPlayerDamaged, seat, src.ID, "", dealt))
}

func (m *Match) healPlayer(src *Card, seat rules.Seat, amount int) {
	healed := m.sides[seat].Heal(amount)
	m.emit(rules.NewEventWithAmount(rules.EventPlayerHealed, seat, src.ID, "", healed))
}

func (m *Match) freeze(src *Card, owner rules.Seat, c *Card) {
	if c.Dead() {
		return
	}
	c.Freeze(owner == m.turns.Active())
	m.emit(rules.NewEvent(rules.EventFrozen, owner, src.ID, c.ID))
}

func (m *Match) targetCreature(target *Target) (*Card, rules.Seat, bool) {
	if target == nil || target.IsPlayer() || !target.Seat.Valid() {
		return nil, "", false
	}
	c, ok := m.sides[target.Seat].Field.Get(target.CardID)
	return c, target.Seat, ok
}

func (m *Match) skipUntargeted(src *Card, e abilities.Effect) {
	m.logger.Debug("targeted effect skipped without a target",
		zap.String("card", src.Name()),
		zap.String("effect", string(e.Kind)),
	)
}
