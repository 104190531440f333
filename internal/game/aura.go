package game

import (
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// recomputeAuras rebuilds every creature's aura accumulators from the
// auras currently in play. Health gained from a new aura is added to
// CurrentHealth; losing an aura only clamps CurrentHealth to the new cap.
func (m *Match) recomputeAuras() {
	type bonus struct {
		attack, health int
		charge         bool
	}
	bonuses := make(map[string]*bonus)

	for _, seat := range []rules.Seat{rules.SeatHost, rules.SeatGuest} {
		side := m.sides[seat]
		creatures := side.Field.Cards()
		for _, c := range creatures {
			bonuses[c.ID] = &bonus{}
		}
		for _, src := range creatures {
			if src.Dead() {
				continue
			}
			effects := m.resolver().Resolve(src.Source(), abilities.TriggerAura, m.context(seat))
			for _, e := range effects {
				for _, dst := range creatures {
					if e.Scope == abilities.ScopeOtherFriendly && dst.ID == src.ID {
						continue
					}
					b := bonuses[dst.ID]
					switch e.Kind {
					case abilities.EffectAuraStats:
						b.attack += e.Attack
						b.health += e.Health
					case abilities.EffectAuraCharge:
						b.charge = true
					}
				}
			}
		}
	}

	for _, seat := range []rules.Seat{rules.SeatHost, rules.SeatGuest} {
		for _, c := range m.sides[seat].Field.Cards() {
			b := bonuses[c.ID]
			delta := b.health - c.AuraHealthBonus
			c.AuraAttackBonus = b.attack
			c.AuraHealthBonus = b.health
			c.AuraCharge = b.charge
			if c.Dead() {
				continue
			}
			if delta > 0 {
				c.CurrentHealth += delta
			}
			if c.CurrentHealth > c.HealthCap() {
				c.CurrentHealth = c.HealthCap()
			}
		}
	}
}
