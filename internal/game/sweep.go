package game

import (
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// SweepReport summarises the death sweeps of one action.
type SweepReport struct {
	Iterations int      `json:"iterations"`
	Died       []string `json:"died,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
}

type casualty struct {
	card *Card
	seat rules.Seat
}

// collectDead lists dead creatures, active side first, each side in field
// order.
func (m *Match) collectDead() []casualty {
	var dead []casualty
	active := m.turns.Active()
	for _, seat := range []rules.Seat{active, active.Opponent()} {
		for _, c := range m.sides[seat].Field.Cards() {
			if c.Dead() {
				dead = append(dead, casualty{card: c, seat: seat})
			}
		}
	}
	return dead
}

// deathSweep moves dead creatures to their graveyards and fires their
// deathrattles, repeating until no creature is dead or the iteration cap
// is reached. Past the cap the remaining dead are still removed but their
// deathrattles do not fire.
func (m *Match) deathSweep(report *SweepReport) {
	for {
		dead := m.collectDead()
		if len(dead) == 0 {
			return
		}
		ok, err := m.machine.Sweep()
		if err != nil {
			m.logger.Error("death sweep out of sequence", zap.Error(err))
			return
		}

		for _, d := range dead {
			side := m.sides[d.seat]
			side.Field.Remove(d.card.ID)
			side.Graveyard = append(side.Graveyard, d.card.Snapshot())
			died := rules.NewEvent(rules.EventCreatureDied, d.seat, "", d.card.ID)
			died.Card = d.card.Name()
			m.emit(died)
			report.Died = append(report.Died, d.card.ID)
		}

		if !ok {
			report.Truncated = true
			names := make([]string, 0, len(dead))
			for _, d := range dead {
				names = append(names, d.card.Name())
			}
			m.logger.Warn("death sweep truncated",
				zap.Int("cap", m.rules.SweepIterationCap),
				zap.Strings("skipped_deathrattles", names),
			)
			m.emit(rules.NewEventWithAmount(rules.EventSweepTruncated, m.turns.Active(), "", "", len(dead)))
			return
		}
		report.Iterations++

		if err := m.machine.Resolve(); err != nil {
			m.logger.Error("death sweep out of sequence", zap.Error(err))
			return
		}
		for _, d := range dead {
			effects := m.resolver().Resolve(d.card.Source(), abilities.TriggerDeath, m.context(d.seat))
			if len(effects) == 0 {
				continue
			}
			rattle := rules.NewEvent(rules.EventDeathrattle, d.seat, d.card.ID, "")
			rattle.Card = d.card.Name()
			m.emit(rattle)
			m.applyEffects(d.card, d.seat, effects, nil)
		}
		m.recomputeAuras()
	}
}
