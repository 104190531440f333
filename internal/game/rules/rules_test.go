package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusSubscribeTyped(t *testing.T) {
	bus := NewEventBus()

	drawn := 0
	all := 0
	typed := bus.SubscribeTyped(EventCardDrawn, func(e Event) { drawn++ })
	bus.Subscribe(func(e Event) { all++ })

	bus.Publish(NewEvent(EventCardDrawn, SeatHost, "", "c1"))
	bus.Publish(NewEventWithAmount(EventPlayerDamaged, SeatGuest, "c1", "", 3))
	if drawn != 1 {
		t.Fatalf("expected 1 draw event, got %d", drawn)
	}
	if all != 2 {
		t.Fatalf("expected 2 events, got %d", all)
	}

	bus.Unsubscribe(typed)
	bus.Publish(NewEvent(EventCardDrawn, SeatHost, "", "c2"))
	if drawn != 1 {
		t.Fatalf("expected draw count to stay 1 after unsubscribe, got %d", drawn)
	}
}

func TestEventBusIgnoresNilListener(t *testing.T) {
	bus := NewEventBus()
	assert.Equal(t, -1, bus.Subscribe(nil))
	assert.Equal(t, -1, bus.SubscribeTyped(EventGameOver, nil))
}

func TestTurnManagerAlternates(t *testing.T) {
	tm := NewTurnManager(SeatHost)
	if tm.TurnNumber() != 1 || tm.Active() != SeatHost {
		t.Fatalf("expected turn 1 for host, got %s", tm)
	}

	assert.Equal(t, SeatGuest, tm.Advance())
	assert.Equal(t, SeatHost, tm.Advance())
	assert.Equal(t, 3, tm.TurnNumber())
	assert.Equal(t, 2, tm.SeatTurns(SeatHost))
	assert.Equal(t, 1, tm.SeatTurns(SeatGuest))

	restored := RestoreTurnManager(tm.TurnNumber(), tm.Active(), map[Seat]int{SeatHost: 2, SeatGuest: 1})
	assert.Equal(t, SeatGuest, restored.Advance())
	assert.Equal(t, 2, restored.SeatTurns(SeatGuest))
}

func TestActionMachineCapsSweeps(t *testing.T) {
	m := NewActionMachine(2)
	require.NoError(t, m.Declare())
	assert.Error(t, m.Declare())
	require.NoError(t, m.Resolve())

	ok, err := m.Sweep()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, m.Resolve())
	ok, _ = m.Sweep()
	assert.True(t, ok)
	ok, _ = m.Sweep()
	assert.False(t, ok)
	assert.True(t, m.Truncated())
	assert.Equal(t, 2, m.Sweeps())

	m.Finish()
	assert.Equal(t, PhaseIdle, m.Phase())
	require.NoError(t, m.Declare())
	assert.False(t, m.Truncated())
	assert.Equal(t, 0, m.Sweeps())
}

func TestActionMachineRejectsOutOfOrder(t *testing.T) {
	m := NewActionMachine(5)
	assert.True(t, IsCode(m.Resolve(), CodeIllegalPhase))
	_, err := m.Sweep()
	assert.True(t, IsCode(err, CodeIllegalPhase))
}

func TestCheckAttack(t *testing.T) {
	ready := AttackerInfo{Name: "Imp", Swings: 1}
	creature := TargetInfo{Name: "Wisp"}
	player := TargetInfo{IsPlayer: true}

	tests := []struct {
		name     string
		attacker AttackerInfo
		target   TargetInfo
		taunts   int
		want     Code
	}{
		{"frozen", AttackerInfo{Name: "A", Frozen: true, Swings: 1}, creature, 0, CodeAttackerFrozen},
		{"tapped", AttackerInfo{Name: "A", Tapped: true, Swings: 1}, creature, 0, CodeAttackerTapped},
		{"already attacked", AttackerInfo{Name: "A", SwingsUsed: 1, Swings: 1}, creature, 0, CodeAlreadyAttacked},
		{"summoning sick", AttackerInfo{Name: "A", SummoningSick: true, Swings: 1}, player, 0, CodeSummoningSick},
		{"charge ignores sickness", AttackerInfo{Name: "A", SummoningSick: true, HasCharge: true, Swings: 1}, player, 0, ""},
		{"creatures only", AttackerInfo{Name: "A", CanOnlyAttackCreatures: true, Swings: 1}, player, 0, CodeCannotAttackPlayer},
		{"stealth", ready, TargetInfo{Name: "S", Stealth: true}, 0, CodeTargetStealthed},
		{"flying", ready, TargetInfo{Name: "F", Flying: true}, 0, CodeTargetFlying},
		{"reach hits flying", AttackerInfo{Name: "R", Reach: true, Swings: 1}, TargetInfo{Name: "F", Flying: true}, 0, ""},
		{"taunt blocks creature", ready, creature, 1, CodeMustAttackTaunt},
		{"taunt blocks player", ready, player, 1, CodeMustAttackTaunt},
		{"taunt target allowed", ready, TargetInfo{Name: "T", Taunt: true}, 1, ""},
		{"bypass taunt", AttackerInfo{Name: "B", IgnoresTaunt: true, Swings: 1}, player, 1, ""},
		{"second windfury swing", AttackerInfo{Name: "W", SwingsUsed: 1, Swings: 2}, player, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAttack(tt.attacker, tt.target, tt.taunts)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsCode(err, tt.want), "got %v", err)
		})
	}
}

func TestViolationError(t *testing.T) {
	v := Violationf(CodeNotEnoughMana, "need %d", 3)
	assert.Equal(t, "NOT_ENOUGH_MANA: need 3", v.Error())
	got, ok := AsViolation(v)
	require.True(t, ok)
	assert.Equal(t, CodeNotEnoughMana, got.Code)
	assert.Equal(t, "MATCH_OVER", (&Violation{Code: CodeMatchOver}).Error())
}
