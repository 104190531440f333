package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
)

type combatFixture struct {
	factory  *CardFactory
	attacker *Side
	defender *Side
}

func newCombatFixture(t *testing.T) *combatFixture {
	factory, _ := newTestFactory(t)
	return &combatFixture{
		factory:  factory,
		attacker: newSide(host, config.DefaultRules()),
		defender: newSide(guest, config.DefaultRules()),
	}
}

func (f *combatFixture) card(name string) *Card {
	return f.factory.NewCard(catalog.CardTemplate{Name: name})
}

func (f *combatFixture) fight(attacker, defender *Card) CombatResult {
	return ResolveAttack(attacker, f.attacker, AttackTarget{Creature: defender, Player: f.defender})
}

func (f *combatFixture) hitFace(attacker *Card) CombatResult {
	return ResolveAttack(attacker, f.attacker, AttackTarget{Player: f.defender})
}

func TestResolveAttackSimultaneousExchange(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Grunt"), f.card("Berserker")

	res := f.fight(a, d)
	assert.Equal(t, 2, res.DamageToTarget)
	assert.Equal(t, 2, res.DamageToAttacker, "damage is clamped to remaining health")
	assert.True(t, res.AttackerDied)
	assert.False(t, res.TargetDied)
	assert.True(t, res.TargetEnraged)
	assert.Equal(t, 5, d.Attack())
	assert.True(t, a.Dead(), "the dead are left in place for the sweep")
}

func TestResolveAttackDivineShield(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Grunt"), f.card("Shield Bearer")

	res := f.fight(a, d)
	assert.True(t, res.TargetShieldPopped)
	assert.Zero(t, res.DamageToTarget)
	assert.Equal(t, 3, d.CurrentHealth)
	assert.False(t, d.Flags.DivineShield)
	assert.True(t, res.AttackerDied)
}

func TestResolveAttackFirstStrike(t *testing.T) {
	t.Run("attacker strikes first and kills", func(t *testing.T) {
		f := newCombatFixture(t)
		a, d := f.card("Duelist"), f.card("Grunt")

		res := f.fight(a, d)
		assert.True(t, res.FirstStrike)
		assert.True(t, res.TargetDied)
		assert.Zero(t, res.DamageToAttacker)
		assert.Equal(t, 2, a.CurrentHealth)
	})

	t.Run("defender strikes first and kills", func(t *testing.T) {
		f := newCombatFixture(t)
		a, d := f.card("Grunt"), f.card("Duelist")

		res := f.fight(a, d)
		assert.True(t, res.FirstStrike)
		assert.True(t, res.AttackerDied)
		assert.Zero(t, res.DamageToTarget)
		assert.Equal(t, 2, d.CurrentHealth)
	})
}

func TestResolveAttackLethalTouch(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Viper"), f.card("Berserker")

	res := f.fight(a, d)
	assert.True(t, res.TargetDied)
	assert.Equal(t, 0, d.CurrentHealth)
	assert.False(t, res.TargetEnraged, "a destroyed creature does not enrage")

	shielded := f.card("Shield Bearer")
	res = f.fight(f.card("Viper"), shielded)
	assert.True(t, res.TargetShieldPopped)
	assert.False(t, res.TargetDied, "no damage got through the shield")
}

func TestResolveAttackFreezeOnHit(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Frost Fang"), f.card("Berserker")

	res := f.fight(a, d)
	assert.True(t, res.TargetFrozen)
	assert.True(t, d.Frozen)
	assert.False(t, d.FrozenOnOwnTurn)
	assert.True(t, d.Tapped)
}

func TestResolveAttackTrample(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Stomper"), f.card("Grunt")

	res := f.fight(a, d)
	assert.Equal(t, 3, res.TrampleDamage)
	assert.Equal(t, 27, f.defender.Health)
	assert.True(t, res.TargetDied)
}

func TestResolveAttackLifesteal(t *testing.T) {
	f := newCombatFixture(t)
	f.attacker.Health = 20

	res := f.fight(f.card("Leech"), f.card("Grunt"))
	assert.Equal(t, 2, res.LifestealHealed, "heal is capped at damage actually dealt")
	assert.Equal(t, 22, f.attacker.Health)

	res = f.hitFace(f.card("Leech"))
	assert.Equal(t, 3, res.DamageToPlayer)
	assert.Equal(t, 3, res.LifestealHealed)
	assert.Equal(t, 25, f.attacker.Health)
}

func TestResolveAttackWindfury(t *testing.T) {
	f := newCombatFixture(t)
	a := f.card("Twin Blade")

	first := f.hitFace(a)
	assert.Equal(t, 1, first.Swing)
	assert.False(t, first.FinalSwing)
	assert.False(t, a.Tapped)
	assert.False(t, a.HasAttackedThisTurn)
	assert.True(t, a.WindfuryUsed)

	second := f.hitFace(a)
	assert.Equal(t, 2, second.Swing)
	assert.True(t, second.FinalSwing)
	assert.True(t, a.Tapped)
	assert.True(t, a.HasAttackedThisTurn)
	assert.Equal(t, 26, f.defender.Health)
}

func TestResolveAttackVigilance(t *testing.T) {
	f := newCombatFixture(t)
	a := f.card("Sentinel")

	res := f.hitFace(a)
	assert.True(t, res.FinalSwing)
	assert.False(t, a.Tapped)
	assert.True(t, a.HasAttackedThisTurn)
}

func TestResolveAttackBreaksStealth(t *testing.T) {
	f := newCombatFixture(t)
	a := f.card("Shade")
	require.True(t, a.Flags.Stealth)

	res := f.hitFace(a)
	assert.True(t, res.StealthBroken)
	assert.False(t, a.Flags.Stealth)
}

func TestResolveAttackImmuneWhileAttacking(t *testing.T) {
	f := newCombatFixture(t)
	a, d := f.card("Phase Knight"), f.card("Berserker")

	res := f.fight(a, d)
	assert.Zero(t, res.DamageToAttacker)
	assert.Equal(t, 2, a.CurrentHealth)
	assert.False(t, a.TempImmune)
	assert.Equal(t, 2, res.DamageToTarget)
}
