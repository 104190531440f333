package game

// Player is the player-side view combat needs.
type Player interface {
	TakeDamage(amount int) int
	Heal(amount int) int
}

// AttackTarget is what an attack was declared against. Creature is nil
// when the player is attacked directly; Player is always the defending
// player and receives trample damage.
type AttackTarget struct {
	Creature *Card
	Player   Player
}

// CombatResult reports what an attack did. Dead creatures are identified
// but left in place for the death sweep.
type CombatResult struct {
	AttackerID     string `json:"attackerId"`
	TargetID       string `json:"targetId,omitempty"`
	TargetIsPlayer bool   `json:"targetIsPlayer"`

	DamageToTarget   int `json:"damageToTarget"`
	DamageToAttacker int `json:"damageToAttacker"`
	DamageToPlayer   int `json:"damageToPlayer"`
	TrampleDamage    int `json:"trampleDamage,omitempty"`

	AttackerShieldPopped bool `json:"attackerShieldPopped,omitempty"`
	TargetShieldPopped   bool `json:"targetShieldPopped,omitempty"`
	FirstStrike          bool `json:"firstStrike,omitempty"`
	AttackerEnraged      bool `json:"attackerEnraged,omitempty"`
	TargetEnraged        bool `json:"targetEnraged,omitempty"`
	AttackerFrozen       bool `json:"attackerFrozen,omitempty"`
	TargetFrozen         bool `json:"targetFrozen,omitempty"`
	StealthBroken        bool `json:"stealthBroken,omitempty"`

	LifestealHealed         int `json:"lifestealHealed,omitempty"`
	DefenderLifestealHealed int `json:"defenderLifestealHealed,omitempty"`

	AttackerDied bool `json:"attackerDied"`
	TargetDied   bool `json:"targetDied"`

	Swing      int  `json:"swing"`
	FinalSwing bool `json:"finalSwing"`
}

type strike struct {
	applied int
	popped  bool
	raw     int
}

// hit deals one side's damage to a creature, applying lethal touch when
// any damage got through.
func hit(from, to *Card, amount int) strike {
	s := strike{raw: amount}
	s.applied, s.popped = to.TakeDamage(amount)
	if s.applied > 0 && (from.Flags.LethalTouch || from.Flags.InstantKill) {
		to.Destroy()
	}
	return s
}

// ResolveAttack resolves one swing of attacker against target. controller
// is the attacker's player and receives lifesteal. Preconditions must
// already have been checked.
func ResolveAttack(attacker *Card, controller Player, target AttackTarget) CombatResult {
	res := CombatResult{AttackerID: attacker.ID}
	if attacker.Flags.ImmuneWhileAttacking {
		attacker.TempImmune = true
		defer func() { attacker.TempImmune = false }()
	}

	if attacker.Flags.Stealth {
		attacker.Flags.Stealth = false
		res.StealthBroken = true
	}

	if target.Creature == nil {
		res.TargetIsPlayer = true
		res.DamageToPlayer = target.Player.TakeDamage(attacker.Attack())
		if attacker.Flags.Lifesteal && res.DamageToPlayer > 0 {
			res.LifestealHealed = controller.Heal(res.DamageToPlayer)
		}
		finishSwing(attacker, &res)
		return res
	}

	defender := target.Creature
	res.TargetID = defender.ID
	defenderBefore := defender.CurrentHealth

	var toDefender, toAttacker strike
	switch {
	case attacker.Flags.FirstStrike && !defender.Flags.FirstStrike:
		res.FirstStrike = true
		toDefender = hit(attacker, defender, attacker.Attack())
		if !defender.Dead() {
			toAttacker = hit(defender, attacker, defender.Attack())
		}
	case defender.Flags.FirstStrike && !attacker.Flags.FirstStrike:
		res.FirstStrike = true
		toAttacker = hit(defender, attacker, defender.Attack())
		if !attacker.Dead() {
			toDefender = hit(attacker, defender, attacker.Attack())
		}
	default:
		// Both sides strike from their pre-combat attack values.
		atk, def := attacker.Attack(), defender.Attack()
		toDefender = hit(attacker, defender, atk)
		toAttacker = hit(defender, attacker, def)
	}

	res.DamageToTarget = toDefender.applied
	res.DamageToAttacker = toAttacker.applied
	res.TargetShieldPopped = toDefender.popped
	res.AttackerShieldPopped = toAttacker.popped

	res.TargetEnraged = defender.checkEnrage(toDefender.applied)
	res.AttackerEnraged = attacker.checkEnrage(toAttacker.applied)

	if attacker.Flags.FreezeOnHit && toDefender.applied > 0 && !defender.Dead() {
		defender.Freeze(false)
		res.TargetFrozen = true
	}
	if defender.Flags.FreezeOnHit && toAttacker.applied > 0 && !attacker.Dead() {
		attacker.Freeze(true)
		res.AttackerFrozen = true
	}

	if attacker.Flags.Trample && toDefender.applied > 0 && toDefender.applied == defenderBefore {
		if excess := toDefender.raw - defenderBefore; excess > 0 {
			res.TrampleDamage = target.Player.TakeDamage(excess)
			res.DamageToPlayer = res.TrampleDamage
		}
	}

	if attacker.Flags.Lifesteal {
		heal := toDefender.applied
		if heal > defender.HealthCap() {
			heal = defender.HealthCap()
		}
		heal += res.TrampleDamage
		if heal > 0 {
			res.LifestealHealed = controller.Heal(heal)
		}
	}
	if defender.Flags.Lifesteal && toAttacker.applied > 0 {
		heal := toAttacker.applied
		if heal > attacker.HealthCap() {
			heal = attacker.HealthCap()
		}
		res.DefenderLifestealHealed = target.Player.Heal(heal)
	}

	res.TargetDied = defender.Dead()
	finishSwing(attacker, &res)
	return res
}

// finishSwing updates the attacker's attack bookkeeping. A creature with a
// second swing stays ready after the first; after the final swing it is
// tapped unless it has Vigilance.
func finishSwing(attacker *Card, res *CombatResult) {
	attacker.SwingsUsed++
	res.Swing = attacker.SwingsUsed
	res.AttackerDied = attacker.Dead()

	if attacker.SwingsUsed < attacker.Flags.Swings() {
		if attacker.Flags.Windfury {
			attacker.WindfuryUsed = true
		}
		if attacker.Flags.DoubleStrike {
			attacker.DoubleStrikeUsed = true
		}
		attacker.HasAttackedThisTurn = false
		if !attacker.Frozen {
			attacker.Tapped = false
		}
		return
	}
	res.FinalSwing = true
	attacker.HasAttackedThisTurn = true
	attacker.Tapped = !attacker.Flags.Vigilance || attacker.Frozen
}
