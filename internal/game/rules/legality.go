package rules

// AttackerInfo is the view of an attacking creature a legality check needs.
type AttackerInfo struct {
	ID                     string
	Name                   string
	Frozen                 bool
	Tapped                 bool
	SummoningSick          bool
	HasCharge              bool
	SwingsUsed             int
	Swings                 int
	CanOnlyAttackCreatures bool
	Flying                 bool
	Reach                  bool
	IgnoresTaunt           bool
}

// TargetInfo describes an attack target. A player target has IsPlayer set
// and no creature fields.
type TargetInfo struct {
	ID       string
	Name     string
	IsPlayer bool
	Stealth  bool
	Flying   bool
	Taunt    bool
}

// CheckAttack validates an attack declaration. defendingTaunts is the
// number of living Taunt creatures on the defending field. The returned
// error is a *Violation naming the first failed precondition.
func CheckAttack(a AttackerInfo, t TargetInfo, defendingTaunts int) error {
	switch {
	case a.Frozen:
		return Violationf(CodeAttackerFrozen, "%s is frozen", a.Name)
	case a.SwingsUsed >= a.Swings:
		return Violationf(CodeAlreadyAttacked, "%s has already attacked this turn", a.Name)
	case a.Tapped:
		return Violationf(CodeAttackerTapped, "%s is tapped", a.Name)
	case a.SummoningSick && !a.HasCharge:
		return Violationf(CodeSummoningSick, "%s was just played", a.Name)
	}

	if t.IsPlayer {
		if a.CanOnlyAttackCreatures {
			return Violationf(CodeCannotAttackPlayer, "%s can only attack creatures", a.Name)
		}
	} else {
		if t.Stealth {
			return Violationf(CodeTargetStealthed, "%s is stealthed", t.Name)
		}
		if t.Flying && !a.Flying && !a.Reach {
			return Violationf(CodeTargetFlying, "%s is flying", t.Name)
		}
	}

	if defendingTaunts > 0 && !a.IgnoresTaunt && (t.IsPlayer || !t.Taunt) {
		return Violationf(CodeMustAttackTaunt, "a creature with Taunt must be attacked first")
	}
	return nil
}
