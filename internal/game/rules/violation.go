package rules

import (
	"errors"
	"fmt"
)

// Code names a rejected precondition. Codes are stable strings so the
// presentation layer and the sync protocol can switch on them.
type Code string

const (
	CodeNotYourTurn         Code = "NOT_YOUR_TURN"
	CodeMatchOver           Code = "MATCH_OVER"
	CodeMatchNotStarted     Code = "MATCH_NOT_STARTED"
	CodeMatchPaused         Code = "MATCH_PAUSED"
	CodeDeckAlreadySet      Code = "DECK_ALREADY_SET"
	CodeInvalidDeck         Code = "INVALID_DECK"
	CodeCardNotInHand       Code = "CARD_NOT_IN_HAND"
	CodeNotEnoughMana       Code = "NOT_ENOUGH_MANA"
	CodeFieldFull           Code = "FIELD_FULL"
	CodeUnknownAttacker     Code = "UNKNOWN_ATTACKER"
	CodeAttackerFrozen      Code = "ATTACKER_FROZEN"
	CodeAttackerTapped      Code = "ATTACKER_TAPPED"
	CodeSummoningSick       Code = "SUMMONING_SICK"
	CodeAlreadyAttacked     Code = "ALREADY_ATTACKED"
	CodeCannotAttackPlayer  Code = "CANNOT_ATTACK_PLAYER"
	CodeInvalidTarget       Code = "INVALID_TARGET"
	CodeTargetStealthed     Code = "TARGET_STEALTHED"
	CodeTargetFlying        Code = "TARGET_FLYING"
	CodeMustAttackTaunt     Code = "MUST_ATTACK_TAUNT"
	CodeTargetSpellShielded Code = "TARGET_SPELL_SHIELDED"
	CodeTargetRequired      Code = "TARGET_REQUIRED"
	CodeUnknownAction       Code = "UNKNOWN_ACTION"
	CodeIllegalPhase        Code = "ILLEGAL_PHASE"
)

// Violation is a rejected action. The action had no effect on the match.
type Violation struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (v *Violation) Error() string {
	if v.Message == "" {
		return string(v.Code)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Violationf builds a Violation with a formatted message.
func Violationf(code Code, format string, args ...any) *Violation {
	return &Violation{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsViolation extracts a Violation from err.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// IsCode reports whether err is a Violation with the given code.
func IsCode(err error, code Code) bool {
	v, ok := AsViolation(err)
	return ok && v.Code == code
}
