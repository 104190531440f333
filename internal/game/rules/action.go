package rules

import "fmt"

// ActionPhase is the state of the per-match action machine.
type ActionPhase int

const (
	PhaseIdle ActionPhase = iota
	PhaseActionDeclared
	PhaseEffectsResolving
	PhaseDeathSweep
)

var phaseNames = map[ActionPhase]string{
	PhaseIdle:             "IDLE",
	PhaseActionDeclared:   "ACTION_DECLARED",
	PhaseEffectsResolving: "EFFECTS_RESOLVING",
	PhaseDeathSweep:       "DEATH_SWEEP",
}

func (p ActionPhase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// ActionMachine sequences one action:
// Idle -> ActionDeclared -> EffectsResolving <-> DeathSweep -> Idle.
// EffectsResolving and DeathSweep may re-enter each other until the sweep
// count reaches the cap; after that the action is truncated.
type ActionMachine struct {
	phase     ActionPhase
	sweeps    int
	cap       int
	truncated bool
}

// NewActionMachine creates an idle machine allowing at most cap sweeps
// per action.
func NewActionMachine(cap int) *ActionMachine {
	if cap < 1 {
		cap = 1
	}
	return &ActionMachine{cap: cap}
}

// Phase returns the current phase.
func (m *ActionMachine) Phase() ActionPhase { return m.phase }

// Sweeps returns the number of sweeps entered during the current action.
func (m *ActionMachine) Sweeps() int { return m.sweeps }

// Truncated reports whether the current action hit the sweep cap.
func (m *ActionMachine) Truncated() bool { return m.truncated }

// Declare starts a new action. Only legal from Idle.
func (m *ActionMachine) Declare() error {
	if m.phase != PhaseIdle {
		return Violationf(CodeIllegalPhase, "cannot declare an action during %s", m.phase)
	}
	m.phase = PhaseActionDeclared
	m.sweeps = 0
	m.truncated = false
	return nil
}

// Resolve moves into EffectsResolving.
func (m *ActionMachine) Resolve() error {
	switch m.phase {
	case PhaseActionDeclared, PhaseDeathSweep:
		m.phase = PhaseEffectsResolving
		return nil
	}
	return Violationf(CodeIllegalPhase, "cannot resolve effects during %s", m.phase)
}

// Sweep moves into DeathSweep and reports whether the sweep may run. A
// false return marks the action truncated.
func (m *ActionMachine) Sweep() (bool, error) {
	switch m.phase {
	case PhaseActionDeclared, PhaseEffectsResolving, PhaseDeathSweep:
	default:
		return false, Violationf(CodeIllegalPhase, "cannot sweep during %s", m.phase)
	}
	m.phase = PhaseDeathSweep
	if m.sweeps >= m.cap {
		m.truncated = true
		return false, nil
	}
	m.sweeps++
	return true, nil
}

// Finish returns the machine to Idle.
func (m *ActionMachine) Finish() {
	m.phase = PhaseIdle
}
