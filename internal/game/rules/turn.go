package rules

import "fmt"

// Seat identifies one side of a match.
type Seat string

const (
	SeatHost  Seat = "host"
	SeatGuest Seat = "guest"
)

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	if s == SeatHost {
		return SeatGuest
	}
	return SeatHost
}

// Valid reports whether s names a seat.
func (s Seat) Valid() bool {
	return s == SeatHost || s == SeatGuest
}

// TurnManager tracks the active seat and turn progression. Turn 1 belongs
// to the first seat; each EndTurn hands the turn to the opponent.
type TurnManager struct {
	turnNumber int
	active     Seat
	// seatTurns counts turns each seat has started.
	seatTurns map[Seat]int
}

// NewTurnManager creates a turn manager at turn 1 with first active.
func NewTurnManager(first Seat) *TurnManager {
	return &TurnManager{
		turnNumber: 1,
		active:     first,
		seatTurns:  map[Seat]int{first: 1},
	}
}

// RestoreTurnManager rebuilds a manager from persisted state.
func RestoreTurnManager(turnNumber int, active Seat, seatTurns map[Seat]int) *TurnManager {
	tm := &TurnManager{turnNumber: turnNumber, active: active, seatTurns: make(map[Seat]int)}
	for s, n := range seatTurns {
		tm.seatTurns[s] = n
	}
	return tm
}

// TurnNumber returns the current turn number (1-based, counting both seats).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// Active returns the seat that currently has the turn.
func (tm *TurnManager) Active() Seat {
	return tm.active
}

// SeatTurns returns how many turns seat has started.
func (tm *TurnManager) SeatTurns(seat Seat) int {
	return tm.seatTurns[seat]
}

// Advance passes the turn to the opponent and returns the new active seat.
func (tm *TurnManager) Advance() Seat {
	tm.turnNumber++
	tm.active = tm.active.Opponent()
	tm.seatTurns[tm.active]++
	return tm.active
}

func (tm *TurnManager) String() string {
	return fmt.Sprintf("turn %d (%s)", tm.turnNumber, tm.active)
}
