// Package mana tracks a side's mana crystals.
package mana

// Pool is a side's mana: Max crystals refilled each turn, Current spendable
// this turn. Max grows by one per turn up to Cap.
type Pool struct {
	Current int `json:"current"`
	Max     int `json:"max"`
	Cap     int `json:"cap"`
}

// NewPool creates an empty pool with the given crystal cap.
func NewPool(cap int) *Pool {
	return &Pool{Cap: cap}
}

// StartTurn grows Max by one (bounded by Cap) and refills Current.
func (p *Pool) StartTurn() {
	if p.Max < p.Cap {
		p.Max++
	}
	p.Current = p.Max
}

// CanSpend reports whether amount is affordable.
func (p *Pool) CanSpend(amount int) bool {
	return amount <= p.Current
}

// Spend removes amount from Current. It returns false and leaves the pool
// unchanged when amount is not affordable.
func (p *Pool) Spend(amount int) bool {
	if amount < 0 || amount > p.Current {
		return false
	}
	p.Current -= amount
	return true
}

// Gain adds temporary mana for this turn, bounded by Cap.
func (p *Pool) Gain(amount int) {
	if amount <= 0 {
		return
	}
	p.Current += amount
	if p.Current > p.Cap {
		p.Current = p.Cap
	}
}
