package game

import (
	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game/mana"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// Field holds a side's creatures in play order. Cards are addressed by
// instance id; removing a card never invalidates the ids of the others.
type Field struct {
	capacity int
	order    []string
	cards    map[string]*Card
}

func newField(capacity int) *Field {
	return &Field{capacity: capacity, cards: make(map[string]*Card)}
}

// Len returns the number of creatures in play.
func (f *Field) Len() int { return len(f.order) }

// Full reports whether the field is at capacity.
func (f *Field) Full() bool { return len(f.order) >= f.capacity }

// Get returns the creature with the given id.
func (f *Field) Get(id string) (*Card, bool) {
	c, ok := f.cards[id]
	return c, ok
}

// Add places a creature at the end of the field. It returns false when the
// field is full.
func (f *Field) Add(c *Card) bool {
	if f.Full() {
		return false
	}
	f.order = append(f.order, c.ID)
	f.cards[c.ID] = c
	return true
}

// Remove takes a creature out of play.
func (f *Field) Remove(id string) (*Card, bool) {
	c, ok := f.cards[id]
	if !ok {
		return nil, false
	}
	delete(f.cards, id)
	for i, oid := range f.order {
		if oid == id {
			f.order = append(f.order[:i:i], f.order[i+1:]...)
			break
		}
	}
	return c, true
}

// Cards returns the creatures in field order. The slice is a copy; the
// cards are live.
func (f *Field) Cards() []*Card {
	out := make([]*Card, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.cards[id])
	}
	return out
}

// Side is one player's half of a match.
type Side struct {
	Seat      rules.Seat
	Health    int
	MaxHealth int
	Mana      *mana.Pool
	Hand      []*Card
	Field     *Field
	Deck      []*Card
	Graveyard []catalog.CardTemplate
	// DeckList is the validated deck as built, used for main colors.
	DeckList []catalog.CardTemplate
	Fatigue  int
	Ready    bool
}

func newSide(seat rules.Seat, r config.RulesConfig) *Side {
	return &Side{
		Seat:      seat,
		Health:    r.StartingHealth,
		MaxHealth: r.StartingHealth,
		Mana:      mana.NewPool(r.MaxMana),
		Field:     newField(r.FieldCapacity),
	}
}

// PlayerSeat returns the side's seat.
func (s *Side) PlayerSeat() rules.Seat { return s.Seat }

// TakeDamage lowers health, not below zero, and returns the amount lost.
func (s *Side) TakeDamage(amount int) int {
	if amount <= 0 {
		return 0
	}
	if amount > s.Health {
		amount = s.Health
	}
	s.Health -= amount
	return amount
}

// Heal raises health up to MaxHealth and returns the amount healed.
func (s *Side) Heal(amount int) int {
	if amount <= 0 {
		return 0
	}
	if room := s.MaxHealth - s.Health; amount > room {
		amount = room
	}
	if amount < 0 {
		return 0
	}
	s.Health += amount
	return amount
}

// MainColors returns the deck's main colors, computed from the deck list.
func (s *Side) MainColors() map[catalog.Color]bool {
	return catalog.MainColors(s.DeckList)
}

// SpellPower sums Spell Power on the side's creatures.
func (s *Side) SpellPower() int {
	total := 0
	for _, c := range s.Field.Cards() {
		total += c.Flags.SpellPower
	}
	return total
}

// TauntCount counts living Taunt creatures.
func (s *Side) TauntCount() int {
	n := 0
	for _, c := range s.Field.Cards() {
		if c.Flags.Taunt && !c.Dead() {
			n++
		}
	}
	return n
}

func (s *Side) handIndex(id string) int {
	for i, c := range s.Hand {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Side) removeFromHand(id string) (*Card, bool) {
	i := s.handIndex(id)
	if i < 0 {
		return nil, false
	}
	c := s.Hand[i]
	s.Hand = append(s.Hand[:i:i], s.Hand[i+1:]...)
	return c, true
}

// takeFromGraveyard removes the most recent graveyard entry named name.
func (s *Side) takeFromGraveyard(name string) (catalog.CardTemplate, bool) {
	for i := len(s.Graveyard) - 1; i >= 0; i-- {
		if s.Graveyard[i].Name == name {
			t := s.Graveyard[i]
			s.Graveyard = append(s.Graveyard[:i:i], s.Graveyard[i+1:]...)
			return t, true
		}
	}
	return catalog.CardTemplate{}, false
}
