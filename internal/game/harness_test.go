package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

const (
	host  = rules.SeatHost
	guest = rules.SeatGuest
)

func creature(name string, cost, attack, health int, ability string, colors ...catalog.Color) catalog.CardTemplate {
	return catalog.CardTemplate{
		Name:    name,
		Cost:    cost,
		Type:    catalog.TypeCreature,
		Attack:  attack,
		Health:  health,
		Ability: ability,
		Rarity:  catalog.RarityCommon,
		Colors:  colors,
	}
}

func spell(name string, cost int, ability string, colors ...catalog.Color) catalog.CardTemplate {
	return catalog.CardTemplate{
		Name:    name,
		Cost:    cost,
		Type:    catalog.TypeSpell,
		Ability: ability,
		Rarity:  catalog.RarityCommon,
		Colors:  colors,
	}
}

var (
	crimson = catalog.ColorCrimson
	azure   = catalog.ColorAzure
	verdant = catalog.ColorVerdant
	umbral  = catalog.ColorUmbral
)

func testCatalog(t testing.TB) *catalog.Catalog {
	boar := creature("Thornback Boar", 3, 3, 3, "", verdant)
	boar.SplashFriendly = true
	boar.SplashBonus = "Battlecry: Deal 2 damage to enemy player"

	cat, err := catalog.New(
		creature("Filler", 1, 1, 1, "", crimson),
		creature("Grunt", 2, 2, 2, "", crimson),
		creature("Husk", 1, 1, 1, "", crimson),
		creature("Ember Husk", 1, 1, 1, "Deathrattle: Deal 1 damage to enemy player", crimson),
		creature("Berserker", 3, 3, 4, "Enrage", crimson),
		creature("Guard", 2, 2, 2, "Taunt", azure),
		creature("Phantom", 3, 3, 2, "Cannot be blocked", umbral),
		creature("Pyre Drake", 4, 3, 3, "Deathrattle: Deal 2 damage to all enemies", crimson),
		creature("Shield Bearer", 2, 2, 3, "Divine Shield", azure),
		creature("Duelist", 3, 3, 2, "First Strike", crimson),
		creature("Viper", 1, 1, 1, "Poison", umbral),
		creature("Frost Fang", 3, 2, 3, "Freeze", azure),
		creature("Stomper", 5, 5, 5, "Trample", verdant),
		creature("Leech", 3, 3, 3, "Lifesteal", umbral),
		creature("Twin Blade", 3, 2, 4, "Windfury", crimson),
		creature("Sentinel", 3, 2, 4, "Vigilance", azure),
		creature("Shade", 2, 2, 2, "Stealth", umbral),
		creature("Griffin", 3, 2, 2, "Flying", azure),
		creature("Archer", 2, 2, 3, "Reach", verdant),
		creature("Raider", 2, 2, 1, "Charge", crimson),
		creature("Phase Knight", 3, 2, 2, "Immune while attacking", umbral),
		creature("Broodmother", 4, 2, 2, "Deathrattle: Summon two 1/1 Whelps", verdant),
		creature("Warlord", 4, 2, 2, "Other friendly creatures have +1/+1", crimson),
		creature("Troll", 3, 3, 3, "Regenerate", verdant),
		creature("Revenant", 2, 2, 1, "Deathrattle: Return this to your hand", umbral),
		creature("Sniper", 2, 2, 2, "Battlecry: Deal 2 damage to target creature", crimson),
		creature("Hothead", 2, 2, 2, "Battlecry: Deal 1 damage", crimson),
		spell("Flame Lance", 2, "Deal 3 damage", crimson),
		spell("Spark Storm", 1, "Deal 1 damage to all enemy creatures", crimson),
		spell("Frost Nova", 2, "Freeze an enemy creature", azure),
		boar,
	)
	require.NoError(t, err)
	return cat
}

func testRules() config.RulesConfig {
	r := config.DefaultRules()
	r.MinDeckSize = 1
	r.MaxCopies = 20
	r.ShuffleDecks = false
	return r
}

func fillerDeck(n int) []string {
	deck := make([]string, n)
	for i := range deck {
		deck[i] = "Filler"
	}
	return deck
}

// matchHarness drives one match through its public actions and offers
// shortcuts for arranging the board.
type matchHarness struct {
	t       *testing.T
	factory *CardFactory
	match   *Match
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	rules     config.RulesConfig
	hostDeck  []string
	guestDeck []string
}

func withRules(fn func(r *config.RulesConfig)) harnessOption {
	return func(s *harnessSetup) { fn(&s.rules) }
}

func withHostDeck(names ...string) harnessOption {
	return func(s *harnessSetup) { s.hostDeck = names }
}

// newMatchHarness starts a match with both decks installed. The host is
// active on turn 1.
func newMatchHarness(t *testing.T, opts ...harnessOption) *matchHarness {
	t.Helper()
	setup := harnessSetup{
		rules:     testRules(),
		hostDeck:  fillerDeck(10),
		guestDeck: fillerDeck(10),
	}
	for _, opt := range opts {
		opt(&setup)
	}

	logger := zaptest.NewLogger(t)
	factory := NewCardFactory(testCatalog(t), abilities.NewResolver(logger), logger)
	m := NewMatch("match-"+t.Name(), factory, setup.rules, logger)

	_, err := m.InitDeck(host, setup.hostDeck)
	require.NoError(t, err)
	_, err = m.InitDeck(guest, setup.guestDeck)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, m.Status())

	return &matchHarness{t: t, factory: factory, match: m}
}

func (h *matchHarness) side(seat rules.Seat) *Side {
	return h.match.Side(seat)
}

// place puts a ready creature straight onto seat's field.
func (h *matchHarness) place(seat rules.Seat, name string) *Card {
	h.t.Helper()
	c := h.factory.NewCard(catalog.CardTemplate{Name: name})
	require.True(h.t, h.side(seat).Field.Add(c), "field full")
	h.match.recomputeAuras()
	return c
}

// toHand puts a card into seat's hand.
func (h *matchHarness) toHand(seat rules.Seat, override catalog.CardTemplate) *Card {
	c := h.factory.NewCard(override)
	h.side(seat).Hand = append(h.side(seat).Hand, c)
	return c
}

func (h *matchHarness) setMana(seat rules.Seat, n int) {
	pool := h.side(seat).Mana
	pool.Max = n
	pool.Current = n
}

func (h *matchHarness) endTurn(seat rules.Seat) *ActionResult {
	h.t.Helper()
	res, err := h.match.EndTurn(seat)
	require.NoError(h.t, err)
	return res
}

func (h *matchHarness) attack(seat rules.Seat, attacker *Card, target Target) (*ActionResult, error) {
	return h.match.DeclareAttack(seat, attacker.ID, target)
}

func playerTarget(seat rules.Seat) Target {
	return Target{Seat: seat}
}

func creatureTarget(seat rules.Seat, c *Card) Target {
	return Target{Seat: seat, CardID: c.ID}
}

func eventTypes(events []rules.Event) []rules.EventType {
	out := make([]rules.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func countEvents(events []rules.Event, typ rules.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func graveyardNames(s *Side) []string {
	names := make([]string, 0, len(s.Graveyard))
	for _, t := range s.Graveyard {
		names = append(names, t.Name)
	}
	return names
}
