package netsync

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/abilities"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

func testFactory(t *testing.T) *game.CardFactory {
	t.Helper()
	cat, err := catalog.New(
		catalog.CardTemplate{Name: "Guard", Cost: 1, Type: catalog.TypeCreature, Attack: 2, Health: 2, Ability: "Taunt", Rarity: catalog.RarityCommon, Colors: []catalog.Color{catalog.ColorAzure}},
		catalog.CardTemplate{Name: "Shield Bearer", Cost: 1, Type: catalog.TypeCreature, Attack: 2, Health: 3, Ability: "Divine Shield", Rarity: catalog.RarityCommon, Colors: []catalog.Color{catalog.ColorAzure}},
		catalog.CardTemplate{Name: "Spark", Cost: 1, Type: catalog.TypeSpell, Ability: "Deal 1 damage", Rarity: catalog.RarityCommon, Colors: []catalog.Color{catalog.ColorCrimson}},
	)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	return game.NewCardFactory(cat, abilities.NewResolver(logger), logger)
}

func testRules() config.RulesConfig {
	r := config.DefaultRules()
	r.MinDeckSize = 1
	r.MaxCopies = 20
	r.ShuffleDecks = false
	return r
}

func deckOf(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

// matchSnapshots plays a short match and returns the snapshot after
// creation and after each action, indexed by sequence number.
func matchSnapshots(t *testing.T, factory *game.CardFactory, id string, turns int) []*game.MatchSnapshot {
	t.Helper()
	m := game.NewMatch(id, factory, testRules(), zaptest.NewLogger(t))
	var out []*game.MatchSnapshot
	snap := func() {
		s, err := m.Snapshot()
		require.NoError(t, err)
		require.Equal(t, uint64(len(out)), s.Seq)
		out = append(out, s)
	}
	snap()
	_, err := m.InitDeck(rules.SeatHost, deckOf("Guard", 10))
	require.NoError(t, err)
	snap()
	_, err = m.InitDeck(rules.SeatGuest, deckOf("Shield Bearer", 10))
	require.NoError(t, err)
	snap()
	for i := 0; i < turns; i++ {
		_, err = m.EndTurn(m.Active())
		require.NoError(t, err)
		snap()
	}
	return out
}
