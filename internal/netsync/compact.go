package netsync

import (
	"slices"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/game"
)

// Compact returns a resealed copy of snap in which every card that
// matches its catalog entry carries only its name and instance state.
// Tokens and cards played with overridden fields keep their full data.
// The receiving mirror restores the rest from its own catalog.
func Compact(snap *game.MatchSnapshot, cat *catalog.Catalog) (*game.MatchSnapshot, error) {
	out := *snap
	out.Sides = make([]game.SideSnapshot, len(snap.Sides))
	for i, s := range snap.Sides {
		s.Hand = compactCards(s.Hand, cat)
		s.Field = compactCards(s.Field, cat)
		s.Deck = compactCards(s.Deck, cat)
		out.Sides[i] = s
	}
	if err := out.Seal(); err != nil {
		return nil, err
	}
	return &out, nil
}

func compactCards(cards []game.CardData, cat *catalog.Catalog) []game.CardData {
	if cards == nil {
		return nil
	}
	out := make([]game.CardData, len(cards))
	for i, d := range cards {
		if t, ok := cat.Lookup(d.Name); ok && !d.Token && matchesTemplate(d, t) {
			d.Cost = 0
			d.Type = ""
			d.Attack = 0
			d.Health = 0
			d.Ability = ""
			d.Rarity = ""
			d.Colors = nil
			d.SplashFriendly = false
			d.SplashBonus = ""
		}
		out[i] = d
	}
	return out
}

func matchesTemplate(d game.CardData, t catalog.CardTemplate) bool {
	return d.Cost == t.Cost &&
		d.Type == t.Type &&
		d.Attack == t.Attack &&
		d.Health == t.Health &&
		d.Ability == t.Ability &&
		d.Rarity == t.Rarity &&
		slices.Equal(d.Colors, t.Colors) &&
		d.SplashFriendly == t.SplashFriendly &&
		d.SplashBonus == t.SplashBonus
}
