package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// DeckRules bounds deck construction.
type DeckRules struct {
	MinSize   int
	MaxSize   int
	MaxCopies int
}

// DeckError lists every problem found in a deck.
type DeckError struct {
	Problems []string
}

func (e *DeckError) Error() string {
	return "invalid deck: " + strings.Join(e.Problems, "; ")
}

// ValidateDeck resolves names against the catalog and enforces size and
// copy limits. Legendary cards are limited to one copy.
func ValidateDeck(c *Catalog, names []string, rules DeckRules) ([]CardTemplate, error) {
	var problems []string
	if rules.MinSize > 0 && len(names) < rules.MinSize {
		problems = append(problems, fmt.Sprintf("deck has %d cards, minimum is %d", len(names), rules.MinSize))
	}
	if rules.MaxSize > 0 && len(names) > rules.MaxSize {
		problems = append(problems, fmt.Sprintf("deck has %d cards, maximum is %d", len(names), rules.MaxSize))
	}

	counts := make(map[string]int)
	deck := make([]CardTemplate, 0, len(names))
	for _, name := range names {
		t, ok := c.Lookup(name)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown card %q", name))
			continue
		}
		counts[name]++
		deck = append(deck, t)
	}

	over := make([]string, 0)
	for name, n := range counts {
		t, _ := c.Lookup(name)
		limit := rules.MaxCopies
		if t.Rarity == RarityLegendary {
			limit = 1
		}
		if limit > 0 && n > limit {
			over = append(over, fmt.Sprintf("%q has %d copies, limit is %d", name, n, limit))
		}
	}
	sort.Strings(over)
	problems = append(problems, over...)

	if len(problems) > 0 {
		return nil, &DeckError{Problems: problems}
	}
	return deck, nil
}

// MainColors returns the colors contributed by non-splash-friendly cards.
func MainColors(deck []CardTemplate) map[Color]bool {
	main := make(map[Color]bool)
	for _, t := range deck {
		if t.SplashFriendly {
			continue
		}
		for _, c := range t.Colors {
			if c == ColorColorless {
				continue
			}
			main[c] = true
		}
	}
	return main
}
