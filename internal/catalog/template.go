package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// CardType distinguishes creatures from spells.
type CardType string

const (
	TypeCreature CardType = "creature"
	TypeSpell    CardType = "spell"
)

// Rarity of a card template.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Color is one of the four card colors, or colorless.
type Color string

const (
	ColorCrimson   Color = "crimson"
	ColorAzure     Color = "azure"
	ColorVerdant   Color = "verdant"
	ColorUmbral    Color = "umbral"
	ColorColorless Color = "colorless"
)

// ErrUnknownCard is returned when a card name is not in the catalog.
var ErrUnknownCard = errors.New("unknown card")

// CardTemplate is an immutable catalog entry.
type CardTemplate struct {
	Name           string   `json:"name" yaml:"name"`
	Cost           int      `json:"cost" yaml:"cost"`
	Type           CardType `json:"type" yaml:"type"`
	Attack         int      `json:"attack,omitempty" yaml:"attack"`
	Health         int      `json:"health,omitempty" yaml:"health"`
	Ability        string   `json:"ability,omitempty" yaml:"ability"`
	Rarity         Rarity   `json:"rarity" yaml:"rarity"`
	Colors         []Color  `json:"colors" yaml:"colors"`
	SplashFriendly bool     `json:"splashFriendly,omitempty" yaml:"splashFriendly"`
	SplashBonus    string   `json:"splashBonus,omitempty" yaml:"splashBonus"`

	// Cosmetic fields, ignored by the rules engine.
	Emoji   string `json:"emoji,omitempty" yaml:"emoji"`
	Variant string `json:"variant,omitempty" yaml:"variant"`
	FullArt bool   `json:"fullArt,omitempty" yaml:"fullArt"`
}

// IsCreature reports whether the template is a creature.
func (t CardTemplate) IsCreature() bool {
	return t.Type == TypeCreature
}

// HasColor reports whether the template carries color c.
func (t CardTemplate) HasColor(c Color) bool {
	for _, own := range t.Colors {
		if own == c {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with t.
func (t CardTemplate) Clone() CardTemplate {
	out := t
	out.Colors = append([]Color(nil), t.Colors...)
	return out
}

// Validate checks the template's own invariants.
func (t CardTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("card name is required")
	}
	if t.Cost < 0 {
		return fmt.Errorf("%s: cost must be >= 0", t.Name)
	}
	switch t.Type {
	case TypeCreature:
		if t.Health <= 0 {
			return fmt.Errorf("%s: creature health must be positive", t.Name)
		}
		if t.Attack < 0 {
			return fmt.Errorf("%s: attack must be >= 0", t.Name)
		}
	case TypeSpell:
	default:
		return fmt.Errorf("%s: unknown type %q", t.Name, t.Type)
	}
	switch t.Rarity {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
	default:
		return fmt.Errorf("%s: unknown rarity %q", t.Name, t.Rarity)
	}
	if len(t.Colors) == 0 || len(t.Colors) > 2 {
		return fmt.Errorf("%s: a card has one or two colors", t.Name)
	}
	for _, c := range t.Colors {
		switch c {
		case ColorCrimson, ColorAzure, ColorVerdant, ColorUmbral:
		case ColorColorless:
			if len(t.Colors) != 1 {
				return fmt.Errorf("%s: colorless cannot be combined", t.Name)
			}
		default:
			return fmt.Errorf("%s: unknown color %q", t.Name, c)
		}
	}
	return nil
}

// Catalog is a read-only, name-keyed set of card templates.
type Catalog struct {
	byName map[string]CardTemplate
	names  []string
}

// New builds a catalog, rejecting invalid or duplicate entries.
func New(templates ...CardTemplate) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]CardTemplate, len(templates))}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate card %q", t.Name)
		}
		c.byName[t.Name] = t.Clone()
		c.names = append(c.names, t.Name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Lookup returns the canonical template for name.
func (c *Catalog) Lookup(name string) (CardTemplate, bool) {
	if c == nil {
		return CardTemplate{}, false
	}
	t, ok := c.byName[name]
	if !ok {
		return CardTemplate{}, false
	}
	return t.Clone(), true
}

// MustLookup is Lookup returning ErrUnknownCard on a miss.
func (c *Catalog) MustLookup(name string) (CardTemplate, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return CardTemplate{}, fmt.Errorf("%w: %q", ErrUnknownCard, name)
	}
	return t, nil
}

// Names returns all card names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// All returns every template in name order.
func (c *Catalog) All() []CardTemplate {
	out := make([]CardTemplate, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name].Clone())
	}
	return out
}

// Len returns the number of templates.
func (c *Catalog) Len() int {
	return len(c.names)
}
