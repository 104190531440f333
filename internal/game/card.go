package game

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/game/abilities"
)

const enrageBonus = 2

// Card is a live card instance. It is owned by exactly one zone at a time.
type Card struct {
	ID       string
	Template catalog.CardTemplate
	Flags    abilities.Flags
	Token    bool

	CurrentHealth int
	// MaxHealth is the template health, restored by Regenerate. Aura
	// health is tracked separately in AuraHealthBonus.
	MaxHealth  int
	BaseAttack int
	AttackBuff int

	Tapped              bool
	HasAttackedThisTurn bool
	SwingsUsed          int
	WindfuryUsed        bool
	DoubleStrikeUsed    bool
	Frozen              bool
	FrozenOnOwnTurn     bool
	JustPlayed          bool
	TempImmune          bool
	Enraged             bool

	AuraAttackBonus int
	AuraHealthBonus int
	AuraCharge      bool
}

// Name returns the card name.
func (c *Card) Name() string { return c.Template.Name }

// IsCreature reports whether the card is a creature.
func (c *Card) IsCreature() bool { return c.Template.IsCreature() }

// Attack returns the effective attack.
func (c *Card) Attack() int {
	a := c.BaseAttack + c.AttackBuff + c.AuraAttackBonus
	if c.Enraged {
		a += enrageBonus
	}
	if a < 0 {
		return 0
	}
	return a
}

// HealthCap is the highest CurrentHealth may reach. Aura health is the
// one permitted overheal: while an aura is in play CurrentHealth may
// exceed MaxHealth by AuraHealthBonus, and it is clamped back to
// MaxHealth when the aura leaves play.
func (c *Card) HealthCap() int {
	return c.MaxHealth + c.AuraHealthBonus
}

// Dead reports whether the card must be swept.
func (c *Card) Dead() bool { return c.CurrentHealth <= 0 }

// HasCharge reports whether the card may attack the turn it is played.
func (c *Card) HasCharge() bool { return c.Flags.Charge || c.AuraCharge }

// Source is the resolver view of the card.
func (c *Card) Source() abilities.Source { return abilities.SourceOf(c.Template) }

// Snapshot returns the template snapshot kept in a graveyard.
func (c *Card) Snapshot() catalog.CardTemplate { return c.Template.Clone() }

// TakeDamage applies incoming damage and returns the amount actually
// removed from CurrentHealth. A Divine Shield absorbs the whole hit and is
// consumed.
func (c *Card) TakeDamage(amount int) (applied int, shieldPopped bool) {
	if amount <= 0 || c.Flags.Immune || c.TempImmune {
		return 0, false
	}
	if c.Flags.DivineShield {
		c.Flags.DivineShield = false
		return 0, true
	}
	applied = amount
	if applied > c.CurrentHealth {
		applied = c.CurrentHealth
	}
	c.CurrentHealth -= applied
	return applied, false
}

// Heal restores health up to HealthCap and returns the amount healed.
func (c *Card) Heal(amount int) int {
	if amount <= 0 || c.CurrentHealth <= 0 {
		return 0
	}
	room := c.HealthCap() - c.CurrentHealth
	if amount > room {
		amount = room
	}
	if amount < 0 {
		return 0
	}
	c.CurrentHealth += amount
	return amount
}

// Destroy zeroes CurrentHealth.
func (c *Card) Destroy() { c.CurrentHealth = 0 }

// checkEnrage fires the one-shot Enrage latch after a damaging hit the
// card survived.
func (c *Card) checkEnrage(tookDamage int) bool {
	if !c.Flags.Enrage || c.Enraged || tookDamage <= 0 || c.Dead() {
		return false
	}
	c.Enraged = true
	return true
}

// Freeze marks the card frozen. ownTurn records whether the freeze landed
// during the controller's own turn; such a card stays frozen through its
// next turn as well.
func (c *Card) Freeze(ownTurn bool) {
	c.Frozen = true
	c.FrozenOnOwnTurn = ownTurn
	c.Tapped = true
}

// startTurn resets per-turn state for the side gaining the turn.
func (c *Card) startTurn() {
	if !c.Frozen {
		c.Tapped = false
	}
	c.HasAttackedThisTurn = false
	c.SwingsUsed = 0
	c.WindfuryUsed = false
	c.DoubleStrikeUsed = false
	c.JustPlayed = false
	c.TempImmune = false
}

// endTurn applies end-of-turn upkeep for the controller's creatures and
// reports whether the card regenerated and whether it thawed.
func (c *Card) endTurn() (regenerated, thawed bool) {
	if c.Flags.Regenerate && !c.Dead() && c.CurrentHealth < c.HealthCap() {
		c.CurrentHealth = c.HealthCap()
		regenerated = true
	}
	if c.Frozen {
		if c.FrozenOnOwnTurn {
			c.FrozenOnOwnTurn = false
		} else {
			c.Frozen = false
			thawed = true
		}
	}
	return regenerated, thawed
}

// CardFactory builds card instances. It is the single place where catalog
// data is recovered and ability flags are derived.
type CardFactory struct {
	catalog  *catalog.Catalog
	resolver *abilities.Resolver
	logger   *zap.Logger
}

// NewCardFactory creates a factory over a catalog.
func NewCardFactory(cat *catalog.Catalog, resolver *abilities.Resolver, logger *zap.Logger) *CardFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = abilities.NewResolver(logger)
	}
	return &CardFactory{catalog: cat, resolver: resolver, logger: logger}
}

// Resolver returns the ability resolver the factory derives flags with.
func (f *CardFactory) Resolver() *abilities.Resolver { return f.resolver }

// Catalog returns the catalog the factory recovers templates from.
func (f *CardFactory) Catalog() *catalog.Catalog { return f.catalog }

// Recover merges an override with the canonical template of the same name.
// Ability, colors and splash fields keep their canonical values unless the
// override sets them non-empty. Numeric fields and the type are taken from
// the override when set. A name missing from the catalog keeps the
// override as is, with an empty ability if none was given.
func (f *CardFactory) Recover(override catalog.CardTemplate) catalog.CardTemplate {
	canonical, ok := catalog.CardTemplate{}, false
	if f.catalog != nil {
		canonical, ok = f.catalog.Lookup(override.Name)
	}
	if !ok {
		f.logger.Warn("card not found in catalog",
			zap.String("card", override.Name),
			zap.Bool("has_ability", override.Ability != ""),
		)
		return override.Clone()
	}

	merged := canonical
	if override.Ability != "" {
		merged.Ability = override.Ability
	}
	if len(override.Colors) > 0 {
		merged.Colors = append([]catalog.Color(nil), override.Colors...)
	}
	if override.SplashFriendly {
		merged.SplashFriendly = true
	}
	if override.SplashBonus != "" {
		merged.SplashBonus = override.SplashBonus
	}
	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Rarity != "" {
		merged.Rarity = override.Rarity
	}
	if override.Cost != 0 {
		merged.Cost = override.Cost
	}
	if override.Attack != 0 {
		merged.Attack = override.Attack
	}
	if override.Health != 0 {
		merged.Health = override.Health
	}
	if override.Emoji != "" {
		merged.Emoji = override.Emoji
	}
	if override.Variant != "" {
		merged.Variant = override.Variant
	}
	if override.FullArt {
		merged.FullArt = true
	}
	return merged
}

// NewCard builds a fresh instance from a template or partial override:
// recover the canonical template first, then derive flags from the final
// ability text.
func (f *CardFactory) NewCard(override catalog.CardTemplate) *Card {
	return f.fromTemplate(f.Recover(override))
}

// FromSnapshot builds a fresh instance from a graveyard snapshot. Identity
// and per-instance state such as the Enrage latch are not carried over.
func (f *CardFactory) FromSnapshot(t catalog.CardTemplate) *Card {
	return f.NewCard(t)
}

// NewToken builds a summoned token. Tokens are not catalog cards.
func (f *CardFactory) NewToken(tok abilities.Token) *Card {
	c := f.fromTemplate(catalog.CardTemplate{
		Name:   tok.Name,
		Type:   catalog.TypeCreature,
		Attack: tok.Attack,
		Health: tok.Health,
		Rarity: catalog.RarityCommon,
		Colors: []catalog.Color{catalog.ColorColorless},
	})
	c.Token = true
	return c
}

func (f *CardFactory) fromTemplate(t catalog.CardTemplate) *Card {
	return &Card{
		ID:            uuid.NewString(),
		Template:      t,
		Flags:         f.resolver.Flags(abilities.SourceOf(t)),
		CurrentHealth: t.Health,
		MaxHealth:     t.Health,
		BaseAttack:    t.Attack,
	}
}
