// Package abilities turns card ability text into keyword flags and
// tagged effects. It is the only package that reads ability text.
package abilities

// Flags are the static keyword flags of a card, derived once from its
// ability text.
type Flags struct {
	Taunt        bool `json:"taunt,omitempty"`
	Vigilance    bool `json:"vigilance,omitempty"`
	Stealth      bool `json:"stealth,omitempty"`
	DivineShield bool `json:"divineShield,omitempty"`
	SpellShield  bool `json:"spellShield,omitempty"`
	Flying       bool `json:"flying,omitempty"`
	Lifesteal    bool `json:"lifesteal,omitempty"`

	FirstStrike            bool `json:"firstStrike,omitempty"`
	DoubleStrike           bool `json:"doubleStrike,omitempty"`
	Windfury               bool `json:"windfury,omitempty"`
	Trample                bool `json:"trample,omitempty"`
	LethalTouch            bool `json:"lethalTouch,omitempty"`
	InstantKill            bool `json:"instantKill,omitempty"`
	Enrage                 bool `json:"enrage,omitempty"`
	FreezeOnHit            bool `json:"freezeOnHit,omitempty"`
	Reach                  bool `json:"reach,omitempty"`
	Charge                 bool `json:"charge,omitempty"`
	Regenerate             bool `json:"regenerate,omitempty"`
	Immune                 bool `json:"immune,omitempty"`
	ImmuneWhileAttacking   bool `json:"immuneWhileAttacking,omitempty"`
	CanOnlyAttackCreatures bool `json:"canOnlyAttackCreatures,omitempty"`
	IgnoresTaunt           bool `json:"ignoresTaunt,omitempty"`

	SpellPower int `json:"spellPower,omitempty"`
}

// Swings returns how many attacks per turn the flags allow.
func (f Flags) Swings() int {
	if f.Windfury || f.DoubleStrike {
		return 2
	}
	return 1
}

// Trigger identifies when an effect fires.
type Trigger string

const (
	TriggerStatic    Trigger = "static"
	TriggerPlay      Trigger = "play"
	TriggerAttack    Trigger = "attack"
	TriggerDeath     Trigger = "death"
	TriggerAura      Trigger = "aura"
	TriggerEndOfTurn Trigger = "endOfTurn"
)

// EffectKind tags an Effect variant.
type EffectKind string

const (
	EffectNone         EffectKind = "none"
	EffectDraw         EffectKind = "draw"
	EffectDamage       EffectKind = "damage"
	EffectHeal         EffectKind = "heal"
	EffectSummon       EffectKind = "summon"
	EffectReturnToHand EffectKind = "returnToHand"
	EffectLoseHealth   EffectKind = "loseHealth"
	EffectFreeze       EffectKind = "freeze"
	EffectBuffAttack   EffectKind = "buffAttack"
	EffectGainMana     EffectKind = "gainMana"
	EffectAuraStats    EffectKind = "auraStats"
	EffectAuraCharge   EffectKind = "auraCharge"
)

// Scope selects who an effect touches. ScopeUnspecified lets the applier
// pick its default: the declared target if any, otherwise the opposing
// player for harmful effects and the own player for beneficial ones.
type Scope string

const (
	ScopeUnspecified       Scope = ""
	ScopeTarget            Scope = "target"
	ScopeSelf              Scope = "self"
	ScopeEnemyPlayer       Scope = "enemyPlayer"
	ScopeFriendlyPlayer    Scope = "friendlyPlayer"
	ScopeAllEnemies        Scope = "allEnemies"
	ScopeAllEnemyCreatures Scope = "allEnemyCreatures"
	ScopeAllCreatures      Scope = "allCreatures"
	ScopeRandomEnemy       Scope = "randomEnemy"
	ScopeFriendly          Scope = "friendly"
	ScopeOtherFriendly     Scope = "otherFriendly"
)

// Token describes a creature created by a summon effect.
type Token struct {
	Name   string
	Attack int
	Health int
	Count  int
}

// Effect is one resolved effect of an ability clause.
type Effect struct {
	Kind    EffectKind
	Trigger Trigger
	Scope   Scope
	Amount  int
	Attack  int
	Health  int
	Token   *Token
	Splash  bool
	Text    string
}

// IsNoop reports whether the effect does nothing.
func (e Effect) IsNoop() bool {
	return e.Kind == EffectNone
}
