package game

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/mysticduel/duel-server/internal/catalog"
	"github.com/mysticduel/duel-server/internal/config"
	"github.com/mysticduel/duel-server/internal/game/mana"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// CardData is the serialised form of a card instance. Every template
// field may be missing; a receiver rebuilds the card through the catalog
// keyed on Name. Flags that change during play (Divine Shield, Stealth)
// are sent explicitly; nil means "as derived from the ability text".
type CardData struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Cost           int              `json:"cost,omitempty"`
	Type           catalog.CardType `json:"type,omitempty"`
	Attack         int              `json:"attack,omitempty"`
	Health         int              `json:"health,omitempty"`
	Ability        string           `json:"ability,omitempty"`
	Rarity         catalog.Rarity   `json:"rarity,omitempty"`
	Colors         []catalog.Color  `json:"colors,omitempty"`
	SplashFriendly bool             `json:"splashFriendly,omitempty"`
	SplashBonus    string           `json:"splashBonus,omitempty"`
	Token          bool             `json:"token,omitempty"`

	CurrentHealth int `json:"currentHealth"`
	MaxHealth     int `json:"maxHealth"`
	BaseAttack    int `json:"baseAttack"`
	AttackBuff    int `json:"attackBuff,omitempty"`

	Tapped              bool `json:"tapped,omitempty"`
	HasAttackedThisTurn bool `json:"hasAttackedThisTurn,omitempty"`
	SwingsUsed          int  `json:"swingsUsed,omitempty"`
	WindfuryUsed        bool `json:"windfuryUsed,omitempty"`
	DoubleStrikeUsed    bool `json:"doubleStrikeUsed,omitempty"`
	Frozen              bool `json:"frozen,omitempty"`
	FrozenOnOwnTurn     bool `json:"frozenOnOwnTurn,omitempty"`
	JustPlayed          bool `json:"justPlayed,omitempty"`
	Enraged             bool `json:"enraged,omitempty"`

	DivineShield *bool `json:"divineShield,omitempty"`
	Stealth      *bool `json:"stealth,omitempty"`

	AuraAttackBonus int  `json:"auraAttackBonus,omitempty"`
	AuraHealthBonus int  `json:"auraHealthBonus,omitempty"`
	AuraCharge      bool `json:"auraCharge,omitempty"`
}

// Data serialises the card.
func (c *Card) Data() CardData {
	divine, stealth := c.Flags.DivineShield, c.Flags.Stealth
	t := c.Template
	return CardData{
		ID:                  c.ID,
		Name:                t.Name,
		Cost:                t.Cost,
		Type:                t.Type,
		Attack:              t.Attack,
		Health:              t.Health,
		Ability:             t.Ability,
		Rarity:              t.Rarity,
		Colors:              append([]catalog.Color(nil), t.Colors...),
		SplashFriendly:      t.SplashFriendly,
		SplashBonus:         t.SplashBonus,
		Token:               c.Token,
		CurrentHealth:       c.CurrentHealth,
		MaxHealth:           c.MaxHealth,
		BaseAttack:          c.BaseAttack,
		AttackBuff:          c.AttackBuff,
		Tapped:              c.Tapped,
		HasAttackedThisTurn: c.HasAttackedThisTurn,
		SwingsUsed:          c.SwingsUsed,
		WindfuryUsed:        c.WindfuryUsed,
		DoubleStrikeUsed:    c.DoubleStrikeUsed,
		Frozen:              c.Frozen,
		FrozenOnOwnTurn:     c.FrozenOnOwnTurn,
		JustPlayed:          c.JustPlayed,
		Enraged:             c.Enraged,
		DivineShield:        &divine,
		Stealth:             &stealth,
		AuraAttackBonus:     c.AuraAttackBonus,
		AuraHealthBonus:     c.AuraHealthBonus,
		AuraCharge:          c.AuraCharge,
	}
}

func (d CardData) template() catalog.CardTemplate {
	return catalog.CardTemplate{
		Name:           d.Name,
		Cost:           d.Cost,
		Type:           d.Type,
		Attack:         d.Attack,
		Health:         d.Health,
		Ability:        d.Ability,
		Rarity:         d.Rarity,
		Colors:         d.Colors,
		SplashFriendly: d.SplashFriendly,
		SplashBonus:    d.SplashBonus,
	}
}

// Rebuild reconstructs a card from possibly partial data: the template is
// recovered from the catalog, flags are derived again, then instance
// state is laid on top. Zero health and attack fields fall back to the
// recovered template.
func (f *CardFactory) Rebuild(d CardData) *Card {
	var c *Card
	if d.Token {
		c = f.fromTemplate(d.template())
		c.Token = true
	} else {
		c = f.NewCard(d.template())
	}
	if d.ID != "" {
		c.ID = d.ID
	}
	if d.MaxHealth > 0 {
		c.MaxHealth = d.MaxHealth
	}
	if d.BaseAttack > 0 {
		c.BaseAttack = d.BaseAttack
	}
	if d.CurrentHealth != 0 || d.MaxHealth > 0 {
		c.CurrentHealth = d.CurrentHealth
	}
	c.AttackBuff = d.AttackBuff
	c.Tapped = d.Tapped
	c.HasAttackedThisTurn = d.HasAttackedThisTurn
	c.SwingsUsed = d.SwingsUsed
	c.WindfuryUsed = d.WindfuryUsed
	c.DoubleStrikeUsed = d.DoubleStrikeUsed
	c.Frozen = d.Frozen
	c.FrozenOnOwnTurn = d.FrozenOnOwnTurn
	c.JustPlayed = d.JustPlayed
	c.Enraged = d.Enraged
	if d.DivineShield != nil {
		c.Flags.DivineShield = *d.DivineShield
	}
	if d.Stealth != nil {
		c.Flags.Stealth = *d.Stealth
	}
	c.AuraAttackBonus = d.AuraAttackBonus
	c.AuraHealthBonus = d.AuraHealthBonus
	c.AuraCharge = d.AuraCharge
	return c
}

// SideSnapshot is the serialised form of a side.
type SideSnapshot struct {
	Seat      rules.Seat             `json:"seat"`
	Health    int                    `json:"health"`
	MaxHealth int                    `json:"maxHealth"`
	Mana      mana.Pool              `json:"mana"`
	Hand      []CardData             `json:"hand"`
	Field     []CardData             `json:"field"`
	Deck      []CardData             `json:"deck"`
	Graveyard []catalog.CardTemplate `json:"graveyard"`
	DeckList  []string               `json:"deckList"`
	Fatigue   int                    `json:"fatigue"`
	Ready     bool                   `json:"ready"`
}

// MatchSnapshot is a full, self-contained copy of a match.
type MatchSnapshot struct {
	Version   int                `json:"version"`
	MatchID   string             `json:"matchId"`
	Seq       uint64             `json:"seq"`
	Status    Status             `json:"status"`
	Winner    rules.Seat         `json:"winner,omitempty"`
	Paused    bool               `json:"paused,omitempty"`
	Turn      int                `json:"turn"`
	Active    rules.Seat         `json:"active"`
	SeatTurns map[rules.Seat]int `json:"seatTurns"`
	Seed      uint64             `json:"seed"`
	Sides     []SideSnapshot     `json:"sides"`
	CreatedAt time.Time          `json:"createdAt"`
	Checksum  string             `json:"checksum,omitempty"`
}

// Side returns the snapshot of seat.
func (s *MatchSnapshot) Side(seat rules.Seat) (SideSnapshot, bool) {
	for _, side := range s.Sides {
		if side.Seat == seat {
			return side, true
		}
	}
	return SideSnapshot{}, false
}

// ComputeChecksum hashes the snapshot with its checksum and timestamp
// cleared. encoding/json sorts map keys, so the encoding is deterministic.
func (s *MatchSnapshot) ComputeChecksum() (string, error) {
	clone := *s
	clone.Checksum = ""
	clone.CreatedAt = time.Time{}
	data, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal sets the checksum.
func (s *MatchSnapshot) Seal() error {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	s.Checksum = sum
	return nil
}

// VerifyChecksum reports whether the stored checksum matches the content.
func (s *MatchSnapshot) VerifyChecksum() (bool, error) {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return false, err
	}
	return sum == s.Checksum, nil
}

func cardsData(cards []*Card) []CardData {
	out := make([]CardData, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Data())
	}
	return out
}

// Snapshot captures the match. The result is sealed with its checksum.
func (m *Match) Snapshot() (*MatchSnapshot, error) {
	snap := &MatchSnapshot{
		Version:   SnapshotVersion,
		MatchID:   m.ID,
		Seq:       m.seq,
		Status:    m.status,
		Winner:    m.winner,
		Paused:    m.paused,
		Turn:      m.turns.TurnNumber(),
		Active:    m.turns.Active(),
		SeatTurns: map[rules.Seat]int{},
		Seed:      m.seed,
		CreatedAt: time.Now().UTC(),
	}
	for _, seat := range []rules.Seat{rules.SeatHost, rules.SeatGuest} {
		side := m.sides[seat]
		snap.SeatTurns[seat] = m.turns.SeatTurns(seat)
		names := make([]string, 0, len(side.DeckList))
		for _, t := range side.DeckList {
			names = append(names, t.Name)
		}
		graveyard := make([]catalog.CardTemplate, 0, len(side.Graveyard))
		for _, t := range side.Graveyard {
			graveyard = append(graveyard, t.Clone())
		}
		snap.Sides = append(snap.Sides, SideSnapshot{
			Seat:      seat,
			Health:    side.Health,
			MaxHealth: side.MaxHealth,
			Mana:      *side.Mana,
			Hand:      cardsData(side.Hand),
			Field:     cardsData(side.Field.Cards()),
			Deck:      cardsData(side.Deck),
			Graveyard: graveyard,
			DeckList:  names,
			Fatigue:   side.Fatigue,
			Ready:     side.Ready,
		})
	}
	if err := snap.Seal(); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreMatch rebuilds an authoritative match from a snapshot. Cards go
// through the factory, so snapshots without ability text restore the same
// flags.
func RestoreMatch(snap *MatchSnapshot, factory *CardFactory, r config.RulesConfig, logger *zap.Logger) (*Match, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore match: nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("restore match %s: unsupported snapshot version %d", snap.MatchID, snap.Version)
	}
	m := NewMatch(snap.MatchID, factory, r, logger)
	m.seq = snap.Seq
	m.status = snap.Status
	m.winner = snap.Winner
	m.paused = snap.Paused
	m.seed = snap.Seed
	m.turns = rules.RestoreTurnManager(snap.Turn, snap.Active, snap.SeatTurns)

	for _, ss := range snap.Sides {
		side, ok := m.sides[ss.Seat]
		if !ok {
			return nil, fmt.Errorf("restore match %s: unknown seat %q", snap.MatchID, ss.Seat)
		}
		side.Health = ss.Health
		side.MaxHealth = ss.MaxHealth
		pool := ss.Mana
		side.Mana = &pool
		side.Fatigue = ss.Fatigue
		side.Ready = ss.Ready
		for _, d := range ss.Hand {
			side.Hand = append(side.Hand, factory.Rebuild(d))
		}
		for _, d := range ss.Field {
			side.Field.Add(factory.Rebuild(d))
		}
		for _, d := range ss.Deck {
			side.Deck = append(side.Deck, factory.Rebuild(d))
		}
		for _, t := range ss.Graveyard {
			side.Graveyard = append(side.Graveyard, t.Clone())
		}
		for _, name := range ss.DeckList {
			side.DeckList = append(side.DeckList, factory.Recover(catalog.CardTemplate{Name: name}))
		}
	}
	return m, nil
}
