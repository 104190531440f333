package abilities

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/catalog"
)

// Source is the part of a card the resolver reads.
type Source struct {
	Name           string
	Kind           catalog.CardType
	Ability        string
	SplashBonus    string
	SplashFriendly bool
	Colors         []catalog.Color
}

// SourceOf builds a Source from a template.
func SourceOf(t catalog.CardTemplate) Source {
	return Source{
		Name:           t.Name,
		Kind:           t.Type,
		Ability:        t.Ability,
		SplashBonus:    t.SplashBonus,
		SplashFriendly: t.SplashFriendly,
		Colors:         t.Colors,
	}
}

// Context carries the per-deck facts a resolution depends on.
type Context struct {
	MainColors map[catalog.Color]bool
}

// SplashActive reports whether src is being played as a splash card: it
// is splash friendly, has bonus text, and has a color outside the deck's
// main colors.
func SplashActive(src Source, main map[catalog.Color]bool) bool {
	if !src.SplashFriendly || src.SplashBonus == "" {
		return false
	}
	for _, c := range src.Colors {
		if c == catalog.ColorColorless {
			continue
		}
		if !main[c] {
			return true
		}
	}
	return false
}

type cacheKey struct {
	kind  catalog.CardType
	text  string
	bonus bool
}

// Resolver maps ability text to flags and effects. Parsed text is cached;
// the cache is safe for concurrent use by several matches.
type Resolver struct {
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[cacheKey]Parsed
}

// NewResolver creates a resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger: logger,
		cache:  make(map[cacheKey]Parsed),
	}
}

// Flags returns the keyword flags of src.
func (r *Resolver) Flags(src Source) Flags {
	return r.parsed(src.Name, src.Kind, src.Ability, false).Flags
}

// Resolve returns the effects src produces for trigger. Splash bonus
// effects are appended when the splash rule holds for ctx. Text that
// matches nothing yields a single no-op effect.
func (r *Resolver) Resolve(src Source, trigger Trigger, ctx Context) []Effect {
	effects := r.parsed(src.Name, src.Kind, src.Ability, false).EffectsFor(trigger)
	if SplashActive(src, ctx.MainColors) {
		bonus := r.parsed(src.Name, src.Kind, src.SplashBonus, true).EffectsFor(trigger)
		if len(bonus) > 0 {
			r.logger.Debug("splash bonus active",
				zap.String("card", src.Name),
				zap.String("trigger", string(trigger)),
			)
			effects = append(effects, bonus...)
		}
	}
	return effects
}

func (r *Resolver) parsed(name string, kind catalog.CardType, text string, bonus bool) Parsed {
	if text == "" {
		return Parsed{}
	}
	key := cacheKey{kind: kind, text: text, bonus: bonus}

	r.mu.RLock()
	p, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return p
	}

	if bonus {
		p = ParseBonus(text)
	} else {
		p = Parse(text, kind)
	}
	for _, u := range p.Unmatched {
		r.logger.Warn("unrecognised ability text",
			zap.String("card", name),
			zap.String("text", u),
		)
	}

	r.mu.Lock()
	r.cache[key] = p
	r.mu.Unlock()
	return p
}
