package abilities

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// span is a claimed byte range of a clause.
type span struct{ start, end int }

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

type keywordPattern struct {
	phrase string
	re     *regexp.Regexp
	apply  func(f *Flags, m []string)
}

type effectPattern struct {
	phrase string
	re     *regexp.Regexp
	build  func(m []string) Effect
}

// Keyword matching is case-sensitive.
var keywordTable = []keywordPattern{
	kw("Taunt", func(f *Flags, _ []string) { f.Taunt = true }),
	kw("Vigilance", func(f *Flags, _ []string) { f.Vigilance = true }),
	kw("Stealth", func(f *Flags, _ []string) { f.Stealth = true }),
	kw("Divine Shield", func(f *Flags, _ []string) { f.DivineShield = true }),
	kw("Spell Shield", func(f *Flags, _ []string) { f.SpellShield = true }),
	kw("Flying", func(f *Flags, _ []string) { f.Flying = true }),
	kw("Lifesteal", func(f *Flags, _ []string) { f.Lifesteal = true }),
	kw("Lifelink", func(f *Flags, _ []string) { f.Lifesteal = true }),
	kw("First Strike", func(f *Flags, _ []string) { f.FirstStrike = true }),
	kw("Double Strike", func(f *Flags, _ []string) { f.DoubleStrike = true }),
	kw("Windfury", func(f *Flags, _ []string) { f.Windfury = true }),
	kw("Trample", func(f *Flags, _ []string) { f.Trample = true }),
	kw("Poison", func(f *Flags, _ []string) { f.LethalTouch = true }),
	kw("Deathtouch", func(f *Flags, _ []string) { f.LethalTouch = true }),
	kw("Destroy any creature damaged by this", func(f *Flags, _ []string) { f.InstantKill = true }),
	kw("Enrage", func(f *Flags, _ []string) { f.Enrage = true }),
	kw("Freeze", func(f *Flags, _ []string) { f.FreezeOnHit = true }),
	kw("Reach", func(f *Flags, _ []string) { f.Reach = true }),
	kw("Charge", func(f *Flags, _ []string) { f.Charge = true }),
	kw("Regenerate", func(f *Flags, _ []string) { f.Regenerate = true }),
	kw("Immune", func(f *Flags, _ []string) { f.Immune = true }),
	kw("Immune while attacking", func(f *Flags, _ []string) { f.ImmuneWhileAttacking = true }),
	kw("Can only attack creatures", func(f *Flags, _ []string) { f.CanOnlyAttackCreatures = true }),
	kw("Cannot be blocked", func(f *Flags, _ []string) { f.IgnoresTaunt = true }),
	kw("Bypass Taunt", func(f *Flags, _ []string) { f.IgnoresTaunt = true }),
	kw("Spell Power", func(f *Flags, _ []string) { f.SpellPower++ }),
	{
		phrase: "Spell Power +N",
		re:     regexp.MustCompile(`Spell Power \+(\d+)`),
		apply: func(f *Flags, m []string) {
			f.SpellPower += atoi(m[1])
		},
	},
}

const num = `(a|an|one|two|three|four|five|\d+)`

var effectTable = []effectPattern{
	ef("deal N damage to all enemy creatures", `(?i)deal (\d+) damage to all enemy (?:creatures|minions)`, damage(ScopeAllEnemyCreatures)),
	ef("deal N damage to all creatures", `(?i)deal (\d+) damage to all (?:creatures|minions|characters)`, damage(ScopeAllCreatures)),
	ef("deal N damage to all enemies", `(?i)deal (\d+) damage to all enemies`, damage(ScopeAllEnemies)),
	ef("deal N damage to enemy player", `(?i)deal (\d+) damage to (?:the )?(?:enemy player|enemy hero|your opponent|opponent)`, damage(ScopeEnemyPlayer)),
	ef("deal N damage to a random enemy", `(?i)deal (\d+) damage to a random enemy`, damage(ScopeRandomEnemy)),
	ef("deal N damage to target creature", `(?i)deal (\d+) damage to (?:a |an |target )?(?:enemy creature|creature|minion|enemy)`, damage(ScopeTarget)),
	ef("deal N damage", `(?i)deal (\d+) damage`, damage(ScopeUnspecified)),

	ef("draw N cards", `(?i)draw `+num+` cards?`, func(m []string) Effect {
		return Effect{Kind: EffectDraw, Amount: count(m[1])}
	}),
	ef("restore N health to your player", `(?i)(?:restore|heal) (\d+) health to your (?:player|hero)`, func(m []string) Effect {
		return Effect{Kind: EffectHeal, Scope: ScopeFriendlyPlayer, Amount: atoi(m[1])}
	}),
	ef("restore N health", `(?i)(?:restore|heal) (\d+) health`, func(m []string) Effect {
		return Effect{Kind: EffectHeal, Amount: atoi(m[1])}
	}),
	ef("summon N A/H Name", `(?i)summon `+num+` (\d+)/(\d+) ((?-i:[A-Z][A-Za-z'-]*(?: [A-Z][A-Za-z'-]*)*))`, func(m []string) Effect {
		n := count(m[1])
		name := m[4]
		if n > 1 {
			name = strings.TrimSuffix(name, "s")
		}
		return Effect{
			Kind:  EffectSummon,
			Scope: ScopeFriendly,
			Token: &Token{Name: name, Attack: atoi(m[2]), Health: atoi(m[3]), Count: n},
		}
	}),
	ef("return this to your hand", `(?i)return (?:this|it) to (?:your|its owner's) hand`, returnToHand),
	ef("resurrect", `(?i)resurrect`, returnToHand),
	ef("your opponent loses N health", `(?i)(?:your opponent|the enemy player|enemy player|opponent) loses (\d+) health`, func(m []string) Effect {
		return Effect{Kind: EffectLoseHealth, Scope: ScopeEnemyPlayer, Amount: atoi(m[1])}
	}),
	ef("freeze all enemy creatures", `(?i)freeze all enemy (?:creatures|minions)`, func(m []string) Effect {
		return Effect{Kind: EffectFreeze, Scope: ScopeAllEnemyCreatures}
	}),
	ef("freeze an enemy creature", `(?i)freeze (?:a |an |target )?(?:enemy creature|enemy|creature|minion)`, func(m []string) Effect {
		return Effect{Kind: EffectFreeze, Scope: ScopeTarget}
	}),
	ef("give a friendly creature +N attack", `(?i)give (?:a |target )?(?:friendly )?(?:creature|minion) \+(\d+) attack`, func(m []string) Effect {
		return Effect{Kind: EffectBuffAttack, Scope: ScopeTarget, Amount: atoi(m[1])}
	}),
	ef("gain +N attack", `(?i)gain \+(\d+) attack`, func(m []string) Effect {
		return Effect{Kind: EffectBuffAttack, Scope: ScopeSelf, Amount: atoi(m[1])}
	}),
	ef("gain N mana", `(?i)gain (\d+) mana`, func(m []string) Effect {
		return Effect{Kind: EffectGainMana, Scope: ScopeFriendlyPlayer, Amount: atoi(m[1])}
	}),

	ef("other friendly creatures have +A/+H", `(?i)other friendly (?:creatures|minions) have \+(\d+)/\+(\d+)`, aura(ScopeOtherFriendly, true)),
	ef("other friendly creatures have +N attack", `(?i)other friendly (?:creatures|minions) have \+(\d+) attack`, aura(ScopeOtherFriendly, false)),
	ef("friendly creatures have +A/+H", `(?i)friendly (?:creatures|minions) have \+(\d+)/\+(\d+)`, aura(ScopeFriendly, true)),
	ef("friendly creatures have +N attack", `(?i)friendly (?:creatures|minions) have \+(\d+) attack`, aura(ScopeFriendly, false)),
	ef("other friendly creatures have charge", `(?i)other friendly (?:creatures|minions) have charge`, func(m []string) Effect {
		return Effect{Kind: EffectAuraCharge, Scope: ScopeOtherFriendly}
	}),
	ef("friendly creatures have charge", `(?i)friendly (?:creatures|minions) have charge`, func(m []string) Effect {
		return Effect{Kind: EffectAuraCharge, Scope: ScopeFriendly}
	}),
}

func kw(phrase string, apply func(f *Flags, m []string)) keywordPattern {
	return keywordPattern{phrase: phrase, re: regexp.MustCompile(regexp.QuoteMeta(phrase)), apply: apply}
}

func ef(phrase, expr string, build func(m []string) Effect) effectPattern {
	return effectPattern{phrase: phrase, re: regexp.MustCompile(expr), build: build}
}

func damage(scope Scope) func(m []string) Effect {
	return func(m []string) Effect {
		return Effect{Kind: EffectDamage, Scope: scope, Amount: atoi(m[1])}
	}
}

func aura(scope Scope, withHealth bool) func(m []string) Effect {
	return func(m []string) Effect {
		e := Effect{Kind: EffectAuraStats, Scope: scope, Attack: atoi(m[1])}
		if withHealth {
			e.Health = atoi(m[2])
		}
		return e
	}
}

func returnToHand(m []string) Effect {
	return Effect{Kind: EffectReturnToHand, Scope: ScopeSelf}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func count(s string) int {
	switch strings.ToLower(s) {
	case "a", "an", "one":
		return 1
	case "two":
		return 2
	case "three":
		return 3
	case "four":
		return 4
	case "five":
		return 5
	}
	return atoi(s)
}

type match struct {
	span
	idx    int
	groups []string
}

// claim finds the non-overlapping matches of res in text. Longer matches
// claim their text first, so a phrase contained in an already matched
// phrase ("Taunt" inside "Bypass Taunt") is suppressed. Ties go to the
// earlier table entry. The result is in text order.
func claim(text string, res []*regexp.Regexp) []match {
	var all []match
	for i, re := range res {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, len(loc)/2)
			for g := range groups {
				if loc[2*g] >= 0 {
					groups[g] = text[loc[2*g]:loc[2*g+1]]
				}
			}
			all = append(all, match{span: span{loc[0], loc[1]}, idx: i, groups: groups})
		}
	}

	sort.SliceStable(all, func(a, b int) bool {
		la, lb := all[a].end-all[a].start, all[b].end-all[b].start
		if la != lb {
			return la > lb
		}
		if all[a].start != all[b].start {
			return all[a].start < all[b].start
		}
		return all[a].idx < all[b].idx
	})

	var claimed []span
	out := make([]match, 0, len(all))
	for _, m := range all {
		if overlaps(claimed, m.span) {
			continue
		}
		claimed = append(claimed, m.span)
		out = append(out, m)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].start < out[b].start })
	return out
}

var (
	keywordRes = func() []*regexp.Regexp {
		res := make([]*regexp.Regexp, len(keywordTable))
		for i, p := range keywordTable {
			res[i] = p.re
		}
		return res
	}()
	effectRes = func() []*regexp.Regexp {
		res := make([]*regexp.Regexp, len(effectTable))
		for i, p := range effectTable {
			res[i] = p.re
		}
		return res
	}()
)
