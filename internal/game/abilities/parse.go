package abilities

import (
	"regexp"
	"strings"

	"github.com/mysticduel/duel-server/internal/catalog"
)

// Parsed is the result of reading one ability text.
type Parsed struct {
	Flags   Flags
	Effects []Effect
	// Unmatched holds clause text no pattern recognised.
	Unmatched []string
}

// EffectsFor returns the effects with the given trigger, in text order.
func (p Parsed) EffectsFor(trigger Trigger) []Effect {
	var out []Effect
	for _, e := range p.Effects {
		if e.Trigger == trigger {
			out = append(out, e)
		}
	}
	return out
}

var prefixRe = regexp.MustCompile(`(?i)\b(battlecry|deathrattle|attack trigger|on attack|aura|end of turn)\s*:`)

func prefixTrigger(word string) Trigger {
	switch strings.ToLower(word) {
	case "battlecry":
		return TriggerPlay
	case "deathrattle":
		return TriggerDeath
	case "attack trigger", "on attack":
		return TriggerAttack
	case "aura":
		return TriggerAura
	case "end of turn":
		return TriggerEndOfTurn
	}
	return TriggerStatic
}

type clause struct {
	trigger Trigger
	text    string
}

// segment splits ability text into sentences and splits each sentence at
// its trigger prefix. Text before a prefix is static. A prefix-free
// sentence that follows a triggered one and carries no keyword keeps the
// previous trigger, so "Battlecry: Deal 1 damage. Draw a card" is two
// play effects.
func segment(text string) []clause {
	var out []clause
	prev := TriggerStatic
	for _, sentence := range strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == ';' || r == '\n' }) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		loc := prefixRe.FindStringSubmatchIndex(sentence)
		if loc == nil {
			if prev != TriggerStatic && len(claim(sentence, keywordRes)) == 0 {
				out = append(out, clause{trigger: prev, text: sentence})
				continue
			}
			prev = TriggerStatic
			out = append(out, clause{trigger: TriggerStatic, text: sentence})
			continue
		}
		if before := strings.TrimSpace(strings.TrimRight(sentence[:loc[0]], " ,")); before != "" {
			out = append(out, clause{trigger: TriggerStatic, text: before})
		}
		prev = prefixTrigger(sentence[loc[2]:loc[3]])
		out = append(out, clause{trigger: prev, text: strings.TrimSpace(sentence[loc[1]:])})
	}
	return out
}

var allRes = append(append([]*regexp.Regexp{}, keywordRes...), effectRes...)

// Parse reads ability text for a card of the given kind. Keywords are
// taken from static clauses only. Static effect text on a spell is an
// on-play effect; on a creature only aura effects are valid there.
func Parse(text string, kind catalog.CardType) Parsed {
	var p Parsed
	for _, c := range segment(text) {
		if c.trigger == TriggerStatic {
			parseStatic(&p, c.text, kind)
			continue
		}
		parseTriggered(&p, c.trigger, c.text)
	}
	return p
}

// ParseBonus reads splash bonus text. Unprefixed text is an on-play
// effect and keywords are ignored.
func ParseBonus(text string) Parsed {
	var p Parsed
	for _, c := range segment(text) {
		trigger := c.trigger
		if trigger == TriggerStatic {
			trigger = TriggerPlay
		}
		parseTriggered(&p, trigger, c.text)
	}
	for i := range p.Effects {
		p.Effects[i].Splash = true
	}
	return p
}

// DeriveFlags returns the keyword flags of ability text.
func DeriveFlags(text string) Flags {
	return Parse(text, catalog.TypeCreature).Flags
}

func parseStatic(p *Parsed, text string, kind catalog.CardType) {
	matches := claim(text, allRes)
	var claimed []span
	for _, m := range matches {
		if m.idx < len(keywordTable) {
			keywordTable[m.idx].apply(&p.Flags, m.groups)
			claimed = append(claimed, m.span)
			continue
		}
		e := effectTable[m.idx-len(keywordTable)].build(m.groups)
		switch {
		case kind == catalog.TypeSpell:
			e.Trigger = TriggerPlay
		case e.Kind == EffectAuraStats || e.Kind == EffectAuraCharge:
			e.Trigger = TriggerAura
		default:
			continue
		}
		e.Text = text[m.start:m.end]
		p.Effects = append(p.Effects, e)
		claimed = append(claimed, m.span)
	}
	if rest := residue(text, claimed); rest != "" {
		p.Unmatched = append(p.Unmatched, rest)
		if kind == catalog.TypeSpell {
			p.Effects = append(p.Effects, Effect{Kind: EffectNone, Trigger: TriggerPlay, Text: rest})
		}
	}
}

func parseTriggered(p *Parsed, trigger Trigger, body string) {
	matches := claim(body, effectRes)
	if len(matches) == 0 {
		p.Unmatched = append(p.Unmatched, body)
		p.Effects = append(p.Effects, Effect{Kind: EffectNone, Trigger: trigger, Text: body})
		return
	}
	for _, m := range matches {
		e := effectTable[m.idx].build(m.groups)
		e.Trigger = trigger
		e.Text = body[m.start:m.end]
		p.Effects = append(p.Effects, e)
	}
}

// residue is the text left over once claimed spans, separators and
// connectives are removed.
func residue(text string, claimed []span) string {
	var b strings.Builder
	last := 0
	for _, s := range sortedSpans(claimed) {
		if s.start > last {
			b.WriteString(text[last:s.start])
		}
		b.WriteByte(' ')
		if s.end > last {
			last = s.end
		}
	}
	if last < len(text) {
		b.WriteString(text[last:])
	}

	var words []string
	for _, w := range strings.FieldsFunc(b.String(), func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if lw := strings.ToLower(w); lw == "and" || lw == "&" {
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " ")
}

func sortedSpans(in []span) []span {
	out := append([]span(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].start < out[j-1].start; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
