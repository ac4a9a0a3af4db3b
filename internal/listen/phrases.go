package listen

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// OutcomeKind tells the orchestrator how a listening turn ended.
type OutcomeKind int

const (
	// Continue is never returned by RunTurn; it is the result of a final
	// segment that carried no control phrase.
	Continue OutcomeKind = iota

	// TurnYielded means the learner handed the turn back to the tutor.
	TurnYielded

	// WordChangeRequested means the learner asked for a different word.
	WordChangeRequested

	// CloseRequested means the learner said goodbye.
	CloseRequested
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case TurnYielded:
		return "turn_yielded"
	case WordChangeRequested:
		return "word_change"
	case CloseRequested:
		return "close"
	default:
		return "unknown"
	}
}

// Default control phrases, in normalized form.
var (
	YieldPhrases      = []string{"up to you", "upto you", "your turn", "next to you", "over to you"}
	WordChangePhrases = []string{"give me a new word", "new word", "another word"}
	ClosePhrases      = []string{"goodbye", "good bye"}
)

// PhraseMatch describes a control phrase found in a final segment.
type PhraseMatch struct {
	Kind OutcomeKind

	// Phrase is the configured phrase that matched.
	Phrase string

	// Prefix is the text of the segment before the phrase, in its original
	// casing with trailing punctuation removed. Empty when the phrase opens
	// the segment.
	Prefix string
}

type phraseGroup struct {
	kind    OutcomeKind
	phrases []string
}

// MatcherOption configures a [PhraseMatcher].
type MatcherOption func(*PhraseMatcher)

// WithFuzzyThreshold enables approximate matching: when no phrase occurs
// verbatim, any window of words whose Jaro-Winkler similarity to a phrase
// reaches threshold counts as that phrase. 0 disables it.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *PhraseMatcher) {
		m.fuzzy = threshold
	}
}

// WithPhrases replaces the phrase list for kind.
func WithPhrases(kind OutcomeKind, phrases ...string) MatcherOption {
	return func(m *PhraseMatcher) {
		for i := range m.groups {
			if m.groups[i].kind == kind {
				m.groups[i].phrases = normalizeAll(phrases)
			}
		}
	}
}

// PhraseMatcher recognizes control phrases in finalized transcript text.
//
// Text and phrases are compared after [Normalize]. Groups are tested in fixed
// priority order (yield, word change, close) and the first group with a match
// wins, regardless of where in the text the phrases of other groups occur.
// PhraseMatcher is immutable after construction.
type PhraseMatcher struct {
	groups []phraseGroup
	fuzzy  float64
}

// NewPhraseMatcher returns a matcher for the default phrases.
func NewPhraseMatcher(opts ...MatcherOption) *PhraseMatcher {
	m := &PhraseMatcher{
		groups: []phraseGroup{
			{kind: TurnYielded, phrases: normalizeAll(YieldPhrases)},
			{kind: WordChangeRequested, phrases: normalizeAll(WordChangePhrases)},
			{kind: CloseRequested, phrases: normalizeAll(ClosePhrases)},
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Normalize lowercases s, turns every rune that is not a letter, digit or
// apostrophe into a space and collapses runs of whitespace. Typographic
// apostrophes become ASCII ones.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '’' || r == '‘':
			b.WriteByte('\'')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// token is one normalized word and the index of the original field it came
// from.
type token struct {
	text  string
	field int
	start int // byte offset in the joined normalized text
}

type segment struct {
	fields []string
	tokens []token
	joined string
}

func parseSegment(text string) segment {
	seg := segment{fields: strings.Fields(text)}
	var b strings.Builder
	for i, f := range seg.fields {
		for _, w := range strings.Fields(Normalize(f)) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			seg.tokens = append(seg.tokens, token{text: w, field: i, start: b.Len()})
			b.WriteString(w)
		}
	}
	seg.joined = b.String()
	return seg
}

// prefixBefore returns the original fields that end before byte offset pos of
// the joined normalized text.
func (s segment) prefixBefore(pos int) string {
	field := len(s.fields)
	for _, t := range s.tokens {
		if t.start+len(t.text) > pos {
			field = t.field
			break
		}
	}
	prefix := strings.Join(s.fields[:field], " ")
	return strings.TrimRightFunc(prefix, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Match tests text against every phrase group in priority order.
func (m *PhraseMatcher) Match(text string) (PhraseMatch, bool) {
	seg := parseSegment(text)
	if seg.joined == "" {
		return PhraseMatch{}, false
	}

	for _, g := range m.groups {
		best, bestPos := "", -1
		for _, p := range g.phrases {
			if pos := strings.Index(seg.joined, p); pos >= 0 && (bestPos < 0 || pos < bestPos) {
				best, bestPos = p, pos
			}
		}
		if bestPos >= 0 {
			return PhraseMatch{Kind: g.kind, Phrase: best, Prefix: seg.prefixBefore(bestPos)}, true
		}
	}

	if m.fuzzy <= 0 {
		return PhraseMatch{}, false
	}
	for _, g := range m.groups {
		if pm, ok := m.fuzzyGroup(seg, g); ok {
			return pm, true
		}
	}
	return PhraseMatch{}, false
}

// fuzzyGroup slides a window the size of each phrase over the tokens and
// returns the earliest window that scores at least the fuzzy threshold.
func (m *PhraseMatcher) fuzzyGroup(seg segment, g phraseGroup) (PhraseMatch, bool) {
	var (
		found   bool
		bestTok int
		best    string
	)
	for _, p := range g.phrases {
		n := len(strings.Fields(p))
		for i := 0; i+n <= len(seg.tokens); i++ {
			if found && i >= bestTok {
				break
			}
			words := make([]string, n)
			for j := range n {
				words[j] = seg.tokens[i+j].text
			}
			if matchr.JaroWinkler(strings.Join(words, " "), p, false) >= m.fuzzy {
				found, bestTok, best = true, i, p
				break
			}
		}
	}
	if !found {
		return PhraseMatch{}, false
	}
	return PhraseMatch{Kind: g.kind, Phrase: best, Prefix: seg.prefixBefore(seg.tokens[bestTok].start)}, true
}
