// Package transcript corrects recognizer output toward the word being
// practised.
//
// Rare vocabulary words are the ones a recognizer gets wrong most often:
// "serendipity" comes back as "seren dipity" or "serendipitty". A [Corrector]
// scans the finalized text for short windows that sound like a vocabulary term
// and substitutes the term, keeping surrounding punctuation. Every substitution
// is reported as a [Correction] so callers can log or display it.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minCoreRunes is the shortest window that is considered for correction.
const minCoreRunes = 3

// Correction is one substitution made by a [Corrector].
type Correction struct {
	// Original is the window as the recognizer produced it, without
	// surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Score is the matcher's similarity score (0.0–1.0).
	Score float64
}

// Result is the output of [Corrector.Correct].
type Result struct {
	Text        string
	Corrections []Correction
}

// TermMatcher resolves a spoken window to the closest vocabulary term.
// [phonetic.Matcher] is the production implementation.
type TermMatcher interface {
	Match(input string, vocabulary []string) (term string, score float64, matched bool)
}

// Corrector applies a [TermMatcher] over word windows of a transcript.
// It is safe for concurrent use when the matcher is.
type Corrector struct {
	matcher TermMatcher
}

// New returns a Corrector backed by m.
func New(m TermMatcher) *Corrector {
	return &Corrector{matcher: m}
}

type piece struct {
	lead, core, trail string
}

// Correct returns text with misheard vocabulary terms replaced.
//
// At each position windows are tried from one token up to one more token than
// the longest term, and the first accepted window wins. A window is accepted
// only when its letter count is close to the term's, so short real words
// ("turn", "seren") are never stretched into a longer term. A window of several
// tokens must also look like a split of the term. Windows that already spell
// the term are left untouched and not reported.
func (c *Corrector) Correct(text string, vocabulary []string) Result {
	fields := strings.Fields(text)
	if c == nil || c.matcher == nil || len(fields) == 0 || len(vocabulary) == 0 {
		return Result{Text: text}
	}

	pieces := make([]piece, len(fields))
	for i, f := range fields {
		pieces[i] = splitPunct(f)
	}
	maxN := maxWordCount(vocabulary) + 1

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(pieces); {
		consumed := 0
		for n := 1; n <= maxN && i+n <= len(pieces); n++ {
			window := pieces[i : i+n]
			core := joinCores(window)
			if utf8.RuneCountInString(core) < minCoreRunes {
				continue
			}
			term, score, ok := c.matcher.Match(core, vocabulary)
			if !ok || !lengthCompatible(core, term) {
				continue
			}
			if n > 1 && !plausibleSplit(window, term) {
				continue
			}
			if strings.EqualFold(core, term) {
				out = append(out, fields[i:i+n]...)
			} else {
				out = append(out, window[0].lead+term+window[n-1].trail)
				corrections = append(corrections, Correction{Original: core, Corrected: term, Score: score})
			}
			consumed = n
			break
		}
		if consumed == 0 {
			out = append(out, fields[i])
			consumed = 1
		}
		i += consumed
	}

	if len(corrections) == 0 {
		return Result{Text: text}
	}
	return Result{Text: strings.Join(out, " "), Corrections: corrections}
}

// splitPunct separates leading and trailing punctuation from a token.
func splitPunct(tok string) piece {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(tok, isWord)
	if start < 0 {
		return piece{lead: tok}
	}
	end := strings.LastIndexFunc(tok, isWord)
	_, size := utf8.DecodeRuneInString(tok[end:])
	return piece{lead: tok[:start], core: tok[start : end+size], trail: tok[end+size:]}
}

func joinCores(window []piece) string {
	cores := make([]string, 0, len(window))
	for _, p := range window {
		if p.core == "" {
			return ""
		}
		cores = append(cores, p.core)
	}
	return strings.Join(cores, " ")
}

// plausibleSplit reports whether window reads like term broken into pieces:
// it starts with the term's first two letters and no single piece is already
// term-sized on its own.
func plausibleSplit(window []piece, term string) bool {
	first := []rune(strings.ToLower(window[0].core))
	want := []rune(strings.ToLower(term))
	if len(first) < 2 || len(want) < 2 || first[0] != want[0] || first[1] != want[1] {
		return false
	}
	for _, p := range window {
		if lengthCompatible(p.core, term) {
			return false
		}
	}
	return true
}

// lengthCompatible reports whether the letters of window and term differ by at
// most a quarter of the term length.
func lengthCompatible(window, term string) bool {
	a, b := letterCount(window), letterCount(term)
	tolerance := max(b/4, 1)
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func maxWordCount(vocabulary []string) int {
	longest := 1
	for _, v := range vocabulary {
		longest = max(longest, len(strings.Fields(v)))
	}
	return longest
}
