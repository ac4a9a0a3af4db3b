// Package phonetic matches misheard spellings against a small vocabulary using
// Double Metaphone encoding combined with Jaro-Winkler similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each token of the input and of every vocabulary term. A term whose codes
//     overlap with the input's becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the term with the
//     highest similarity wins, provided the score reaches the phonetic
//     threshold. Without any phonetic candidate, pure Jaro-Winkler similarity
//     is tested against every term with the stricter fuzzy threshold.
//
// A recognizer that splits a long word ("seren dipity") is handled by also
// comparing the input with its spaces removed.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score used when no term
// shares a phonetic code with the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the vocabulary term that sounds most like input.
//
// input may be a single word or a space-separated window of words. Comparison
// is case-insensitive; the returned term keeps the casing it has in
// vocabulary. When matched is false, term equals input and score is 0.
func (m *Matcher) Match(input string, vocabulary []string) (term string, score float64, matched bool) {
	if len(vocabulary) == 0 || strings.TrimSpace(input) == "" {
		return input, 0, false
	}

	inputLower := strings.ToLower(strings.TrimSpace(input))
	inputTokens := strings.Fields(inputLower)
	inputCodes := codesForTokens(inputTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, t := range vocabulary {
		termLower := strings.ToLower(strings.TrimSpace(t))
		if termLower == "" {
			continue
		}
		termTokens := strings.Fields(termLower)
		s := bestJWScore(inputTokens, termTokens, inputLower, termLower)

		if codesOverlap(inputCodes, codesForTokens(termTokens)) {
			if s >= m.phoneticThreshold && (!best.phonetic || s > best.score) {
				best = candidate{term: t, score: s, phonetic: true}
			}
			continue
		}
		// A phonetic candidate always beats a spelling-only one.
		if !best.phonetic && s >= m.fuzzyThreshold && s > best.score {
			best = candidate{term: t, score: s}
		}
	}

	if best.term == "" {
		return input, 0, false
	}
	return best.term, best.score, true
}

// codesForTokens returns the union of the Double Metaphone codes of tokens.
// Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity of three comparisons:
// the full strings, the strings with spaces removed, and (only when both
// sides have the same number of tokens) the best token pair.
func bestJWScore(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := strings.Join(inputTokens, "")
		if s := matchr.JaroWinkler(joined, strings.Join(termTokens, ""), false); s > score {
			score = s
		}
	}

	if len(inputTokens) == len(termTokens) {
		for _, it := range inputTokens {
			for _, tt := range termTokens {
				if s := matchr.JaroWinkler(it, tt, false); s > score {
					score = s
				}
			}
		}
	}
	return score
}
