package phonetic_test

import (
	"testing"

	"github.com/MrWong99/vocabloop/internal/transcript/phonetic"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	vocabulary := []string{"Serendipity", "Ephemeral"}

	tests := []struct {
		name      string
		input     string
		wantTerm  string
		wantMatch bool
		minScore  float64
	}{
		{name: "misspelled", input: "serendipitty", wantTerm: "Serendipity", wantMatch: true, minScore: 0.9},
		{name: "split word", input: "seren dipity", wantTerm: "Serendipity", wantMatch: true, minScore: 0.99},
		{name: "upper case", input: "EPHEMERAL", wantTerm: "Ephemeral", wantMatch: true, minScore: 0.99},
		{name: "unrelated", input: "hello", wantTerm: "hello", wantMatch: false},
		{name: "blank", input: "  ", wantTerm: "  ", wantMatch: false},
	}

	m := phonetic.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			term, score, ok := m.Match(tc.input, vocabulary)
			if ok != tc.wantMatch {
				t.Fatalf("Match(%q) matched = %v, want %v", tc.input, ok, tc.wantMatch)
			}
			if term != tc.wantTerm {
				t.Errorf("Match(%q) term = %q, want %q", tc.input, term, tc.wantTerm)
			}
			if !ok && score != 0 {
				t.Errorf("Match(%q) score = %f, want 0 when unmatched", tc.input, score)
			}
			if ok && score < tc.minScore {
				t.Errorf("Match(%q) score = %f, want >= %f", tc.input, score, tc.minScore)
			}
		})
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, ok := m.Match("serendipitty", []string{"serendipity"}); ok {
		t.Fatal("near-miss accepted with threshold 0.99")
	}
	if term, _, ok := m.Match("serendipity", []string{"serendipity"}); !ok || term != "serendipity" {
		t.Fatalf("exact match rejected: %q %v", term, ok)
	}
}

func TestMatcher_EmptyVocabulary(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	term, score, ok := m.Match("serendipity", nil)
	if ok || term != "serendipity" || score != 0 {
		t.Fatalf("Match with no vocabulary = (%q, %f, %v)", term, score, ok)
	}
}
