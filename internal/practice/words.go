package practice

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// DefaultWords is used when no word source is configured or the configured
// file cannot be read.
var DefaultWords = []string{
	"serendipity", "ephemeral", "ubiquitous", "esoteric", "pragmatic",
	"eloquent", "paradox", "ambiguous", "meticulous", "resilient",
}

// WordPicker chooses the next word to practise.
type WordPicker interface {
	Pick() string
}

// WordList picks uniformly at random from a fixed list. Repeats are allowed.
// It is safe for concurrent use.
type WordList struct {
	mu    sync.Mutex
	words []string
	rng   *rand.Rand
}

// NewWordList returns a WordList over words. Blank entries are dropped; an
// error is returned when none remain. A nil rng uses a randomly seeded source.
func NewWordList(words []string, rng *rand.Rand) (*WordList, error) {
	clean := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			clean = append(clean, w)
		}
	}
	if len(clean) == 0 {
		return nil, errors.New("practice: word list is empty")
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &WordList{words: clean, rng: rng}, nil
}

// Pick returns one word.
func (l *WordList) Pick() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.words[l.rng.IntN(len(l.words))]
}

// Len returns the number of candidate words.
func (l *WordList) Len() int { return len(l.words) }

// LoadWords reads the "word" column of a CSV file with a header row.
func LoadWords(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("practice: open words file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("practice: read words header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), "word") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("practice: words file %s has no \"word\" column", path)
	}

	var words []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("practice: read words file: %w", err)
		}
		if col < len(rec) {
			if w := strings.TrimSpace(rec[col]); w != "" {
				words = append(words, w)
			}
		}
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("practice: words file %s contains no words", path)
	}
	return words, nil
}

// ResolveWords returns the words to practise: inline when non-empty, else the
// contents of path, else [DefaultWords]. A file that cannot be loaded is
// logged and replaced by the defaults.
func ResolveWords(fsys afero.Fs, path string, inline []string) []string {
	if len(inline) > 0 {
		return inline
	}
	if path == "" {
		return DefaultWords
	}
	words, err := LoadWords(fsys, path)
	if err != nil {
		slog.Warn("using built-in word list", "err", err)
		return DefaultWords
	}
	return words
}
