package session

import "sync"

// State is the mutable part of a session: the active word and its history.
// The word and history always change together, so a reader never sees a
// history that belongs to another word.
//
// State is safe for concurrent use.
type State struct {
	mu      sync.Mutex
	word    string
	history History
}

// Reset makes word the active word and replaces the history with its seed.
func (s *State) Reset(word string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.word = word
	s.history = Seed(word)
}

// Snapshot returns the active word and a copy of the history.
func (s *State) Snapshot() (string, History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.word, s.history.Clone()
}

// Word returns the active word.
func (s *State) Word() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.word
}

// Commit stores h as the history of word. It returns false and leaves the
// state untouched when word is no longer active.
func (s *State) Commit(word string, h History) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if word != s.word {
		return false
	}
	s.history = h.Clone()
	return true
}

// Len returns the number of turns in the history.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
