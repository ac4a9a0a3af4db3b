// Package session holds the conversation state of one practice session: the
// active word and the ordered history sent to the reply model.
package session

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/vocabloop/pkg/types"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Seed texts. The assistant line takes the word.
const (
	SystemPrompt    = "You are a helpful, friendly AI assistant."
	LearnerGoal     = "I want to practice some word meanings of English language which people use in their day to day life"
	assistantOpener = "Great! You can start with %s. Explain the meaning of this word if you know, otherwise I will tell you."
)

// Turn is one entry of a conversation.
type Turn = types.Message

// History is an ordered conversation: one system turn followed by user and
// assistant turns in strict alternation. History values are treated as
// immutable; every method that changes the sequence returns a new History.
type History []Turn

// Seed returns the three-turn history that opens practice on word.
func Seed(word string) History {
	return History{
		{Role: RoleSystem, Content: SystemPrompt},
		{Role: RoleUser, Content: LearnerGoal},
		{Role: RoleAssistant, Content: fmt.Sprintf(assistantOpener, word)},
	}
}

// With returns a copy of h with one more turn appended. h is not modified.
func (h History) With(role, content string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Turn{Role: role, Content: content})
}

// Clone returns an independent copy of h.
func (h History) Clone() History {
	return slices.Clone(h)
}

// Messages returns h as provider messages.
func (h History) Messages() []types.Message {
	return slices.Clone([]types.Message(h))
}

// Last returns the final turn, or false for an empty history.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// Validate reports whether h has exactly one leading system turn followed by
// alternating user and assistant turns.
func (h History) Validate() error {
	if len(h) == 0 {
		return errors.New("session: empty history")
	}
	if h[0].Role != RoleSystem {
		return fmt.Errorf("session: first turn has role %q, want %q", h[0].Role, RoleSystem)
	}
	want := RoleUser
	for i, t := range h[1:] {
		if t.Role != want {
			return fmt.Errorf("session: turn %d has role %q, want %q", i+1, t.Role, want)
		}
		if want == RoleUser {
			want = RoleAssistant
		} else {
			want = RoleUser
		}
	}
	return nil
}
