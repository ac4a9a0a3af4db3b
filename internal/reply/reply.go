// Package reply generates the tutor's answer to a learner utterance.
//
// The reply model is stateless: every call sends the whole ordered
// conversation, from the system prompt to the new user turn.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/vocabloop/internal/observe"
	"github.com/MrWong99/vocabloop/internal/session"
	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// ErrService wraps every failure of the reply service, including an empty
// reply.
var ErrService = errors.New("reply: service failed")

const defaultContextWarnRatio = 0.8

// Option configures a [Stage].
type Option func(*Stage)

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(s *Stage) { s.temperature = t }
}

// WithMaxTokens caps the reply length. Zero keeps the provider default.
func WithMaxTokens(n int) Option {
	return func(s *Stage) { s.maxTokens = n }
}

// WithContextWarnRatio sets the share of the model's context window above
// which a warning is logged before each request. Default: 0.8.
func WithContextWarnRatio(r float64) Option {
	return func(s *Stage) {
		if r > 0 {
			s.warnRatio = r
		}
	}
}

// Stage calls the reply model. It is safe for concurrent use.
type Stage struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	warnRatio   float64
}

// New creates a Stage backed by p.
func New(p llm.Provider, opts ...Option) *Stage {
	s := &Stage{provider: p, warnRatio: defaultContextWarnRatio}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate appends userText as a user turn, asks the model for a reply and
// returns it with the history extended by the user and assistant turns.
//
// On any failure the returned history is h itself and the error wraps
// [ErrService]. h is never modified.
func (s *Stage) Generate(ctx context.Context, h session.History, userText string) (string, session.History, error) {
	ctx, span := observe.StartSpan(ctx, "reply.generate")
	defer span.End()
	log := observe.Logger(ctx).With("stage", "reply")

	withUser := h.With(session.RoleUser, userText)
	msgs := withUser.Messages()
	s.checkBudget(ctx, msgs)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return "", h, observe.Fail(span, "completion failed", fmt.Errorf("%w: %w", ErrService, err))
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", h, observe.Fail(span, "empty reply",
			fmt.Errorf("%w: empty reply (finish reason %q)", ErrService, resp.FinishReason))
	}
	if resp.FinishReason == "length" {
		log.Warn("reply truncated by token limit", "max_tokens", s.maxTokens)
	}

	span.SetAttributes(
		attribute.Int("reply.history_turns", len(withUser)+1),
		attribute.Int("reply.total_tokens", resp.Usage.TotalTokens),
	)
	log.Debug("reply generated", "chars", len(text), "tokens", resp.Usage.TotalTokens)
	return text, withUser.With(session.RoleAssistant, text), nil
}

// checkBudget logs a warning when the prompt approaches the model's context
// window. The history is never truncated.
func (s *Stage) checkBudget(ctx context.Context, msgs []types.Message) {
	window := s.provider.Capabilities().ContextWindow
	if window <= 0 {
		return
	}
	tokens, err := s.provider.CountTokens(msgs)
	if err != nil {
		observe.Logger(ctx).Debug("count tokens", "err", err)
		return
	}
	if float64(tokens) >= s.warnRatio*float64(window) {
		observe.Logger(ctx).Warn("conversation is close to the model context window",
			"tokens", tokens, "context_window", window)
	}
}
