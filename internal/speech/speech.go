// Package speech speaks tutor text through the local playback sink.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vocabloop/internal/observe"
	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// ErrService wraps synthesis and playback failures.
var ErrService = errors.New("speech: service failed")

// DefaultVoiceID is the synthesis voice of the tutor persona.
const DefaultVoiceID = "coral"

// DefaultInstructions is the delivery style of the tutor persona.
const DefaultInstructions = `Delivery: Exaggerated and theatrical, with dramatic pauses, sudden outbursts, and gleeful cackling.
Voice: High-energy, eccentric, and slightly unhinged, with a manic enthusiasm that rises and falls unpredictably.
Tone: Excited, chaotic, and grandiose, as if reveling in the brilliance of a mad experiment.
Pronunciation: Sharp and expressive, with elongated vowels, sudden inflections, and an emphasis on big words to sound more diabolical.`

// DefaultPersona returns the tutor voice profile.
func DefaultPersona() types.VoiceProfile {
	return types.VoiceProfile{
		ID:           DefaultVoiceID,
		Name:         "tutor",
		Instructions: DefaultInstructions,
	}
}

// Stage synthesizes text with a fixed persona and plays it.
type Stage struct {
	provider tts.Provider
	sink     audio.PlaybackSink
	voice    types.VoiceProfile
}

// New creates a Stage. Audio from p is converted to the sink's format when
// they differ.
func New(p tts.Provider, sink audio.PlaybackSink, voice types.VoiceProfile) *Stage {
	return &Stage{provider: p, sink: sink, voice: voice}
}

// Voice returns the persona the stage speaks with.
func (s *Stage) Voice() types.VoiceProfile { return s.voice }

// Speak synthesizes text into the sink and blocks until playback has
// drained. On failure any queued audio is discarded and the error wraps
// [ErrService].
func (s *Stage) Speak(ctx context.Context, text string) error {
	ctx, span := observe.StartSpan(ctx, "speech.speak")
	defer span.End()
	span.SetAttributes(attribute.Int("speech.chars", len(text)))

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: nothing to say", ErrService)
	}

	w := audio.NewConvertingWriter(s.sink, s.provider.OutputFormat(), s.sink.Format())
	if err := s.provider.Synthesize(ctx, text, s.voice, w); err != nil {
		return s.fail(span, "synthesize", err)
	}
	if err := s.sink.Drain(ctx); err != nil {
		return s.fail(span, "playback", err)
	}
	return nil
}

func (s *Stage) fail(span trace.Span, op string, err error) error {
	s.sink.Clear()
	return observe.Fail(span, op+" failed", fmt.Errorf("%w: %s: %w", ErrService, op, err))
}
