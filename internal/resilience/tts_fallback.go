package resilience

import (
	"context"
	"fmt"
	"io"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
//
// Audio from every backend is converted to the primary's output format, so
// callers see one stable format. Failover only happens while no audio has
// reached the writer; a backend that fails mid-utterance ends the call.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// OutputFormat returns the primary's format.
func (f *TTSFallback) OutputFormat() audio.Format {
	return f.group.Primary().OutputFormat()
}

// Synthesize implements [tts.Provider].
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile, w io.Writer) error {
	target := f.OutputFormat()
	cw := &countingWriter{w: w}
	return f.group.Execute(func(p tts.Provider) error {
		out := audio.NewConvertingWriter(cw, p.OutputFormat(), target)
		err := p.Synthesize(ctx, text, voice, out)
		if err != nil && cw.n > 0 {
			return Permanent(fmt.Errorf("after %d bytes of audio: %w", cw.n, err))
		}
		return err
	})
}

// ListVoices returns the voices of the first entry that can list them.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		vl, ok := p.(tts.VoiceLister)
		if !ok {
			return nil, fmt.Errorf("%T cannot list voices", p)
		}
		return vl.ListVoices(ctx)
	})
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
