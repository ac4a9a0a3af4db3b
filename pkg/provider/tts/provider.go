// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one complete reply into raw PCM. Audio is written to
// the caller-supplied io.Writer as it arrives from the backend, so a playback
// sink can start playing before synthesis has finished.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"io"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize speaks text with voice and writes signed 16-bit
	// little-endian PCM in OutputFormat to w. It returns once the backend has
	// delivered all audio, or with the first error from the backend, from w,
	// or from ctx.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile, w io.Writer) error

	// OutputFormat reports the PCM format Synthesize writes.
	OutputFormat() audio.Format
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
