// Package mock provides a test double for the tts.Provider interface.
//
// Provider writes a fixed PCM payload for every call and records the text
// and voice it was asked to speak.
//
//	p := &mock.Provider{Audio: make([]byte, 4800)}
//	err := p.Synthesize(ctx, "Explain the meaning of paradox", voice, sink)
package mock

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is written to w on every successful call.
	Audio []byte

	// Format is returned by OutputFormat. Defaults to 24 kHz mono.
	Format audio.Format

	// SynthesizeErr, if non-nil, is returned after AudioBeforeErr bytes of
	// Audio have been written.
	SynthesizeErr  error
	AudioBeforeErr int

	// Block, if non-nil, makes Synthesize wait until the channel is closed or
	// ctx is done.
	Block chan struct{}

	calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile, w io.Writer) error {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	data := p.Audio
	err := p.SynthesizeErr
	partial := p.AudioBeforeErr
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		if partial > 0 {
			_, _ = w.Write(data[:min(partial, len(data))])
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, werr := w.Write(data)
	return werr
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Format == (audio.Format{}) {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return p.Format
}

// Calls returns a copy of all recorded Synthesize invocations.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Texts returns the text of every recorded call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
