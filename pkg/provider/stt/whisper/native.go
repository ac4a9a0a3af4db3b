// The whisper.cpp static library (libwhisper.a) and header (whisper.h) must be
// reachable through LIBRARY_PATH and C_INCLUDE_PATH at link time.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// NativeProvider implements stt.Provider with the whisper.cpp CGO bindings.
// The model is loaded once and shared; each utterance gets its own context.
type NativeProvider struct {
	model whisperlib.Model
	settings

	// whisper.cpp contexts are cheap but inference saturates the CPU; one
	// utterance at a time keeps latency predictable.
	inferMu sync.Mutex
}

var _ stt.Provider = (*NativeProvider)(nil)

// NewNative loads the model at modelPath. Call Close when done.
func NewNative(modelPath string, opts ...Option) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, settings: defaultSettings()}
	for _, o := range opts {
		o(&p.settings)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new session.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	seg, lang := p.segmenterFor(cfg)
	prompt := keywordPrompt(cfg.Keywords)

	return newSession(ctx, seg, func(_ context.Context, pcm []byte) (string, error) {
		return p.infer(pcm, seg, lang, prompt)
	}), nil
}

func (p *NativeProvider) infer(pcm []byte, seg segmenter, lang, prompt string) (string, error) {
	samples := pcmBuffer(pcm, seg.sampleRate, seg.channels).AsFloat32Buffer().Data

	p.inferMu.Lock()
	defer p.inferMu.Unlock()

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using model default", "language", lang, "err", err)
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if !isNonSpeech(text) {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
