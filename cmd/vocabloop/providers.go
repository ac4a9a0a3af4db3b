package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vocabloop/internal/app"
	"github.com/MrWong99/vocabloop/internal/config"
	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/audio/miniaudio"
	"github.com/MrWong99/vocabloop/pkg/audio/portaudio"
	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/provider/llm/anyllm"
	"github.com/MrWong99/vocabloop/pkg/provider/llm/openai"
	"github.com/MrWong99/vocabloop/pkg/provider/stt"
	"github.com/MrWong99/vocabloop/pkg/provider/stt/deepgram"
	"github.com/MrWong99/vocabloop/pkg/provider/stt/whisper"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/provider/tts/coqui"
	"github.com/MrWong99/vocabloop/pkg/provider/tts/elevenlabs"
	openaitts "github.com/MrWong99/vocabloop/pkg/provider/tts/openai"
)

// portaudioBuffer is the PortAudio buffer size in samples.
const portaudioBuffer = 1024

// registerBuiltinProviders wires all built-in provider factories into reg.
// The practice language and capture rate come from cfg because the
// recognizers need them at construction.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		model := entry.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	// Every other vendor goes through any-llm. Local servers only need BaseURL.
	for _, backend := range anyllm.Backends() {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			switch {
			case entry.APIKey != "":
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			case !anyllm.Local(backend):
				slog.Debug("no api_key configured, backend reads its environment", "backend", backend)
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	language := cfg.Practice.Language
	rate := cfg.Audio.SampleRate

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{
			deepgram.WithLanguage(language),
			deepgram.WithSampleRate(rate),
		}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "endpointing"); d > 0 {
			opts = append(opts, deepgram.WithEndpointing(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	whisperOpts := func(entry config.ProviderEntry) []whisper.Option {
		opts := []whisper.Option{
			whisper.WithLanguage(language),
			whisper.WithSampleRate(rate),
		}
		if d := optDuration(entry.Options, "silence"); d > 0 {
			opts = append(opts, whisper.WithSilenceThreshold(d))
		}
		return opts
	}

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := whisperOpts(entry)
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		return whisper.NewNative(modelPath, whisperOpts(entry)...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openaitts.Option
		if entry.Model != "" {
			opts = append(opts, openaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openaitts.WithTimeout(d))
		}
		return openaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(ac config.AudioConfig) (*config.AudioBackend, error) {
		b, err := miniaudio.Open(miniaudio.Config{
			CaptureRate:  ac.SampleRate,
			PlaybackRate: ac.PlaybackRate,
		})
		if err != nil {
			return nil, err
		}
		return &config.AudioBackend{
			Capture:  b.Capture(),
			Playback: b.Playback(),
			Close:    func() error { b.Close(); return nil },
		}, nil
	})

	reg.RegisterAudio("portaudio", func(ac config.AudioConfig) (*config.AudioBackend, error) {
		if err := portaudio.Initialize(); err != nil {
			return nil, err
		}
		sink, err := portaudio.OpenPlaybackSink(audio.Format{SampleRate: ac.PlaybackRate, Channels: 1}, portaudioBuffer)
		if err != nil {
			return nil, errors.Join(err, portaudio.Terminate())
		}
		return &config.AudioBackend{
			Capture:  portaudio.NewCaptureDevice(ac.SampleRate, portaudioBuffer),
			Playback: sink,
			Close:    func() error { return errors.Join(sink.Close(), portaudio.Terminate()) },
		}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The audio devices are opened last so a provider error leaves no
// device behind.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.LLM, err = create("llm", cfg.Providers.LLM, reg.CreateLLM); err != nil {
		return nil, err
	}
	if cfg.Providers.LLMFallback.IsSet() {
		if ps.LLMFallback, err = create("llm fallback", cfg.Providers.LLMFallback, reg.CreateLLM); err != nil {
			return nil, err
		}
	}
	if ps.STT, err = create("stt", cfg.Providers.STT, reg.CreateSTT); err != nil {
		return nil, err
	}
	if ps.TTS, err = create("tts", cfg.Providers.TTS, reg.CreateTTS); err != nil {
		return nil, err
	}
	if cfg.Providers.TTSFallback.IsSet() {
		if ps.TTSFallback, err = create("tts fallback", cfg.Providers.TTSFallback, reg.CreateTTS); err != nil {
			return nil, err
		}
	}

	if ps.Audio, err = reg.CreateAudio(cfg.Audio); err != nil {
		return nil, fmt.Errorf("open audio backend %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("audio backend opened",
		"backend", cfg.Audio.Backend,
		"capture", ps.Audio.Capture.Format(),
		"playback", ps.Audio.Playback.Format(),
	)
	return ps, nil
}

func create[T any](kind string, entry config.ProviderEntry, fn func(config.ProviderEntry) (T, error)) (T, error) {
	p, err := fn(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "300ms". Invalid values are
// logged and ignored.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid duration option", "key", key, "value", s, "err", err)
		return 0
	}
	return d
}
