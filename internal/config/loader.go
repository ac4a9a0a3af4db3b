package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate   = 16000
	DefaultBlockSize    = 8000
	DefaultQueueFrames  = 64
	DefaultPlaybackRate = 24000
	DefaultRetryDelay   = 3 * time.Second
	DefaultWorkers      = 5
	DefaultLanguage     = "en"
	DefaultVoice        = "coral"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"deepgram", "whisper", "whisper-native"},
	"tts":   {"openai", "elevenlabs", "coqui"},
	"audio": {"malgo", "portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown fields are an error.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "malgo"
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = DefaultBlockSize
	}
	if cfg.Audio.QueueFrames == 0 {
		cfg.Audio.QueueFrames = DefaultQueueFrames
	}
	if cfg.Audio.PlaybackRate == 0 {
		cfg.Audio.PlaybackRate = DefaultPlaybackRate
	}
	if cfg.Persona.Voice == "" {
		cfg.Persona.Voice = DefaultVoice
	}
	if cfg.Practice.Language == "" {
		cfg.Practice.Language = DefaultLanguage
	}
	if cfg.Practice.RetryDelay == 0 {
		cfg.Practice.RetryDelay = DefaultRetryDelay
	}
	if cfg.Practice.Workers == 0 {
		cfg.Practice.Workers = DefaultWorkers
	}
	if cfg.Display.Mode == "" {
		cfg.Display.Mode = DisplayTUI
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found and logs warnings for legal but
// suspicious values.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	required := []struct {
		kind  string
		entry ProviderEntry
	}{
		{"llm", cfg.Providers.LLM},
		{"stt", cfg.Providers.STT},
		{"tts", cfg.Providers.TTS},
	}
	for _, r := range required {
		if !r.entry.IsSet() {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", r.kind))
		}
		validateProviderName(r.kind, r.entry.Name)
	}
	validateProviderName("llm", cfg.Providers.LLMFallback.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)
	if sameEndpoint(cfg.Providers.LLMFallback, cfg.Providers.LLM) {
		slog.Warn("providers.llm_fallback matches providers.llm; it adds no resilience")
	}
	if sameEndpoint(cfg.Providers.TTSFallback, cfg.Providers.TTS) {
		slog.Warn("providers.tts_fallback matches providers.tts; it adds no resilience")
	}

	a := cfg.Audio
	if !slices.Contains(ValidProviderNames["audio"], a.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: malgo, portaudio", a.Backend))
	}
	if a.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	if a.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be positive", a.BlockSize))
	}
	if a.QueueFrames <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_frames %d must be positive", a.QueueFrames))
	}
	if a.PlaybackRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.playback_rate %d must be positive", a.PlaybackRate))
	}
	if a.SampleRate > 0 && a.BlockSize > 2*a.SampleRate {
		slog.Warn("audio.block_size is longer than two seconds; control phrases will be noticed late",
			"block_size", a.BlockSize, "sample_rate", a.SampleRate)
	}

	p := cfg.Practice
	if p.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("practice.retry_delay %s must not be negative", p.RetryDelay))
	}
	if p.Workers <= 0 {
		errs = append(errs, fmt.Errorf("practice.workers %d must be positive", p.Workers))
	}
	if p.FuzzyThreshold < 0 || p.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("practice.fuzzy_threshold %.2f is out of range [0, 1]", p.FuzzyThreshold))
	} else if p.FuzzyThreshold > 0 && p.FuzzyThreshold < 0.8 {
		slog.Warn("practice.fuzzy_threshold below 0.8 will end turns on ordinary speech",
			"fuzzy_threshold", p.FuzzyThreshold)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("practice.temperature %.2f is out of range [0, 2]", p.Temperature))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("practice.max_tokens %d must not be negative", p.MaxTokens))
	}
	if len(p.Words) > 0 && p.WordsFile != "" {
		slog.Warn("practice.words and practice.words_file are both set; using the inline words")
	}

	if cfg.Display.Mode != "" && !cfg.Display.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("display.mode %q is invalid; valid values: tui, log", cfg.Display.Mode))
	}
	if cfg.Display.Mode == DisplayTUI && cfg.Server.LogFile == "" {
		slog.Warn("display.mode is tui but server.log_file is empty; log lines will be drawn over the bubble")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// sameEndpoint reports whether fallback is set and talks to the same model at
// the same place as primary.
func sameEndpoint(fallback, primary ProviderEntry) bool {
	return fallback.IsSet() &&
		fallback.Name == primary.Name &&
		fallback.Model == primary.Model &&
		fallback.BaseURL == primary.BaseURL
}
