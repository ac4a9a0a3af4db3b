// Package config provides the configuration schema, loader, provider registry
// and file watcher of vocabloop.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DisplayMode selects how the session is shown.
type DisplayMode string

const (
	// DisplayTUI draws the terminal bubble.
	DisplayTUI DisplayMode = "tui"

	// DisplayLog writes display updates to the log only.
	DisplayLog DisplayMode = "log"
)

// IsValid reports whether m is a recognised display mode.
func (m DisplayMode) IsValid() bool {
	return m == DisplayTUI || m == DisplayLog
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Persona   PersonaConfig   `yaml:"persona"`
	Practice  PracticeConfig  `yaml:"practice"`
	Display   DisplayConfig   `yaml:"display"`
}

// ServerConfig holds the ops endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the ops server serving /metrics, /healthz
	// and /readyz. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed while running.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile receives the logs instead of stderr. Recommended with the TUI.
	LogFile string `yaml:"log_file"`
}

// ProvidersConfig selects the provider implementation of each stage. Each
// entry is looked up by name in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// LLMFallback and TTSFallback are tried when the primary fails. Optional.
	LLMFallback ProviderEntry `yaml:"llm_fallback"`
	TTSFallback ProviderEntry `yaml:"tts_fallback"`
}

// ProviderEntry is the configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai",
	// "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// IsSet reports whether a provider was configured.
func (e ProviderEntry) IsSet() bool { return e.Name != "" }

// AudioConfig configures local capture and playback.
type AudioConfig struct {
	// Backend selects the device library: "malgo" or "portaudio".
	Backend string `yaml:"backend"`

	// SampleRate is the capture rate handed to the recognizer. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the number of samples per captured frame. Default: 8000.
	BlockSize int `yaml:"block_size"`

	// QueueFrames bounds the capture queue. Default: 64.
	QueueFrames int `yaml:"queue_frames"`

	// PlaybackRate is the speaker sample rate. Default: 24000.
	PlaybackRate int `yaml:"playback_rate"`

	// RecordDir receives one WAV file per listening turn. Empty disables
	// recording.
	RecordDir string `yaml:"record_dir"`
}

// PersonaConfig sets the tutor voice.
type PersonaConfig struct {
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`
}

// PracticeConfig tunes the practice session.
type PracticeConfig struct {
	// Words is an inline word list. It takes precedence over WordsFile.
	Words []string `yaml:"words"`

	// WordsFile is a CSV file with a "word" column.
	WordsFile string `yaml:"words_file"`

	// Language is passed to the recognizer (BCP-47). Default: "en".
	Language string `yaml:"language"`

	// RetryDelay is the pause after a stage failure. Default: 3s.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Workers is the stage worker pool capacity. Default: 5.
	Workers int `yaml:"workers"`

	// FuzzyThreshold enables approximate control phrase matching when > 0.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// CorrectWord repairs misheard spellings of the active word in the
	// transcript.
	CorrectWord bool `yaml:"correct_word"`

	// Temperature and MaxTokens tune the reply model. Zero keeps the
	// provider default.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DisplayConfig selects the display.
type DisplayConfig struct {
	Mode DisplayMode `yaml:"mode"`
}
