// Package types defines the shared types used across vocabloop provider packages.
//
// These types are the common vocabulary between the reply, speech and recognition
// providers and the practice loop. Each package defines its own domain types;
// only cross-cutting data structures live here to avoid circular imports.
package types

// Message represents a single message in a reply-generation request.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string
}

// VoiceProfile describes the speaking persona used for synthesis.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "coral" for OpenAI,
	// a voice UUID for ElevenLabs).
	ID string

	// Name is a human-readable label for logs.
	Name string

	// Provider names the TTS backend the ID belongs to. Empty means any.
	Provider string

	// Instructions is a free-text delivery style description. Providers that
	// cannot steer delivery ignore it.
	Instructions string

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 and 1.0
	// both mean the provider default.
	SpeedFactor float64

	// Metadata holds provider-specific extras (stability, similarity boost, ...).
	Metadata map[string]string
}

// ModelCapabilities describes static properties of a reply-generation model.
type ModelCapabilities struct {
	// ContextWindow is the maximum number of tokens the model accepts.
	ContextWindow int

	// MaxOutputTokens caps the length of a single completion.
	MaxOutputTokens int

	// SupportsStreaming reports whether incremental output is available.
	SupportsStreaming bool
}
