package stt

import "time"

// Transcript is a recognition result. Both partial and final results use this
// type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal is true once the provider has committed to this text.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Words holds per-word timing when the provider reports it.
	Words []WordDetail
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "serendipity").
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}
