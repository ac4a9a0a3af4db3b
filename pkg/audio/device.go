// Package audio defines the local audio plumbing of vocabloop: capture devices,
// playback sinks, PCM format conversion and the bounded frame queue that feeds
// the speech recognizer.
//
// The two device abstractions are:
//
//   - [CaptureDevice] delivers raw PCM chunks from a microphone to a callback.
//   - [PlaybackSink] accepts PCM for playback and reports when it has drained.
//
// Implementations live in backend packages (audio/malgo, audio/portaudio).
// This package lives under pkg/ because other backends are expected to
// implement these interfaces.
package audio

import (
	"context"
	"io"
)

// CaptureDevice is a microphone backend.
//
// Implementations must be safe for concurrent use. The data callback runs on a
// backend-owned thread and must not block for long.
type CaptureDevice interface {
	// Format reports the PCM format delivered to the data callback.
	Format() Format

	// Start begins delivering audio to onData until Stop is called. status is
	// non-nil when the backend reported a non-fatal condition (overflow,
	// underflow, dropped period) for that chunk; the chunk is still valid.
	Start(onData func(pcm []byte, status error)) error

	// Stop halts capture. Stopping a stopped device returns nil.
	Stop() error
}

// PlaybackSink is a speaker backend. Writes enqueue audio and return
// immediately; [PlaybackSink.Drain] waits for the device to catch up.
//
// Implementations must be safe for concurrent use.
type PlaybackSink interface {
	io.Writer

	// Format reports the PCM format the sink expects from Write.
	Format() Format

	// Drain blocks until every byte written so far has been played, or ctx
	// is done.
	Drain(ctx context.Context) error

	// Clear discards audio that has been written but not yet played.
	Clear()
}
