// Package mock provides in-memory implementations of [audio.CaptureDevice] and
// [audio.PlaybackSink] for unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and expose fields that control return values.
//
// Typical usage:
//
//	dev := &mock.CaptureDevice{}
//	src := audio.NewSource(dev, audio.WithBlockSize(4))
//	_ = src.Start()
//	dev.Emit(make([]byte, 8), nil)
//	frame, _ := src.Next(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

// ─── CaptureDevice ────────────────────────────────────────────────────────────

// CaptureDevice is a mock implementation of [audio.CaptureDevice]. Audio is
// injected with [CaptureDevice.Emit].
type CaptureDevice struct {
	mu sync.Mutex

	// FormatResult is returned by Format. Defaults to 16 kHz mono.
	FormatResult audio.Format

	// StartErr is returned by Start when set.
	StartErr error

	// StopErr is returned by Stop when set.
	StopErr error

	// CallCountStart and CallCountStop record method invocations.
	CallCountStart int
	CallCountStop  int

	onData  func([]byte, error)
	started bool
}

var _ audio.CaptureDevice = (*CaptureDevice)(nil)

// Format implements [audio.CaptureDevice].
func (d *CaptureDevice) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FormatResult == (audio.Format{}) {
		return audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1}
	}
	return d.FormatResult
}

// Start implements [audio.CaptureDevice].
func (d *CaptureDevice) Start(onData func([]byte, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartErr != nil {
		return d.StartErr
	}
	d.onData = onData
	d.started = true
	return nil
}

// Stop implements [audio.CaptureDevice].
func (d *CaptureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	if d.StopErr != nil {
		return d.StopErr
	}
	d.started = false
	d.onData = nil
	return nil
}

// Started reports whether the device is currently capturing.
func (d *CaptureDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Emit delivers pcm to the registered callback as if the hardware produced it.
// It returns false when the device is not started.
func (d *CaptureDevice) Emit(pcm []byte, status error) bool {
	d.mu.Lock()
	cb := d.onData
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(pcm, status)
	return true
}

// ─── PlaybackSink ─────────────────────────────────────────────────────────────

// PlaybackSink is a mock implementation of [audio.PlaybackSink] that keeps
// everything written to it.
type PlaybackSink struct {
	mu sync.Mutex

	// FormatResult is returned by Format. Defaults to 24 kHz mono.
	FormatResult audio.Format

	// WriteErr is returned by Write when set.
	WriteErr error

	// DrainErr is returned by Drain when set.
	DrainErr error

	// CallCountDrain and CallCountClear record method invocations.
	CallCountDrain int
	CallCountClear int

	written []byte
	played  []byte
}

var _ audio.PlaybackSink = (*PlaybackSink)(nil)

// Format implements [audio.PlaybackSink].
func (s *PlaybackSink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FormatResult == (audio.Format{}) {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return s.FormatResult
}

// Write implements [audio.PlaybackSink].
func (s *PlaybackSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	s.written = append(s.written, p...)
	return len(p), nil
}

// Drain implements [audio.PlaybackSink]. Pending audio moves to the played
// buffer.
func (s *PlaybackSink) Drain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountDrain++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.DrainErr != nil {
		return s.DrainErr
	}
	s.played = append(s.played, s.written...)
	s.written = nil
	return nil
}

// Clear implements [audio.PlaybackSink].
func (s *PlaybackSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClear++
	s.written = nil
}

// Played returns a copy of all audio that has been drained.
func (s *PlaybackSink) Played() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.played...)
}

// Pending returns a copy of audio written but not yet drained.
func (s *PlaybackSink) Pending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}
