package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSourceStopped is returned by [Source.Next] once the source has been
// stopped and its queue is empty.
var ErrSourceStopped = errors.New("audio: source stopped")

const defaultQueueFrames = 64

// SourceOption configures a [Source].
type SourceOption func(*Source)

// WithBlockSize sets the number of samples per frame. Default: [DefaultBlockSize].
func WithBlockSize(samples int) SourceOption {
	return func(s *Source) {
		if samples > 0 {
			s.blockSamples = samples
		}
	}
}

// WithQueueFrames sets the capacity of the frame queue. Default: 64.
func WithQueueFrames(n int) SourceOption {
	return func(s *Source) {
		if n > 0 {
			s.queueFrames = n
		}
	}
}

// WithTargetFormat sets the format frames are converted to.
// Default: [DefaultSampleRate] mono.
func WithTargetFormat(f Format) SourceOption {
	return func(s *Source) {
		if f.SampleRate > 0 && f.Channels > 0 {
			s.target = f
		}
	}
}

// WithDropHook registers fn to be called whenever a full queue forces the
// oldest frame out.
func WithDropHook(fn func()) SourceOption {
	return func(s *Source) { s.onDrop = fn }
}

// WithStatusHook registers fn to be called for every non-fatal device status.
func WithStatusHook(fn func(error)) SourceOption {
	return func(s *Source) { s.onStatus = fn }
}

// WithRawTap registers fn to receive a copy of every converted chunk before it
// is cut into frames. Used for turn recordings.
func WithRawTap(fn func(pcm []byte)) SourceOption {
	return func(s *Source) { s.tap = fn }
}

// Source turns the variable-sized chunks of a [CaptureDevice] into fixed-size
// [AudioFrame] values on a bounded FIFO queue.
//
// A Source can be started and stopped repeatedly; each Start opens a fresh
// queue. Stop is idempotent. All methods are safe for concurrent use.
type Source struct {
	dev          CaptureDevice
	target       Format
	blockSamples int
	queueFrames  int
	onDrop       func()
	onStatus     func(error)
	tap          func([]byte)

	mu      sync.Mutex
	running bool
	queue   chan AudioFrame
	pending []byte
	conv    *Converter
}

// NewSource wraps dev in a frame source.
func NewSource(dev CaptureDevice, opts ...SourceOption) *Source {
	s := &Source{
		dev:          dev,
		target:       Format{SampleRate: DefaultSampleRate, Channels: 1},
		blockSamples: DefaultBlockSize,
		queueFrames:  defaultQueueFrames,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Format returns the format of the frames produced by the source.
func (s *Source) Format() Format { return s.target }

// Start opens a new queue and starts the device. Starting a running source is
// a no-op.
func (s *Source) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.queue = make(chan AudioFrame, s.queueFrames)
	s.pending = make([]byte, 0, s.target.FrameBytes(s.blockSamples)*2)
	s.conv = &Converter{From: s.dev.Format(), To: s.target}
	s.running = true
	s.mu.Unlock()

	// The device callback takes s.mu, so the device is started without it.
	if err := s.dev.Start(s.push); err != nil {
		s.mu.Lock()
		if s.running {
			s.running = false
			close(s.queue)
		}
		s.mu.Unlock()
		return fmt.Errorf("audio: start capture: %w", err)
	}
	return nil
}

// Next blocks until a frame is available, the source is stopped or ctx is done.
func (s *Source) Next(ctx context.Context) (AudioFrame, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return AudioFrame{}, ErrSourceStopped
	}

	select {
	case f, ok := <-q:
		if !ok {
			return AudioFrame{}, ErrSourceStopped
		}
		return f, nil
	case <-ctx.Done():
		return AudioFrame{}, ctx.Err()
	}
}

// Stop stops the device and closes the queue. Calling Stop on a stopped source
// returns nil and leaves the device released.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.queue)
	s.pending = nil
	s.mu.Unlock()

	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("audio: stop capture: %w", err)
	}
	return nil
}

// push is the device data callback.
func (s *Source) push(pcm []byte, status error) {
	if status != nil {
		slog.Warn("audio source: device reported status", "err", status)
		if s.onStatus != nil {
			s.onStatus(status)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	converted := s.conv.Convert(pcm)
	if s.tap != nil && len(converted) > 0 {
		s.tap(append([]byte(nil), converted...))
	}
	s.pending = append(s.pending, converted...)

	blockBytes := s.target.FrameBytes(s.blockSamples)
	for len(s.pending) >= blockBytes {
		data := make([]byte, blockBytes)
		copy(data, s.pending)
		n := copy(s.pending, s.pending[blockBytes:])
		s.pending = s.pending[:n]
		s.enqueue(AudioFrame{
			Data:       data,
			SampleRate: s.target.SampleRate,
			Channels:   s.target.Channels,
		})
	}
}

// enqueue pushes f without blocking. When the queue is full the oldest frame is
// discarded to make room. Must be called with s.mu held.
func (s *Source) enqueue(f AudioFrame) {
	select {
	case s.queue <- f:
		return
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- f:
	default:
	}
	slog.Warn("audio source: queue full, dropped oldest frame", "capacity", s.queueFrames)
	if s.onDrop != nil {
		s.onDrop()
	}
}
