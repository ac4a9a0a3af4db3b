// Package portaudio implements [audio.CaptureDevice] and [audio.PlaybackSink]
// with PortAudio blocking streams through github.com/gordonklaus/portaudio.
//
// Use it where miniaudio cannot reach the right device. Call [Initialize]
// once before opening devices and [Terminate] when done.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

// Initialize initialises the PortAudio library.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error { return portaudio.Terminate() }

// ─── Capture ─────────────────────────────────────────────────────────────────

// CaptureDevice reads the default input device in fixed buffers of
// framesPerBuffer samples on a dedicated goroutine.
type CaptureDevice struct {
	format          audio.Format
	framesPerBuffer int

	mu     sync.Mutex
	stream *portaudio.Stream
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ audio.CaptureDevice = (*CaptureDevice)(nil)

// NewCaptureDevice returns a mono capture device at sampleRate.
func NewCaptureDevice(sampleRate, framesPerBuffer int) *CaptureDevice {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = sampleRate / 10
	}
	return &CaptureDevice{
		format:          audio.Format{SampleRate: sampleRate, Channels: 1},
		framesPerBuffer: framesPerBuffer,
	}
}

// Format implements [audio.CaptureDevice].
func (c *CaptureDevice) Format() audio.Format { return c.format }

// Start implements [audio.CaptureDevice]. Read errors such as input overflow
// are passed to onData as status alongside the samples that were read.
func (c *CaptureDevice) Start(onData func(pcm []byte, status error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	in := make([]int16, c.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.format.SampleRate), c.framesPerBuffer, in)
	if err != nil {
		return fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}

	c.stream = stream
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.readLoop(stream, in, c.done, onData)
	return nil
}

func (c *CaptureDevice) readLoop(stream *portaudio.Stream, in []int16, done <-chan struct{}, onData func([]byte, error)) {
	defer c.wg.Done()
	for {
		select {
		case <-done:
			return
		default:
		}
		status := stream.Read()
		if status != nil && !errors.Is(status, portaudio.InputOverflowed) {
			// Anything other than an overflow means the stream is unusable.
			select {
			case <-done:
			default:
				slog.Error("portaudio: input stream read failed", "err", status)
				onData(nil, status)
			}
			return
		}
		onData(int16sToBytes(in), status)
	}
}

// Stop implements [audio.CaptureDevice].
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return nil
	}
	c.stream = nil
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	err := stream.Stop()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", err)
	}
	return nil
}

// ─── Playback ────────────────────────────────────────────────────────────────

// PlaybackSink writes to the default output device from a dedicated
// goroutine. Writes are buffered and never block on the device.
type PlaybackSink struct {
	format          audio.Format
	framesPerBuffer int
	stream          *portaudio.Stream
	out             []int16

	mu      sync.Mutex
	buf     []byte
	wake    chan struct{}
	emptied chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

var _ audio.PlaybackSink = (*PlaybackSink)(nil)

// OpenPlaybackSink opens and starts the default output stream.
func OpenPlaybackSink(f audio.Format, framesPerBuffer int) (*PlaybackSink, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		f = audio.Format{SampleRate: 24000, Channels: 1}
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = f.SampleRate / 20
	}
	s := &PlaybackSink{
		format:          f,
		framesPerBuffer: framesPerBuffer,
		out:             make([]int16, framesPerBuffer*f.Channels),
		wake:            make(chan struct{}, 1),
	}

	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), framesPerBuffer, s.out)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	s.stream = stream
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Format implements [audio.PlaybackSink].
func (s *PlaybackSink) Format() audio.Format { return s.format }

// Write implements [audio.PlaybackSink].
func (s *PlaybackSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("portaudio: playback sink closed")
	}
	s.buf = append(s.buf, p...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Drain implements [audio.PlaybackSink].
func (s *PlaybackSink) Drain(ctx context.Context) error {
	s.mu.Lock()
	if len(s.buf) == 0 || s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.emptied == nil {
		s.emptied = make(chan struct{})
	}
	ch := s.emptied
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear implements [audio.PlaybackSink].
func (s *PlaybackSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.signalEmptyLocked()
}

// Close stops the output stream.
func (s *PlaybackSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.buf = nil
	s.signalEmptyLocked()
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.wg.Wait()
	err := s.stream.Stop()
	if cerr := s.stream.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *PlaybackSink) writeLoop() {
	defer s.wg.Done()
	chunk := len(s.out) * audio.BytesPerSample
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.buf) == 0 {
			s.mu.Unlock()
			<-s.wake
			continue
		}
		n := min(chunk, len(s.buf))
		for i := range s.out {
			if i*2+1 < n {
				s.out[i] = int16(binary.LittleEndian.Uint16(s.buf[i*2:]))
			} else {
				s.out[i] = 0
			}
		}
		s.buf = s.buf[n:]
		empty := len(s.buf) == 0
		s.mu.Unlock()

		// Write blocks until the device accepts the buffer.
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			slog.Warn("portaudio: output stream write failed", "err", err)
		}
		if empty {
			s.mu.Lock()
			if len(s.buf) == 0 {
				s.buf = nil
				s.signalEmptyLocked()
			}
			s.mu.Unlock()
		}
	}
}

func (s *PlaybackSink) signalEmptyLocked() {
	if s.emptied != nil {
		close(s.emptied)
		s.emptied = nil
	}
}

func int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*audio.BytesPerSample)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
