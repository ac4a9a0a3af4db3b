package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

// ErrSinkClosed is returned by Write after the backend has been closed.
var ErrSinkClosed = errors.New("miniaudio: playback sink closed")

// PlaybackSink is the default speaker. Written audio is buffered and consumed
// by the miniaudio data callback; the device plays silence when the buffer is
// empty.
type PlaybackSink struct {
	format audio.Format
	device *malgo.Device

	mu      sync.Mutex
	buf     []byte
	emptied chan struct{} // closed when buf runs dry; nil while no one waits
	closed  bool
}

var _ audio.PlaybackSink = (*PlaybackSink)(nil)

func newPlaybackSink(mctx *malgo.AllocatedContext, f audio.Format) (*PlaybackSink, error) {
	s := &PlaybackSink{format: f}

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * f.Channels

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(f.SampleRate / 10) // ~100ms of audio
	cfg.Periods = 4

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			s.fill(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("miniaudio: start playback device: %w", err)
	}
	s.device = dev
	return s, nil
}

// Format implements [audio.PlaybackSink].
func (s *PlaybackSink) Format() audio.Format { return s.format }

// Write implements [audio.PlaybackSink]. It never blocks on the device.
func (s *PlaybackSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	s.buf = append(s.buf, p...)
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

// fill copies up to need bytes of buffered audio into out and zeroes the rest.
func (s *PlaybackSink) fill(out []byte, need int) {
	if need > len(out) {
		need = len(out)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := copy(out[:need], s.buf)
	clear(out[n:need])
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
		s.signalEmptyLocked()
	}
}

func (s *PlaybackSink) signalEmptyLocked() {
	if s.emptied != nil {
		close(s.emptied)
		s.emptied = nil
	}
}

func (s *PlaybackSink) uninit() {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.signalEmptyLocked()
	s.mu.Unlock()

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
	}
}
