// Package miniaudio implements [audio.CaptureDevice] and [audio.PlaybackSink]
// on top of miniaudio through github.com/gen2brain/malgo.
//
// A single [Backend] owns the malgo context; the capture device and the
// playback sink it hands out share that context and must not outlive it.
package miniaudio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

// Config selects the device formats. Zero values fall back to defaults.
type Config struct {
	// CaptureRate is the microphone sample rate. Default: 16000.
	CaptureRate int

	// PlaybackRate is the speaker sample rate. Default: 24000.
	PlaybackRate int

	// PlaybackChannels is the speaker channel count. Default: 1.
	PlaybackChannels int
}

func (c *Config) defaults() {
	if c.CaptureRate <= 0 {
		c.CaptureRate = audio.DefaultSampleRate
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = 24000
	}
	if c.PlaybackChannels <= 0 {
		c.PlaybackChannels = 1
	}
}

// Backend owns the miniaudio context and the two devices opened on it.
type Backend struct {
	ctx      *malgo.AllocatedContext
	capture  *CaptureDevice
	playback *PlaybackSink

	closeOnce sync.Once
}

// Open initialises miniaudio and opens the default capture and playback
// devices. The playback device starts immediately and plays silence until
// audio is written to it.
func Open(cfg Config) (*Backend, error) {
	cfg.defaults()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	b := &Backend{ctx: mctx}

	b.playback, err = newPlaybackSink(mctx, audio.Format{SampleRate: cfg.PlaybackRate, Channels: cfg.PlaybackChannels})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.capture = newCaptureDevice(mctx, audio.Format{SampleRate: cfg.CaptureRate, Channels: 1})
	return b, nil
}

// Capture returns the microphone device.
func (b *Backend) Capture() *CaptureDevice { return b.capture }

// Playback returns the speaker sink.
func (b *Backend) Playback() *PlaybackSink { return b.playback }

// Close releases both devices and the miniaudio context. Safe to call more
// than once.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		if b.capture != nil {
			b.capture.uninit()
		}
		if b.playback != nil {
			b.playback.uninit()
		}
		_ = b.ctx.Uninit()
		b.ctx.Free()
	})
}
