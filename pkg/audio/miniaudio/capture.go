package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

// errDeviceStopped is reported as a status when miniaudio stops the capture
// device on its own (unplugged microphone, backend reroute).
var errDeviceStopped = errors.New("miniaudio: capture device stopped by backend")

// CaptureDevice is the default microphone. The underlying malgo device is
// created on Start and released on Stop so that the microphone is not held
// while the user is listening to a reply.
type CaptureDevice struct {
	mctx   *malgo.AllocatedContext
	format audio.Format

	mu       sync.Mutex
	device   *malgo.Device
	onData   func([]byte, error)
	stopping bool
}

var _ audio.CaptureDevice = (*CaptureDevice)(nil)

func newCaptureDevice(mctx *malgo.AllocatedContext, f audio.Format) *CaptureDevice {
	return &CaptureDevice{mctx: mctx, format: f}
}

// Format implements [audio.CaptureDevice].
func (c *CaptureDevice) Format() audio.Format { return c.format }

// Start implements [audio.CaptureDevice].
func (c *CaptureDevice) Start(onData func(pcm []byte, status error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		return nil
	}

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * c.format.Channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(c.format.SampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(c.format.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = uint32(c.format.SampleRate / 50) // 20ms
	cfg.Periods = 3

	dev, err := malgo.InitDevice(c.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			// pInput is reused by miniaudio after the callback returns.
			onData(append([]byte(nil), pInput[:n]...), nil)
		},
		Stop: func() {
			c.mu.Lock()
			expected := c.stopping
			c.mu.Unlock()
			if !expected {
				onData(nil, errDeviceStopped)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("miniaudio: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("miniaudio: start capture device: %w", err)
	}

	c.device = dev
	c.onData = onData
	c.stopping = false
	return nil
}

// Stop implements [audio.CaptureDevice].
func (c *CaptureDevice) Stop() error {
	c.mu.Lock()
	dev := c.device
	if dev == nil {
		c.mu.Unlock()
		return nil
	}
	c.device = nil
	c.onData = nil
	c.stopping = true
	c.mu.Unlock()

	// The stop callback takes c.mu, so the device is stopped without it.
	err := dev.Stop()
	dev.Uninit()
	if err != nil {
		return fmt.Errorf("miniaudio: stop capture device: %w", err)
	}
	return nil
}

func (c *CaptureDevice) uninit() { _ = c.Stop() }
