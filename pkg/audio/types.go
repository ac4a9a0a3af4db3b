package audio

import "fmt"

const (
	// DefaultSampleRate is the capture rate expected by the recognizers.
	DefaultSampleRate = 16000

	// DefaultBlockSize is the number of samples per captured frame
	// (half a second at DefaultSampleRate).
	DefaultBlockSize = 8000

	// BytesPerSample is fixed: all PCM in vocabloop is signed 16-bit little-endian.
	BytesPerSample = 2
)

// AudioFrame is a single fixed-size block of captured audio. Frames carry no
// timestamp; their order is the order in which they leave the capture queue.
type AudioFrame struct {
	// Data is signed 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for everything the recognizers consume.
	Channels int
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable format such as "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// FrameBytes returns the number of bytes needed to hold samples frames of f.
func (f Format) FrameBytes(samples int) int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return samples * ch * BytesPerSample
}
