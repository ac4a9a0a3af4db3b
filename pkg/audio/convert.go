package audio

import (
	"io"
	"log/slog"
	"sync"
)

// Converter rewrites PCM chunks from one [Format] to another. It logs once on
// the first conversion and once on the first misaligned chunk.
// A Converter is not safe for concurrent use; create one per stream.
type Converter struct {
	From Format
	To   Format

	warnedConvert sync.Once
	warnedCorrupt sync.Once
}

// Convert returns pcm in the target format. When the formats already match the
// input slice is returned unchanged. Chunks with a dangling half sample are
// truncated to the last whole sample.
//
// Multi-channel input is downmixed before resampling and mono output is
// upmixed after resampling, so resampling always runs on a single channel.
func (c *Converter) Convert(pcm []byte) []byte {
	if len(pcm)%BytesPerSample != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, truncating",
				"bytes", len(pcm),
				"from", c.From,
			)
		})
		pcm = pcm[:len(pcm)-len(pcm)%BytesPerSample]
	}
	if c.From == c.To || len(pcm) == 0 {
		return pcm
	}

	c.warnedConvert.Do(func() {
		slog.Info("audio converter: converting stream", "from", c.From, "to", c.To)
	})

	if c.From.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	pcm = ResampleMono16(pcm, c.From.SampleRate, c.To.SampleRate)
	if c.To.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages L+R per stereo frame and clamps to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := min(max((l+r)/2, -32768), 32767)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. Non-positive or equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(s0*(1-frac) + s1*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ConvertingWriter converts everything written to it from one format to
// another before passing it on. Like [Converter] it serves a single stream.
type ConvertingWriter struct {
	w    io.Writer
	conv *Converter
}

// NewConvertingWriter returns w unchanged when the formats match.
func NewConvertingWriter(w io.Writer, from, to Format) io.Writer {
	if from == to {
		return w
	}
	return &ConvertingWriter{w: w, conv: &Converter{From: from, To: to}}
}

// Write converts p and reports it as fully consumed on success.
func (c *ConvertingWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(c.conv.Convert(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
