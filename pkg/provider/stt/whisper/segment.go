package whisper

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// transcribeFunc turns one buffered utterance into text.
type transcribeFunc func(ctx context.Context, pcm []byte) (string, error)

// segmenter holds the energy-based utterance detection parameters.
type segmenter struct {
	sampleRate       int
	channels         int
	rmsThreshold     float64
	silenceThreshold time.Duration
	maxUtterance     time.Duration
}

// session simulates streaming on top of a batch transcriber. Speech is
// buffered until enough trailing silence (or the maximum utterance length)
// is seen, then the buffer is transcribed and emitted as a partial and a
// final with the same text.
//
// All buffering state is confined to the process goroutine.
type session struct {
	seg        segmenter
	transcribe transcribeFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

func newSession(ctx context.Context, seg segmenter, fn transcribeFunc) *session {
	s := &session{
		seg:        seg,
		transcribe: fn,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan stt.Transcript, 64),
		finals:     make(chan stt.Transcript, 64),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.process(ctx)
	return s
}

// SendAudio queues 16-bit little-endian PCM for segmentation.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("whisper: %w", stt.ErrSessionClosed)
	}
}

// Partials returns the interim transcript channel.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the committed transcript channel.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes buffered speech, then closes both channels.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) process(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
	)
	maxBytes := int(s.seg.maxUtterance.Seconds() * float64(s.seg.sampleRate*s.seg.channels*2))

	flush := func(flushCtx context.Context) {
		pcm, speech := buffer, hadSpeech
		buffer, hadSpeech, silence = nil, false, 0
		if len(pcm) == 0 || !speech {
			return
		}

		text, err := s.transcribe(flushCtx, pcm)
		if err != nil {
			slog.Warn("whisper: transcription failed", "err", err, "bytes", len(pcm))
			return
		}
		if text == "" {
			return
		}
		// Non-blocking: a consumer that stopped reading must not wedge Close.
		select {
		case s.partials <- stt.Transcript{Text: text}:
		default:
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	// The final flush runs on its own context because ctx may be the reason
	// the loop is ending.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			if computeRMS(chunk) < s.seg.rmsThreshold {
				// Leading silence is discarded.
				if !hadSpeech {
					continue
				}
				silence += chunkDuration(chunk, s.seg.sampleRate, s.seg.channels)
				buffer = append(buffer, chunk...)
				if silence >= s.seg.silenceThreshold {
					flush(ctx)
				}
				continue
			}
			hadSpeech = true
			silence = 0
			buffer = append(buffer, chunk...)
			if maxBytes > 0 && len(buffer) >= maxBytes {
				flush(ctx)
			}
		}
	}
}

// computeRMS returns the root-mean-square of 16-bit little-endian PCM in
// sample units (0–32767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func chunkDuration(chunk []byte, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(chunk) / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
