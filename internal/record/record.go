// Package record writes the captured audio of each listening turn to a WAV
// file, for checking what the recognizer was given.
package record

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"github.com/MrWong99/vocabloop/internal/listen"
	"github.com/MrWong99/vocabloop/pkg/audio"
)

var _ listen.Recorder = (*Recorder)(nil)

// Recorder creates one WAV file per turn in a directory.
type Recorder struct {
	fs  afero.Fs
	dir string
	seq atomic.Int64
	now func() time.Time
}

// New creates dir on fs if needed and returns a Recorder writing into it.
func New(fs afero.Fs, dir string) (*Recorder, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create %s: %w", dir, err)
	}
	return &Recorder{fs: fs, dir: dir, now: time.Now}, nil
}

// StartTurn returns a recording for one turn. The file is created with the
// first frame, so a turn without audio leaves nothing behind.
func (r *Recorder) StartTurn(word string) (listen.TurnRecording, error) {
	name := fmt.Sprintf("%s-%03d-%s.wav",
		r.now().Format("20060102-150405"), r.seq.Add(1), safeName(word))
	return &turn{fs: r.fs, path: path.Join(r.dir, name)}, nil
}

type turn struct {
	fs     afero.Fs
	path   string
	format audio.Format
	w      *wave.Writer
	frames int
}

func (t *turn) Add(frame audio.AudioFrame) error {
	f := audio.Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	if t.w == nil {
		if err := t.open(f); err != nil {
			return err
		}
	} else if f != t.format {
		return fmt.Errorf("record: frame format %s differs from %s", f, t.format)
	}

	samples := make([]int16, len(frame.Data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame.Data[i*2:]))
	}
	if _, err := t.w.WriteSample16(samples); err != nil {
		return fmt.Errorf("record: write %s: %w", t.path, err)
	}
	t.frames++
	return nil
}

func (t *turn) open(f audio.Format) error {
	file, err := t.fs.Create(t.path)
	if err != nil {
		return fmt.Errorf("record: create %s: %w", t.path, err)
	}
	w, err := wave.NewWriter(wave.WriterParam{
		Out:           file,
		Channel:       f.Channels,
		SampleRate:    f.SampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		file.Close()
		return fmt.Errorf("record: start %s: %w", t.path, err)
	}
	t.w, t.format = w, f
	return nil
}

// Close finishes the WAV file. It is a no-op when no frame was added.
func (t *turn) Close() error {
	if t.w == nil {
		return nil
	}
	if err := t.w.Close(); err != nil {
		return fmt.Errorf("record: close %s: %w", t.path, err)
	}
	slog.Debug("turn recorded", "path", t.path, "frames", t.frames, "format", t.format)
	t.w = nil
	return nil
}

// safeName keeps letters and digits of word for use in a file name.
func safeName(word string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '_'
	}, strings.TrimSpace(word))
	if name == "" {
		return "turn"
	}
	return name
}
