package record

import (
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/vocabloop/pkg/audio"
)

func frame(samples ...int16) audio.AudioFrame {
	data := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

func newTestRecorder(t *testing.T) (*Recorder, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	r, err := New(fs, "recordings")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC) }
	return r, fs
}

func TestRecorder_WritesWAV(t *testing.T) {
	t.Parallel()

	r, fs := newTestRecorder(t)
	rec, err := r.StartTurn("Ephemeral")
	if err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	for _, f := range []audio.AudioFrame{frame(1, -2, 3), frame(-32768, 32767)} {
		if err := rec.Add(f); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	const want = "recordings/20261019-153000-001-ephemeral.wav"
	file, err := fs.Open(want)
	if err != nil {
		t.Fatalf("open %s: %v", want, err)
	}
	defer file.Close()

	d := wav.NewDecoder(file)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Format.SampleRate != 16000 || buf.Format.NumChannels != 1 {
		t.Errorf("format = %+v", buf.Format)
	}
	wantSamples := []int{1, -2, 3, -32768, 32767}
	if len(buf.Data) != len(wantSamples) {
		t.Fatalf("samples = %v, want %v", buf.Data, wantSamples)
	}
	for i, s := range wantSamples {
		if buf.Data[i] != s {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], s)
		}
	}
}

func TestRecorder_EmptyTurnLeavesNoFile(t *testing.T) {
	t.Parallel()

	r, fs := newTestRecorder(t)
	rec, _ := r.StartTurn("paradox")
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	entries, err := afero.ReadDir(fs, "recordings")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("found %d files, want none", len(entries))
	}
}

func TestRecorder_FormatChange(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t)
	rec, _ := r.StartTurn("paradox")
	if err := rec.Add(frame(1)); err != nil {
		t.Fatal(err)
	}
	stereo := frame(1, 2)
	stereo.Channels = 2
	if err := rec.Add(stereo); err == nil {
		t.Error("Add accepted a frame in a different format")
	}
	_ = rec.Close()
}

func TestRecorder_SequenceAndNames(t *testing.T) {
	t.Parallel()

	r, _ := newTestRecorder(t)
	a, _ := r.StartTurn("new word")
	b, _ := r.StartTurn("  ")
	if p := a.(*turn).path; !strings.HasSuffix(p, "-001-new_word.wav") {
		t.Errorf("first path = %q", p)
	}
	if p := b.(*turn).path; !strings.HasSuffix(p, "-002-turn.wav") {
		t.Errorf("second path = %q", p)
	}
}
