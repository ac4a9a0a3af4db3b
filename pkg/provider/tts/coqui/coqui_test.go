package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/vocabloop/pkg/types"
)

// makeWAV encodes samples as a 16-bit WAV file.
func makeWAV(t *testing.T, rate, channels int, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Data:           samples,
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func int16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rate     int
		channels int
		samples  []int
		opts     []Option
		want     []int16
	}{
		{
			name: "mono at output rate", rate: 22050, channels: 1,
			samples: []int{100, -200, 300, -32768},
			want:    []int16{100, -200, 300, -32768},
		},
		{
			name: "stereo is downmixed", rate: 16000, channels: 2,
			samples: []int{10, 20, 30, 40},
			opts:    []Option{WithOutputSampleRate(16000)},
			want:    []int16{15, 35},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotQuery map[string][]string
			wavData := makeWAV(t, tc.rate, tc.channels, tc.samples)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != apiTTSEndpoint {
					http.NotFound(w, r)
					return
				}
				gotQuery = r.URL.Query()
				w.Header().Set("Content-Type", "audio/wav")
				_, _ = w.Write(wavData)
			}))
			defer srv.Close()

			p, err := New(srv.URL, append(tc.opts, WithLanguage("en"))...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			var out bytes.Buffer
			if err := p.Synthesize(context.Background(), "Explain the meaning of paradox", types.VoiceProfile{ID: "p225"}, &out); err != nil {
				t.Fatalf("Synthesize: %v", err)
			}

			got := int16s(out.Bytes())
			if len(got) != len(tc.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d = %d, want %d", i, got[i], tc.want[i])
				}
			}
			if gotQuery["speaker_id"][0] != "p225" || gotQuery["language_id"][0] != "en" {
				t.Errorf("query = %v", gotQuery)
			}
		})
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "garbage" {
			_, _ = w.Write([]byte("not a wav file at all"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	p, _ := New(srv.URL)

	var out bytes.Buffer
	for _, text := range []string{"hello", "garbage", " "} {
		if err := p.Synthesize(context.Background(), text, types.VoiceProfile{}, &out); err == nil {
			t.Errorf("Synthesize(%q): expected error", text)
		}
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on failure", out.Len())
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{name: "multi speaker sorted", body: `{"model_name":"vctk/vits","speakers":["p231","p225"]}`, wantIDs: []string{"p225", "p231"}},
		{name: "single speaker", body: `{"model_name":"ljspeech/vits","language":"en"}`, wantIDs: []string{""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p, _ := New(srv.URL)
			voices, err := p.ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tc.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tc.wantIDs))
			}
			for i, v := range voices {
				if v.ID != tc.wantIDs[i] || v.Provider != "coqui" {
					t.Errorf("voice %d = %+v", i, v)
				}
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New("http://x", WithOutputSampleRate(0)); err == nil {
		t.Error("expected error for zero rate")
	}
	p, _ := New("http://x/")
	if f := p.OutputFormat(); f.SampleRate != 22050 || f.Channels != 1 {
		t.Errorf("OutputFormat = %v", f)
	}
}
