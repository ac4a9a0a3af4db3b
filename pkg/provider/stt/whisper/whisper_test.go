package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
	"github.com/MrWong99/vocabloop/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type inferenceRequest struct {
	language string
	prompt   string
	fileSize int
}

// newMockServer answers POST /inference with responseText and records the
// form fields of every request.
func newMockServer(t *testing.T, responseText string, status int) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := inferenceRequest{
			language: r.FormValue("language"),
			prompt:   r.FormValue("prompt"),
		}
		if f, hdr, err := r.FormFile("file"); err == nil {
			rec.fileSize = int(hdr.Size)
			f.Close()
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

// speechPCM is a 440 Hz sine with an RMS far above the silence threshold.
func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silencePCM(samples int) []byte { return make([]byte, samples*2) }

func startStream(t *testing.T, p stt.Provider, cfg stt.StreamConfig) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func waitFinal(t *testing.T, h stt.SessionHandle) stt.Transcript {
	t.Helper()
	select {
	case tr, ok := <-h.Finals():
		if !ok {
			t.Fatal("finals closed before a transcript arrived")
		}
		return tr
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	return stt.Transcript{}
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestNewNative_EmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ---- segmentation -----------------------------------------------------------

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	t.Parallel()
	srv, reqs := newMockServer(t, "should not appear", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(100*time.Millisecond))
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	for range 10 {
		_ = h.SendAudio(silencePCM(1600))
	}
	_ = h.Close()

	if n := len(reqs()); n != 0 {
		t.Errorf("inference requests = %d, want 0", n)
	}
}

func TestSpeechThenSilenceEmitsPartialAndFinal(t *testing.T) {
	t.Parallel()
	srv, reqs := newMockServer(t, " it means a happy accident ", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(200*time.Millisecond))
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"})

	_ = h.SendAudio(speechPCM(8000))
	for range 3 {
		_ = h.SendAudio(silencePCM(1600)) // 100ms each
	}

	final := waitFinal(t, h)
	if final.Text != "it means a happy accident" || !final.IsFinal {
		t.Errorf("final = %+v", final)
	}
	select {
	case partial := <-h.Partials():
		if partial.Text != final.Text || partial.IsFinal {
			t.Errorf("partial = %+v", partial)
		}
	case <-time.After(time.Second):
		t.Fatal("no partial emitted")
	}

	got := reqs()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].language != "en" {
		t.Errorf("language = %q, want %q", got[0].language, "en")
	}
	// 8000 speech + 3200 buffered silence samples, plus the 44-byte header.
	if want := 44 + (8000+3200)*2; got[0].fileSize != want {
		t.Errorf("wav size = %d, want %d", got[0].fileSize, want)
	}
}

func TestMaxUtteranceForcesFlush(t *testing.T) {
	t.Parallel()
	srv, reqs := newMockServer(t, "long answer", http.StatusOK)
	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThreshold(time.Hour),
		whisper.WithMaxUtterance(500*time.Millisecond),
	)
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	_ = h.SendAudio(speechPCM(8000)) // exactly 500ms

	if tr := waitFinal(t, h); tr.Text != "long answer" {
		t.Errorf("final = %q", tr.Text)
	}
	if n := len(reqs()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestClose_FlushesBufferedSpeech(t *testing.T) {
	t.Parallel()
	srv, reqs := newMockServer(t, "flushed", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(time.Hour))
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	_ = h.SendAudio(speechPCM(1600))
	// Give the session goroutine a moment to buffer the chunk.
	time.Sleep(50 * time.Millisecond)
	_ = h.Close()

	if n := len(reqs()); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}
	tr, ok := <-h.Finals()
	if !ok || tr.Text != "flushed" {
		t.Errorf("final = %+v ok=%v", tr, ok)
	}
}

func TestKeywordsBecomePrompt(t *testing.T) {
	t.Parallel()
	srv, reqs := newMockServer(t, "ok", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(100*time.Millisecond))
	h := startStream(t, p, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Keywords:   []stt.KeywordBoost{{Keyword: "ephemeral", Boost: 2}},
	})

	_ = h.SendAudio(speechPCM(1600))
	_ = h.SendAudio(silencePCM(3200))
	waitFinal(t, h)

	if got := reqs()[0].prompt; got != "Vocabulary: ephemeral." {
		t.Errorf("prompt = %q", got)
	}
}

// ---- failure handling -------------------------------------------------------

func TestInferenceErrorsProduceNoTranscript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		text   string
		status int
	}{
		{name: "server error", text: "ignored", status: http.StatusInternalServerError},
		{name: "empty text", text: "", status: http.StatusOK},
		{name: "blank audio marker", text: "[BLANK_AUDIO]", status: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, reqs := newMockServer(t, tc.text, tc.status)
			p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(100*time.Millisecond))
			h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

			_ = h.SendAudio(speechPCM(1600))
			_ = h.SendAudio(silencePCM(3200))
			time.Sleep(100 * time.Millisecond)
			_ = h.Close()

			if len(reqs()) == 0 {
				t.Fatal("expected an inference request")
			}
			for tr := range h.Finals() {
				t.Errorf("unexpected final %q", tr.Text)
			}
		})
	}
}

// ---- lifecycle --------------------------------------------------------------

func TestClose_IdempotentAndClosesChannels(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "", http.StatusOK)
	p, _ := whisper.New(srv.URL)
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-h.Partials(); ok {
		t.Error("partials still open")
	}
	if _, ok := <-h.Finals(); ok {
		t.Error("finals still open")
	}
	if err := h.SendAudio(speechPCM(10)); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}

func TestConcurrentSendAudio(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "x"})
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThreshold(50*time.Millisecond))
	h := startStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				_ = h.SendAudio(speechPCM(160))
				_ = h.SendAudio(silencePCM(1600))
			}
		}()
	}
	wg.Wait()
	_ = h.Close()
}
