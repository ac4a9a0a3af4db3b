package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q := mustQuery(t, rawURL)

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
}

func TestBuildURL_Options(t *testing.T) {
	t.Parallel()
	p, err := New("key",
		WithModel("base"),
		WithLanguage("en-GB"),
		WithSampleRate(48000),
		WithEndpointing(0),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q := mustQuery(t, rawURL)

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "en-GB", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "endpointing", "false", q.Get("endpointing"))
}

func TestBuildURL_LanguageOverriddenByCfg(t *testing.T) {
	t.Parallel()
	p, _ := New("key", WithLanguage("en"))

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "en-AU", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	assertEqual(t, "language", "en-AU", mustQuery(t, rawURL).Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()
	words := []stt.KeywordBoost{{Keyword: "serendipity", Boost: 5}, {Keyword: "esoteric", Boost: 1.5}}

	tests := []struct {
		name  string
		model string
		param string
		want  []string
	}{
		{name: "nova-3 uses keyterm", model: "nova-3", param: "keyterm", want: []string{"serendipity", "esoteric"}},
		{name: "older models use keywords", model: "nova-2", param: "keywords", want: []string{"serendipity:5", "esoteric:1.5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, _ := New("key", WithModel(tc.model))
			rawURL, err := p.buildURL(stt.StreamConfig{Keywords: words})
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			got := mustQuery(t, rawURL)[tc.param]
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("%s = %v, want %v", tc.param, got, tc.want)
			}
		})
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q := mustQuery(t, rawURL)
	if _, ok := q["keyterm"]; ok {
		t.Error("expected no keyterm param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantFinal bool
		wantText  string
		wantWords int
	}{
		{
			name: "final with words",
			raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{
				"transcript":"it means luck","confidence":0.95,
				"words":[{"word":"it","start":0.1,"end":0.2,"confidence":0.9},
				         {"word":"means","start":0.2,"end":0.5,"confidence":0.9},
				         {"word":"luck","start":0.5,"end":0.9,"confidence":0.9}]}]}}`,
			wantOK: true, wantFinal: true, wantText: "it means luck", wantWords: 3,
		},
		{
			name:   "partial",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"it","confidence":0.7,"words":[]}]}}`,
			wantOK: true, wantText: "it",
		},
		{name: "metadata ignored", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "empty alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseDeepgramResponse([]byte(tc.raw))
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if tr.IsFinal != tc.wantFinal {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tc.wantFinal)
			}
			assertEqual(t, "text", tc.wantText, tr.Text)
			if len(tr.Words) != tc.wantWords {
				t.Errorf("words = %d, want %d", len(tr.Words), tc.wantWords)
			}
		})
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- Streaming tests ----

// fakeDeepgram accepts one connection, checks the auth header, waits for the
// first audio chunk and answers with one partial and one final.
func fakeDeepgram(t *testing.T, dropAfterReply bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"it means"}]}}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"it means luck"}]}}`))
		if dropAfterReply {
			return
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStartStream_DeliversPartialsAndFinals(t *testing.T) {
	t.Parallel()
	srv := fakeDeepgram(t, false)
	defer srv.Close()

	p, _ := New("key", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-sess.Partials():
		assertEqual(t, "partial", "it means", tr.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case tr := <-sess.Finals():
		assertEqual(t, "final", "it means luck", tr.Text)
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0, 0}); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}

func TestStartStream_ConnectionLossEndsSession(t *testing.T) {
	t.Parallel()
	srv := fakeDeepgram(t, true)
	defer srv.Close()

	p, _ := New("key", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	_ = sess.SendAudio(make([]byte, 320))

	// Finals closes once the server hangs up.
	for range sess.Finals() {
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := sess.SendAudio([]byte{0, 0}); errors.Is(err, stt.ErrSessionClosed) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("SendAudio kept succeeding after the connection was lost")
}

func TestStartStream_DialFailure(t *testing.T) {
	t.Parallel()
	srv := fakeDeepgram(t, false)
	defer srv.Close()

	p, _ := New("wrong", WithEndpoint(wsURL(srv)))
	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); err == nil {
		t.Error("expected dial error for rejected credentials")
	}
}

// ---- helpers ----

func mustQuery(t *testing.T, rawURL string) url.Values {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	return u.Query()
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
