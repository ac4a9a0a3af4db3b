// Package whisper provides whisper.cpp-backed STT providers.
//
// Two backends share the same session logic:
//
//   - [Provider] talks to a running whisper-server over its REST API
//     (POST /inference).
//   - [NativeProvider] loads the model in-process through the whisper.cpp
//     CGO bindings.
//
// whisper.cpp is a batch engine, so sessions simulate streaming: incoming PCM
// is segmented with an energy-based silence detector and every completed
// utterance is transcribed as one request. Each result is emitted as a
// partial and a final carrying the same text.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilenceThreshold(500*time.Millisecond),
//	)
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the energy (in 16-bit sample units) below which a
	// chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage         = "en"
	defaultSampleRate       = 16000
	defaultSilenceThreshold = 500 * time.Millisecond
	defaultMaxUtterance     = 10 * time.Second
)

// settings is shared by both providers.
type settings struct {
	model            string
	language         string
	sampleRate       int
	rmsThreshold     float64
	silenceThreshold time.Duration
	maxUtterance     time.Duration
	httpClient       *http.Client
}

func defaultSettings() settings {
	return settings{
		language:         defaultLanguage,
		sampleRate:       defaultSampleRate,
		rmsThreshold:     defaultRMSThreshold,
		silenceThreshold: defaultSilenceThreshold,
		maxUtterance:     defaultMaxUtterance,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
	}
}

// segmenterFor resolves the per-session segmentation parameters.
func (s settings) segmenterFor(cfg stt.StreamConfig) (segmenter, string) {
	lang := cfg.Language
	if lang == "" {
		lang = s.language
	}
	// whisper expects bare ISO-639-1 codes.
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = s.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}
	return segmenter{
		sampleRate:       sr,
		channels:         ch,
		rmsThreshold:     s.rmsThreshold,
		silenceThreshold: s.silenceThreshold,
		maxUtterance:     s.maxUtterance,
	}, lang
}

// Option is a functional option for configuring either provider.
type Option func(*settings)

// WithModel sets the model name forwarded to whisper-server. Ignored by
// [NativeProvider], which is bound to the model file it loaded.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithLanguage sets the recognition language (e.g., "en"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *settings) { s.language = lang }
}

// WithSampleRate sets the default sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *settings) { s.sampleRate = rate }
}

// WithSilenceThreshold sets how much trailing silence ends an utterance.
// Defaults to 500ms.
func WithSilenceThreshold(d time.Duration) Option {
	return func(s *settings) { s.silenceThreshold = d }
}

// WithMaxUtterance bounds how much speech is buffered before a flush is
// forced. Defaults to 10s.
func WithMaxUtterance(d time.Duration) Option {
	return func(s *settings) { s.maxUtterance = d }
}

// WithRMSThreshold sets the silence energy threshold. Defaults to 300.
func WithRMSThreshold(rms float64) Option {
	return func(s *settings) { s.rmsThreshold = rms }
}

// WithHTTPClient replaces the HTTP client used by [Provider].
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper-server HTTP endpoint.
type Provider struct {
	serverURL string
	settings
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{serverURL: strings.TrimRight(serverURL, "/"), settings: defaultSettings()}
	for _, o := range opts {
		o(&p.settings)
	}
	return p, nil
}

// StartStream opens a new session. No connection is made until the first
// utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	seg, lang := p.segmenterFor(cfg)
	prompt := keywordPrompt(cfg.Keywords)

	return newSession(ctx, seg, func(ctx context.Context, pcm []byte) (string, error) {
		return p.infer(ctx, pcm, seg, lang, prompt)
	}), nil
}

// infer uploads one utterance as multipart/form-data and returns its text.
func (p *Provider) infer(ctx context.Context, pcm []byte, seg segmenter, lang, prompt string) (string, error) {
	wavData, err := encodeWAV(pcmBuffer(pcm, seg.sampleRate, seg.channels))
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        lang,
		"model":           p.model,
		"prompt":          prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	text := strings.TrimSpace(result.Text)
	if isNonSpeech(text) {
		return "", nil
	}
	return text, nil
}
