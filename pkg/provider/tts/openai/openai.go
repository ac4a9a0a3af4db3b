// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Audio is requested as raw PCM (24 kHz, mono, signed 16-bit little-endian)
// and copied to the caller's writer while the response body streams in.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

const (
	defaultModel = oai.SpeechModelGPT4oMiniTTS
	defaultVoice = "coral"

	// pcmSampleRate is fixed by the API for response_format=pcm.
	pcmSampleRate = 24000

	copyBufferSize = 4800 // 100 ms of 24 kHz mono
)

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	model      string
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel sets the speech model (default gpt-4o-mini-tts). Only the
// gpt-4o family honours per-request instructions.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets the HTTP timeout for a whole synthesis, including the time
// spent streaming the audio body.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: string(defaultModel)}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: pcmSampleRate, Channels: 1}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile, w io.Writer) error {
	if text == "" {
		return errors.New("openai tts: text must not be empty")
	}

	resp, err := p.client.Audio.Speech.New(ctx, p.buildParams(text, voice))
	if err != nil {
		return fmt.Errorf("openai tts: speech request: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, copyBufferSize*audio.BytesPerSample)
	if _, err := io.CopyBuffer(&evenWriter{w: w}, resp.Body, buf); err != nil {
		return fmt.Errorf("openai tts: stream audio: %w", err)
	}
	return nil
}

func (p *Provider) buildParams(text string, voice types.VoiceProfile) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = defaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.Instructions != "" {
		params.Instructions = oai.String(voice.Instructions)
	}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}
	return params
}

// evenWriter holds back a trailing odd byte so every Write to the
// underlying writer carries whole 16-bit samples.
type evenWriter struct {
	w   io.Writer
	odd []byte
}

func (e *evenWriter) Write(p []byte) (int, error) {
	n := len(p)
	data := p
	if len(e.odd) > 0 {
		data = append(e.odd, p...)
		e.odd = nil
	}
	if len(data)%audio.BytesPerSample != 0 {
		e.odd = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return n, nil
	}
	if _, err := e.w.Write(data); err != nil {
		return 0, err
	}
	return n, nil
}
