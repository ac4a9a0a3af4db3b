// Package coqui provides a TTS provider for a local Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu and compatible). Synthesis uses GET /api/tts,
// which answers with one WAV file per request; the voice catalogue comes from
// GET /details.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/tts"
	"github.com/MrWong99/vocabloop/pkg/types"
)

const (
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"

	defaultTimeout    = 30 * time.Second
	defaultOutputRate = 22050
)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithLanguage sets the language_id query parameter for multilingual models.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the HTTP timeout for one synthesis request.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithOutputSampleRate sets the rate Synthesize writes. Server audio at any
// other rate is resampled. Default: 22050, the rate of most Coqui models.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// Provider implements tts.Provider against a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	outputRate int
	httpClient *http.Client
}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// New creates a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		outputRate: defaultOutputRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.outputRate <= 0 {
		return nil, fmt.Errorf("coqui: invalid output sample rate %d", p.outputRate)
	}
	return p, nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: p.outputRate, Channels: 1}
}

// Synthesize implements tts.Provider. The whole WAV is fetched before any
// audio is written to w.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile, w io.Writer) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("coqui: text must not be empty")
	}

	params := url.Values{}
	params.Set("text", text)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coqui: read WAV response: %w", err)
	}
	pcm, err := p.decodeWAV(body)
	if err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("coqui: write audio: %w", err)
	}
	return nil
}

// decodeWAV returns the WAV payload as mono 16-bit PCM at the output rate.
func (p *Provider) decodeWAV(data []byte) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("coqui: response is not a valid WAV file")
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("coqui: unsupported WAV bit depth %d", dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("coqui: decode WAV: %w", err)
	}

	pcm := make([]byte, 0, len(buf.Data)*audio.BytesPerSample)
	for _, s := range buf.Data {
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	conv := audio.Converter{
		From: audio.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)},
		To:   p.OutputFormat(),
	}
	return conv.Convert(pcm), nil
}

// detailsResponse is the JSON body returned by GET /details. Speakers is nil
// for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ListVoices returns one profile per speaker for multi-speaker models, or a
// single profile named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) == 0 {
		return []types.VoiceProfile{{
			ID:       "",
			Name:     details.ModelName,
			Provider: "coqui",
			Metadata: map[string]string{"model_name": details.ModelName, "language": details.Language},
		}}, nil
	}

	speakers := slices.Sorted(slices.Values(details.Speakers))
	profiles := make([]types.VoiceProfile, 0, len(speakers))
	for _, spk := range speakers {
		profiles = append(profiles, types.VoiceProfile{
			ID:       spk,
			Name:     spk,
			Provider: "coqui",
			Metadata: map[string]string{"model_name": details.ModelName},
		})
	}
	return profiles, nil
}
