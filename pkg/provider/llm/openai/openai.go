// Package openai provides a reply-generation provider backed by the OpenAI
// Responses API. The conversation is resent in full on every call and nothing
// is stored server side.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// Provider implements [llm.Provider] using the OpenAI Responses API.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any
// OpenAI-compatible server works.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the SDK retries transient failures.
// Default: 0, since failover is handled by the caller.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}

	cfg := &config{}
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
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements llm.Provider. System messages become the response
// instructions; the other turns are sent as input items in order.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: create response: %w", err)
	}
	if resp.Status == responses.ResponseStatusFailed {
		return nil, fmt.Errorf("openai: response %s failed: %s", resp.ID, resp.Error.Message)
	}

	return &llm.CompletionResponse{
		Content:      resp.OutputText(),
		FinishReason: finishReason(resp),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// finishReason maps the response status onto the chat-completion vocabulary
// used by [llm.CompletionResponse]: "stop", "length" or "content_filter".
func finishReason(resp *responses.Response) string {
	if resp.Status != responses.ResponseStatusIncomplete {
		return "stop"
	}
	switch resp.IncompleteDetails.Reason {
	case "max_output_tokens":
		return "length"
	case "":
		return "incomplete"
	default:
		return resp.IncompleteDetails.Reason
	}
}

// CountTokens implements llm.Provider with the shared character estimate.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return llm.CapabilitiesFor(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) (responses.ResponseNewParams, error) {
	if len(req.Messages) == 0 {
		return responses.ResponseNewParams{}, errors.New("no messages")
	}

	var (
		instructions []string
		input        responses.ResponseInputParam
	)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			instructions = append(instructions, m.Content)
		case "user":
			input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleUser))
		case "assistant":
			input = append(input, responses.ResponseInputItemParamOfMessage(m.Content, responses.EasyInputMessageRoleAssistant))
		default:
			return responses.ResponseNewParams{}, fmt.Errorf("unknown message role %q", m.Role)
		}
	}
	if len(input) == 0 {
		return responses.ResponseNewParams{}, errors.New("no user or assistant turns")
	}

	params := responses.ResponseNewParams{
		Model: p.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		Store: oai.Bool(false),
	}
	if len(instructions) > 0 {
		params.Instructions = oai.String(strings.Join(instructions, "\n\n"))
	}
	if req.Temperature != 0 {
		params.Temperature = oai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = oai.Int(int64(req.MaxTokens))
	}
	return params, nil
}
