// Package mock provides a test double for the llm.Provider interface.
//
// Set the exported fields before the first call; Provider records every
// request so tests can assert on the history the caller sent.
//
//	p := &mock.Provider{Replies: []string{"Close! It means a lucky find."}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies are returned in order, one per Complete call. Once exhausted the
	// last reply repeats. With no replies Complete returns an empty response.
	Replies []string

	// CompleteErr, if non-nil, is returned by every Complete call.
	CompleteErr error

	// CompleteFunc, if set, overrides Replies and CompleteErr.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// TokenCount, if non-zero, is returned by CountTokens instead of the
	// llm.EstimateTokens heuristic.
	TokenCount int

	// CountTokensErr is returned by CountTokens when non-nil.
	CountTokensErr error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	completeCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	// Copy the history so later appends by the caller don't alter the record.
	req.Messages = slices.Clone(req.Messages)
	p.completeCalls = append(p.completeCalls, CompleteCall{Ctx: ctx, Req: req})
	n := len(p.completeCalls)
	fn := p.CompleteFunc
	err := p.CompleteErr
	var reply string
	if len(p.Replies) > 0 {
		reply = p.Replies[min(n, len(p.Replies))-1]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: reply, FinishReason: "stop"}, nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CountTokensErr != nil {
		return 0, p.CountTokensErr
	}
	if p.TokenCount != 0 {
		return p.TokenCount, nil
	}
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of all recorded Complete invocations.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.completeCalls)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completeCalls = nil
}
