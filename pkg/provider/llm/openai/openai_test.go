package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/responses"

	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/types"
)

const tutorPrompt = "You are a helpful, friendly AI assistant."

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}

	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: tutorPrompt},
			{Role: "user", Content: "I want to practice some word meanings"},
			{Role: "assistant", Content: "Great! You can start with paradox."},
			{Role: "user", Content: "it means a contradiction"},
		},
		Temperature: 0.5,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Model != "gpt-4o" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Instructions.Value != tutorPrompt {
		t.Errorf("instructions = %q", params.Instructions.Value)
	}
	if got := len(params.Input.OfInputItemList); got != 3 {
		t.Errorf("input items = %d, want 3", got)
	}
	if params.Store.Value {
		t.Error("responses must not be stored")
	}
	if params.Temperature.Value != 0.5 || params.MaxOutputTokens.Value != 200 {
		t.Errorf("temperature = %v, max = %v", params.Temperature.Value, params.MaxOutputTokens.Value)
	}
}

func TestBuildParams_Errors(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}

	tests := map[string][]types.Message{
		"empty":        nil,
		"unknown role": {{Role: "tool", Content: "x"}},
		"system only":  {{Role: "system", Content: tutorPrompt}},
	}
	for name, msgs := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := p.buildParams(llm.CompletionRequest{Messages: msgs}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFinishReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status responses.ResponseStatus
		reason string
		want   string
	}{
		{responses.ResponseStatusCompleted, "", "stop"},
		{responses.ResponseStatusIncomplete, "max_output_tokens", "length"},
		{responses.ResponseStatusIncomplete, "content_filter", "content_filter"},
		{responses.ResponseStatusIncomplete, "", "incomplete"},
	}
	for _, tc := range tests {
		resp := &responses.Response{Status: tc.status}
		resp.IncompleteDetails.Reason = tc.reason
		if got := finishReason(resp); got != tc.want {
			t.Errorf("finishReason(%s, %q) = %q, want %q", tc.status, tc.reason, got, tc.want)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete_RoundTrip(t *testing.T) {
	t.Parallel()

	var got struct {
		Model        string  `json:"model"`
		Instructions string  `json:"instructions"`
		Temperature  float64 `json:"temperature"`
		Store        *bool   `json:"store"`
		Input        []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"input"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"resp_1","object":"response","created_at":1,"status":"completed","model":"gpt-4o",
			"output":[{"type":"message","id":"msg_1","status":"completed","role":"assistant",
				"content":[{"type":"output_text","text":"Close! Serendipity is a happy accident.","annotations":[]}]}],
			"usage":{"input_tokens":40,"output_tokens":9,"total_tokens":49,
				"input_tokens_details":{"cached_tokens":0},"output_tokens_details":{"reasoning_tokens":0}}}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: tutorPrompt},
			{Role: "user", Content: "it means luck"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "Close! Serendipity is a happy accident." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" || resp.Usage.TotalTokens != 49 || resp.Usage.PromptTokens != 40 {
		t.Errorf("finish = %q, usage = %+v", resp.FinishReason, resp.Usage)
	}
	if got.Model != "gpt-4o" || got.Temperature != 0.7 || got.Instructions != tutorPrompt {
		t.Errorf("request = %+v", got)
	}
	if got.Store == nil || *got.Store {
		t.Errorf("store = %v, want false", got.Store)
	}
	if len(got.Input) != 1 || got.Input[0].Role != "user" || got.Input[0].Content != "it means luck" {
		t.Errorf("request input = %+v", got.Input)
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-bad", "gpt-4o", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestCapabilitiesAndTokens(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test", "gpt-4o-mini")
	if caps := p.Capabilities(); caps.ContextWindow != 128_000 {
		t.Errorf("ContextWindow = %d", caps.ContextWindow)
	}
	n, err := p.CountTokens([]types.Message{{Role: "user", Content: "abcdefgh"}})
	if err != nil || n != 6 {
		t.Errorf("CountTokens = %d, %v; want 6", n, err)
	}
}
