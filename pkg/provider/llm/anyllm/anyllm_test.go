package anyllm

import (
	"context"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/types"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()
	tests := []types.Message{
		{Role: "system", Content: "You are a helpful, friendly AI assistant."},
		{Role: "user", Content: "it means a lucky find", Name: "learner"},
		{Role: "assistant", Content: "Great! You can start with paradox."},
	}
	for _, m := range tests {
		t.Run(m.Role, func(t *testing.T) {
			t.Parallel()
			got := convertMessage(m)
			if got.Role != m.Role {
				t.Errorf("role = %q, want %q", got.Role, m.Role)
			}
			if got.ContentString() != m.Content {
				t.Errorf("content = %q, want %q", got.ContentString(), m.Content)
			}
			if got.Name != m.Name {
				t.Errorf("name = %q, want %q", got.Name, m.Name)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3.2"}

	params := p.buildParams(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.4,
		MaxTokens:   256,
	})
	if params.Model != "llama3.2" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(params.Messages))
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}

	bare := p.buildParams(llm.CompletionRequest{Messages: []types.Message{{Role: "user", Content: "hi"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil {
		t.Error("zero values should leave optional params unset")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		model     string
		opts      []anyllmlib.Option
		wantModel string
		wantErr   bool
	}{
		{name: "empty backend", backend: "", model: "gpt-4o", wantErr: true},
		{name: "unsupported", backend: "fakecloud", model: "m", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("x")}, wantErr: true},
		{name: "openai with key", backend: "openai", model: "gpt-4o", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}, wantModel: "gpt-4o"},
		{name: "case insensitive", backend: "Anthropic", model: "claude-3-5-sonnet-latest", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, wantModel: "claude-3-5-sonnet-latest"},
		{name: "default model", backend: "groq", opts: []anyllmlib.Option{anyllmlib.WithAPIKey("gsk-test")}, wantModel: "llama-3.1-8b-instant"},
		{name: "ollama without key", backend: "ollama", wantModel: "llama3.2"},
		{name: "llamacpp without key", backend: "llamacpp", model: "qwen", wantModel: "qwen"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.backend, tc.model, tc.opts...)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != tc.wantModel {
				t.Errorf("model = %q, want %q", p.model, tc.wantModel)
			}
		})
	}
}

func TestNew_HostedMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()

	got := Backends()
	want := []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}
	if len(got) != len(want) {
		t.Fatalf("Backends() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Backends()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	for name, local := range map[string]bool{"ollama": true, "LlamaFile": true, "openai": false, "nope": false} {
		if Local(name) != local {
			t.Errorf("Local(%q) = %v", name, !local)
		}
	}
}

func TestComplete_NoMessages(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestCountTokensAndCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "claude-sonnet-4-5"}
	msgs := []types.Message{{Role: "user", Content: "Hello world"}}

	n, err := p.CountTokens(msgs)
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != llm.EstimateTokens(msgs) {
		t.Errorf("CountTokens = %d, want %d", n, llm.EstimateTokens(msgs))
	}
	if caps := p.Capabilities(); caps.ContextWindow != 200_000 {
		t.Errorf("ContextWindow = %d, want 200000", caps.ContextWindow)
	}
}
