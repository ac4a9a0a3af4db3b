package reply_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/vocabloop/internal/reply"
	"github.com/MrWong99/vocabloop/internal/session"
	"github.com/MrWong99/vocabloop/pkg/provider/llm"
	"github.com/MrWong99/vocabloop/pkg/provider/llm/mock"
	"github.com/MrWong99/vocabloop/pkg/types"
)

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Replies: []string{"  Close! It means lasting a very short time.  "}}
	s := reply.New(p, reply.WithTemperature(0.7), reply.WithMaxTokens(256))

	h := session.Seed("ephemeral")
	before := h.Clone()

	text, got, err := s.Generate(context.Background(), h, "I think it means something fleeting ")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Close! It means lasting a very short time." {
		t.Errorf("text = %q", text)
	}
	if len(got) != len(h)+2 {
		t.Fatalf("history length = %d, want %d", len(got), len(h)+2)
	}
	if got[3] != (session.Turn{Role: session.RoleUser, Content: "I think it means something fleeting "}) {
		t.Errorf("user turn = %+v", got[3])
	}
	if got[4] != (session.Turn{Role: session.RoleAssistant, Content: text}) {
		t.Errorf("assistant turn = %+v", got[4])
	}
	if err := got.Validate(); err != nil {
		t.Errorf("history invalid: %v", err)
	}
	if !slices.Equal(h, before) {
		t.Error("input history was modified")
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d", len(calls))
	}
	req := calls[0].Req
	if len(req.Messages) != 4 || req.Messages[0].Role != session.RoleSystem || req.Messages[3].Role != session.RoleUser {
		t.Errorf("request messages = %+v", req.Messages)
	}
	if req.Temperature != 0.7 || req.MaxTokens != 256 {
		t.Errorf("request temperature %v, max tokens %d", req.Temperature, req.MaxTokens)
	}
}

func TestGenerate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *mock.Provider
	}{
		{name: "service error", p: &mock.Provider{CompleteErr: errors.New("503 overloaded")}},
		{name: "empty reply", p: &mock.Provider{Replies: []string{"   "}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := reply.New(tc.p)
			h := session.Seed("ubiquitous")

			text, got, err := s.Generate(context.Background(), h, "everywhere ")
			if !errors.Is(err, reply.ErrService) {
				t.Fatalf("err = %v, want ErrService", err)
			}
			if text != "" {
				t.Errorf("text = %q, want empty", text)
			}
			if !slices.Equal(got, h) {
				t.Errorf("history = %+v, want input unchanged", got)
			}
		})
	}
}

func TestGenerate_ContextBudget(t *testing.T) {
	t.Parallel()

	// A full context window only logs a warning; the request still goes out
	// with the complete history.
	p := &mock.Provider{
		Replies:           []string{"Yes."},
		TokenCount:        7_900,
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 8_192},
	}
	s := reply.New(p, reply.WithContextWarnRatio(0.5))

	h := session.Seed("paradox")
	for range 3 {
		var err error
		_, h, err = s.Generate(context.Background(), h, "more ")
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if len(h) != 9 {
		t.Errorf("history length = %d, want 9", len(h))
	}
	last := p.Calls()[2].Req
	if len(last.Messages) != 8 {
		t.Errorf("third request carried %d messages, want 8", len(last.Messages))
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := reply.New(p).Generate(ctx, session.Seed("paradox"), "hm ")
	if !errors.Is(err, context.Canceled) || !errors.Is(err, reply.ErrService) {
		t.Fatalf("err = %v, want ErrService wrapping context.Canceled", err)
	}
}
