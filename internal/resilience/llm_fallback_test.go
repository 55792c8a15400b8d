package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/intake/pkg/provider/llm"
	llmmock "github.com/MrWong99/intake/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.UserPrompt("", "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("content = %q, want primary", resp.Content)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Errorf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_FailsOver(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errTest}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	req := llm.UserPrompt("sys", "extract")
	req.JSONResponse = true
	resp, err := f.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "secondary" {
		t.Errorf("content = %q, want secondary", resp.Content)
	}
	if len(secondary.CompleteCalls) != 1 || !secondary.CompleteCalls[0].Req.JSONResponse {
		t.Errorf("secondary did not receive the original request: %+v", secondary.CompleteCalls)
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	f := NewLLMFallback(&llmmock.Provider{CompleteErr: errTest}, "primary", FallbackConfig{})
	f.AddFallback("secondary", &llmmock.Provider{CompleteErr: errTest})

	_, err := f.Complete(context.Background(), llm.UserPrompt("", "hello"))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_CapabilitiesFromPrimary(t *testing.T) {
	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 128000, SupportsJSONMode: true}}
	secondary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8000}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	caps := f.Capabilities()
	if caps.ContextWindow != 128000 || !caps.SupportsJSONMode {
		t.Errorf("capabilities = %+v, want primary's", caps)
	}
	if got := f.Group().Names(); len(got) != 2 {
		t.Errorf("group names = %v", got)
	}
}
