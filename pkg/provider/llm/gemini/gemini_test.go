package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/intake/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, "", "gemini-1.5-flash"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New(ctx, "key", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestConvertMessage(t *testing.T) {
	c, err := convertMessage(llm.Message{Role: "assistant", Content: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Role != genai.RoleModel {
		t.Errorf("role = %q, want %q", c.Role, genai.RoleModel)
	}
	if _, err := convertMessage(llm.Message{Role: "system", Content: "x"}); err == nil {
		t.Error("expected error for system role in message list")
	}
}

func TestBuildConfig(t *testing.T) {
	schema := NullableStringObject("name", "phone")
	p := &Provider{model: "gemini-1.5-flash", schema: schema}

	req := llm.UserPrompt("system text", "user text")
	cfg := p.buildConfig(req)
	if cfg.ResponseMIMEType != "" || cfg.ResponseSchema != nil {
		t.Error("plain request should not set JSON mode")
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "system text" {
		t.Errorf("SystemInstruction = %+v", cfg.SystemInstruction)
	}

	req.JSONResponse = true
	req.Temperature = 0.5
	cfg = p.buildConfig(req)
	if cfg.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType = %q", cfg.ResponseMIMEType)
	}
	if cfg.ResponseSchema != schema {
		t.Error("ResponseSchema not applied")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
}

func TestNullableStringObject(t *testing.T) {
	s := NullableStringObject("name", "surname")
	if s.Type != genai.TypeObject {
		t.Fatalf("Type = %q", s.Type)
	}
	if len(s.Required) != 2 || s.Required[0] != "name" {
		t.Errorf("Required = %v", s.Required)
	}
	prop := s.Properties["surname"]
	if prop == nil || prop.Type != genai.TypeString || prop.Nullable == nil || !*prop.Nullable {
		t.Errorf("surname property = %+v", prop)
	}
}

func TestComplete_FakeServer(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"name\":\"สมชาย\"}"}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5, "totalTokenCount": 17}
		}`)
	}))
	defer srv.Close()

	p, err := New(context.Background(), "test-key", "gemini-1.5-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	req := llm.UserPrompt("extract", "ผมชื่อสมชาย")
	req.JSONResponse = true
	resp, err := p.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"name":"สมชาย"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}

	gen, _ := gotBody["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" {
		t.Errorf("generationConfig = %v", gen)
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p := &Provider{model: "gemini-1.5-flash"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error for empty message list")
	}
}

func TestCapabilities(t *testing.T) {
	if !(&Provider{model: "gemini-1.5-flash"}).Capabilities().SupportsJSONMode {
		t.Error("gemini should report JSON mode support")
	}
	if got := (&Provider{model: "gemini-1.5-pro"}).Capabilities().ContextWindow; got != 2_097_152 {
		t.Errorf("ContextWindow = %d", got)
	}
}
