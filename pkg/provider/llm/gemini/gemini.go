// Package gemini provides an llm.Provider backed by the Google Gen AI SDK
// (google.golang.org/genai) talking to the Gemini API.
//
// Unlike the unified any-llm adapter, this package uses Gemini's native JSON
// mode: when a request sets JSONResponse the reply MIME type is forced to
// application/json and, if configured, constrained by a response schema.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/intake/pkg/provider/llm"
)

// Option is a functional option for configuring a Gemini Provider.
type Option func(*Provider)

// WithBaseURL overrides the Gemini API endpoint. Useful for testing.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithResponseSchema constrains JSON replies to s. It only applies to
// requests with JSONResponse set.
func WithResponseSchema(s *genai.Schema) Option {
	return func(p *Provider) {
		p.schema = s
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// Provider implements llm.Provider for Gemini models.
type Provider struct {
	client  *genai.Client
	model   string
	baseURL string
	schema  *genai.Schema
	timeout time.Duration
}

// New creates a Gemini Provider for model authenticated with apiKey.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	p := &Provider{model: model}
	for _, o := range opts {
		o(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions.BaseURL = p.baseURL
	}
	if p.timeout > 0 {
		cfg.HTTPOptions.Timeout = &p.timeout
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// NullableStringObject returns a schema for an object whose properties are
// the given keys, each a nullable string. All keys are required so the model
// answers null rather than omitting a key.
func NullableStringObject(keys ...string) *genai.Schema {
	props := make(map[string]*genai.Schema, len(keys))
	for _, k := range keys {
		props[k] = &genai.Schema{
			Type:     genai.TypeString,
			Nullable: genai.Ptr(true),
		}
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         keys,
		PropertyOrdering: keys,
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		c, err := convertMessage(m)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		contents = append(contents, c)
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: request has no messages")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	result := &llm.CompletionResponse{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:    1_048_576,
		MaxOutputTokens:  8_192,
		SupportsJSONMode: true,
	}
	if strings.Contains(strings.ToLower(p.model), "1.5-pro") {
		caps.ContextWindow = 2_097_152
	}
	return caps
}

func (p *Provider) buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONResponse {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = p.schema
	}
	return cfg
}

func convertMessage(m llm.Message) (*genai.Content, error) {
	switch m.Role {
	case "user":
		return genai.NewContentFromText(m.Content, genai.RoleUser), nil
	case "assistant", "model":
		return genai.NewContentFromText(m.Content, genai.RoleModel), nil
	default:
		return nil, fmt.Errorf("unsupported message role %q", m.Role)
	}
}

var _ llm.Provider = (*Provider)(nil)
