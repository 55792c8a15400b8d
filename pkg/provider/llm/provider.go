// Package llm defines the Provider interface for generative-language backends.
//
// A provider wraps a remote or local model API (OpenAI, Gemini, Anthropic, a
// local Ollama instance, ...) and exposes a single blocking completion call.
// The intake pipeline uses it twice per run: once for structured field
// extraction and, when the record is incomplete, once for the ask-back
// message.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import "context"

// Message is a single message in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction. Providers without
	// a dedicated system field prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message drives the reply.
	Messages []Message

	// Temperature controls output randomness. Zero requests the provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// JSONResponse asks the backend to return a bare JSON object. Backends
	// without a JSON mode ignore it; callers must still tolerate code fences.
	JSONResponse bool
}

// CompletionResponse is the full reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the text of the model's reply.
	Content string

	// Usage contains token accounting for the request.
	Usage Usage
}

// ModelCapabilities describes static properties of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the maximum number of tokens in one completion.
	MaxOutputTokens int

	// SupportsJSONMode reports whether JSONResponse is honoured natively.
	SupportsJSONMode bool
}

// Provider is the abstraction over any generative-language backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply. It returns
	// an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}

// UserPrompt is a convenience constructor for a single-message request.
func UserPrompt(system, prompt string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: "user", Content: prompt}},
	}
}
