// Package askback generates a polite follow-up message asking the customer
// for the attributes that are missing or failed validation.
package askback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/intake/internal/record"
	"github.com/MrWong99/intake/pkg/provider/llm"
)

const (
	defaultTemperature = 0.7
	defaultLanguage    = "Thai"
)

// promptTemplate takes the comma-separated field list and the reply language.
const promptTemplate = `You are a polite and helpful customer service AI.
The user provided some information, but the following fields are missing or invalid: %s.

Please generate a polite, clear, and friendly message in %s asking the user for this specific missing information.
Keep it concise.`

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithTemperature sets the LLM sampling temperature. Default: 0.7.
func WithTemperature(temp float64) Option {
	return func(g *Generator) {
		g.temperature = temp
	}
}

// WithLanguage sets the language the message is written in, as an English
// language name ("Thai", "English"). Default: Thai.
func WithLanguage(lang string) Option {
	return func(g *Generator) {
		if lang != "" {
			g.language = lang
		}
	}
}

// Generator produces ask-back messages with an [llm.Provider].
type Generator struct {
	llm         llm.Provider
	temperature float64
	language    string
}

// New returns a [Generator] backed by provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		llm:         provider,
		temperature: defaultTemperature,
		language:    defaultLanguage,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// BuildPrompt returns the ask-back instruction listing missing in order.
func (g *Generator) BuildPrompt(missing []record.Field) string {
	return fmt.Sprintf(promptTemplate, strings.Join(record.Names(missing), ", "), g.language)
}

// AskBack returns the trimmed follow-up message for missing. With nothing
// missing it returns "" without calling the model.
func (g *Generator) AskBack(ctx context.Context, missing []record.Field) (string, error) {
	if len(missing) == 0 {
		return "", nil
	}
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Temperature: g.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: g.BuildPrompt(missing)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("askback: complete: %w", err)
	}
	if resp == nil {
		return "", errors.New("askback: complete: nil response")
	}
	return strings.TrimSpace(resp.Content), nil
}
