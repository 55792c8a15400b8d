// Package extract asks a language model to pull the five customer-record
// attributes out of a transcript, and turns the model's reply into a
// key/value mapping.
//
// The reply is expected to be a bare JSON object. Code fences some models
// add anyway are removed by [StripFences] before [Parse] runs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/intake/pkg/provider/llm"
)

const defaultTemperature = 0.1

// promptTemplate embeds the transcript with %s. It asks for exactly the keys
// record.FromMapping reads.
const promptTemplate = `You are an AI assistant that extracts structured data from text.
Extract the following information from the text below:
- name (First name only)
- surname (Last name only)
- gender (Male/Female/Other)
- phone (Phone number)
- license_plate (Vehicle license plate number)

Text: %q

Return the result strictly in JSON format with exactly these keys: name, surname, gender, phone, license_plate.
If a field is missing or ambiguous, set it to null.
Do not include any markdown formatting (like ` + "```json" + `), just the raw JSON string.`

// ErrInvalidFormat is returned by [Parse] when the reply is not valid JSON.
var ErrInvalidFormat = errors.New("extract: reply is not valid JSON")

// Option is a functional option for configuring an [Extractor].
type Option func(*Extractor)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(e *Extractor) {
		e.temperature = temp
	}
}

// WithMaxTokens caps the reply length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// Extractor sends the extraction prompt to an [llm.Provider]. It is safe for
// concurrent use.
type Extractor struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns an [Extractor] backed by provider.
func New(provider llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// BuildPrompt returns the extraction instruction with transcript embedded.
func BuildPrompt(transcript string) string {
	return fmt.Sprintf(promptTemplate, transcript)
}

// Extract returns the model's raw reply for transcript. The reply is not
// parsed; callers pass it through [StripFences] and [Parse].
func (e *Extractor) Extract(ctx context.Context, transcript string) (string, error) {
	req := llm.CompletionRequest{
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		JSONResponse: true,
		Messages: []llm.Message{
			{Role: "user", Content: BuildPrompt(transcript)},
		},
	}
	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("extract: complete: %w", err)
	}
	if resp == nil {
		return "", errors.New("extract: complete: nil response")
	}
	return resp.Content, nil
}

// StripFences trims s and removes one leading ```json or ``` marker and
// one trailing ``` marker.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "```json") {
		s = s[7:]
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
