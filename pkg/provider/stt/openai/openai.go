// Package openai provides an stt.Transcriber backed by the OpenAI audio
// transcriptions API (Whisper). Any compatible endpoint, such as a local
// faster-whisper-server, can be used via [WithBaseURL].
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

// Option is a functional option for Transcriber.
type Option func(*Transcriber, *[]option.RequestOption)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(_ *Transcriber, ro *[]option.RequestOption) {
		*ro = append(*ro, option.WithBaseURL(url))
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(_ *Transcriber, ro *[]option.RequestOption) {
		*ro = append(*ro, option.WithHTTPClient(&http.Client{Timeout: d}))
	}
}

// WithLanguage sets the ISO-639-1 input language. Defaults to "th".
func WithLanguage(lang string) Option {
	return func(t *Transcriber, _ *[]option.RequestOption) { t.language = lang }
}

// WithPrompt passes a vocabulary hint to the model.
func WithPrompt(prompt string) Option {
	return func(t *Transcriber, _ *[]option.RequestOption) { t.prompt = prompt }
}

// New constructs a Transcriber. An empty model selects whisper-1.
func New(apiKey, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	t := &Transcriber{model: model, language: "th"}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(t, &reqOpts)
	}
	t.client = oai.NewClient(reqOpts...)
	return t, nil
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := stt.CheckAudio(audioPath); err != nil {
		return "", err
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("openai: open audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}
	if t.prompt != "" {
		params.Prompt = oai.String(t.prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
