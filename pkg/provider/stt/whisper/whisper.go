// Package whisper provides whisper.cpp-backed transcribers.
//
// [Transcriber] talks to a running whisper-server binary over its REST API
// (POST /inference). [NativeTranscriber] links whisper.cpp through its CGO
// bindings and runs inference in-process.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("th"),
//	    whisper.WithModel("small"),
//	)
//	text, err := t.Transcribe(ctx, "audio/clip.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

const defaultLanguage = "th"

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "small", "medium"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "th".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithFFmpeg makes the transcriber convert the input to 16 kHz mono WAV with
// the ffmpeg binary at path before uploading. Without it the file is sent as
// is, which requires a server started with --convert for non-WAV input.
func WithFFmpeg(path string) Option {
	return func(t *Transcriber) {
		t.ffmpegPath = path
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// Transcriber implements stt.Transcriber against a whisper.cpp HTTP server.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	ffmpegPath string
	httpClient *http.Client
}

// New creates a Transcriber for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty. The default HTTP
// client records a client span per request and propagates trace context.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe uploads the audio file at audioPath to the /inference endpoint
// as multipart/form-data and returns the trimmed transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := stt.CheckAudio(audioPath); err != nil {
		return "", err
	}

	name, audio, err := t.payload(ctx, audioPath)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := map[string]string{
		"language":        t.language,
		"model":           t.model,
		"response_format": "json",
		"temperature":     "0.0",
	}
	for _, k := range []string{"language", "model", "response_format", "temperature"} {
		if fields[k] == "" {
			continue
		}
		if err := mw.WriteField(k, fields[k]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: server error: %s", result.Error)
	}
	return strings.TrimSpace(result.Text), nil
}

// payload returns the upload file name and bytes, converting through ffmpeg
// when configured.
func (t *Transcriber) payload(ctx context.Context, audioPath string) (string, []byte, error) {
	if t.ffmpegPath == "" {
		b, err := os.ReadFile(audioPath)
		if err != nil {
			return "", nil, fmt.Errorf("whisper: read audio: %w", err)
		}
		return filepath.Base(audioPath), b, nil
	}
	a, err := loadPCM(ctx, audioPath, t.ffmpegPath)
	if err != nil {
		return "", nil, err
	}
	return "audio.wav", encodeWAV(a.data, a.sampleRate, a.channels), nil
}
