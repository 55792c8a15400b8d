// Package fasterwhisper transcribes audio with the faster-whisper Python
// library. Each call runs an embedded helper script under a Python
// interpreter and parses the JSON it prints.
package fasterwhisper

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

//go:embed assets/faster_whisper.py
var helperScript []byte

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithPython sets the interpreter used to run the helper. Defaults to
// "python3".
func WithPython(path string) Option {
	return func(t *Transcriber) { t.python = path }
}

// WithDevice selects "auto", "cpu" or "cuda". Defaults to "auto".
func WithDevice(device string) Option {
	return func(t *Transcriber) { t.device = device }
}

// WithComputeType sets the CTranslate2 compute type. Defaults to "int8".
func WithComputeType(ct string) Option {
	return func(t *Transcriber) { t.computeType = ct }
}

// WithLanguage pins the transcription language. Empty lets the model detect
// it.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithBeamSize sets the decoder beam size. Defaults to 5.
func WithBeamSize(n int) Option {
	return func(t *Transcriber) { t.beamSize = n }
}

// Transcriber implements stt.Transcriber with faster-whisper.
type Transcriber struct {
	model       string
	python      string
	device      string
	computeType string
	language    string
	beamSize    int

	scriptOnce sync.Once
	scriptPath string
	scriptErr  error
}

// New creates a Transcriber for the given model size ("small", "medium",
// ...) or local model directory.
func New(model string, opts ...Option) (*Transcriber, error) {
	if model == "" {
		return nil, errors.New("fasterwhisper: model must not be empty")
	}
	t := &Transcriber{
		model:       model,
		python:      "python3",
		device:      "auto",
		computeType: "int8",
		language:    "th",
		beamSize:    5,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

type helperOutput struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := stt.CheckAudio(audioPath); err != nil {
		return "", err
	}
	script, err := t.script()
	if err != nil {
		return "", err
	}

	out, err := exec.CommandContext(ctx, t.python, t.args(script, audioPath)...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("fasterwhisper: run helper: %w", ctx.Err())
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return "", fmt.Errorf("fasterwhisper: helper failed: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("fasterwhisper: run helper: %w", err)
	}
	return parseOutput(out)
}

// Close removes the extracted helper script.
func (t *Transcriber) Close() error {
	if t.scriptPath == "" {
		return nil
	}
	return os.Remove(t.scriptPath)
}

func (t *Transcriber) args(script, audioPath string) []string {
	args := []string{
		script,
		"--audio", audioPath,
		"--model", t.model,
		"--device", t.device,
		"--compute-type", t.computeType,
		"--beam-size", strconv.Itoa(t.beamSize),
	}
	if t.language != "" {
		args = append(args, "--language", t.language)
	}
	return args
}

// script writes the embedded helper to a temp file once per Transcriber.
func (t *Transcriber) script() (string, error) {
	t.scriptOnce.Do(func() {
		f, err := os.CreateTemp("", "intake_faster_whisper_*.py")
		if err != nil {
			t.scriptErr = fmt.Errorf("fasterwhisper: create helper script: %w", err)
			return
		}
		defer f.Close()
		if _, err := f.Write(helperScript); err != nil {
			t.scriptErr = fmt.Errorf("fasterwhisper: write helper script: %w", err)
			return
		}
		t.scriptPath = f.Name()
	})
	return t.scriptPath, t.scriptErr
}

func parseOutput(out []byte) (string, error) {
	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", fmt.Errorf("fasterwhisper: parse helper output: %w", err)
	}
	texts := make([]string, len(parsed.Segments))
	for i, s := range parsed.Segments {
		texts[i] = s.Text
	}
	return stt.JoinSegments(texts), nil
}
