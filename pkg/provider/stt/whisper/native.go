// This file contains the NativeTranscriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

// Compile-time assertion that NativeTranscriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*NativeTranscriber)(nil)

// NativeTranscriber implements stt.Transcriber using the whisper.cpp Go
// bindings. The model is loaded once and shared; each call creates its own
// inference context, so concurrent calls do not interfere.
type NativeTranscriber struct {
	model      whisperlib.Model
	language   string
	threads    uint
	ffmpegPath string
}

// NativeOption is a functional option for configuring a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage sets the language code for transcription. Defaults to
// "th".
func WithNativeLanguage(lang string) NativeOption {
	return func(t *NativeTranscriber) { t.language = lang }
}

// WithNativeThreads sets the number of CPU threads per inference. Zero keeps
// the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(t *NativeTranscriber) { t.threads = n }
}

// WithNativeFFmpeg sets the ffmpeg binary used for inputs that are not
// 16 kHz 16-bit WAV. Defaults to "ffmpeg"; empty disables conversion.
func WithNativeFFmpeg(path string) NativeOption {
	return func(t *NativeTranscriber) { t.ffmpegPath = path }
}

// NewNative loads the whisper.cpp model at modelPath (e.g.
// "models/ggml-small.bin"). The caller must call Close when done.
func NewNative(modelPath string, opts ...NativeOption) (*NativeTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &NativeTranscriber{
		model:      model,
		language:   defaultLanguage,
		ffmpegPath: "ffmpeg",
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model.
func (t *NativeTranscriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe decodes the audio file at audioPath to 16 kHz mono samples and
// runs whisper.cpp inference on them. Segment texts are joined with a single
// space. Cancelling ctx aborts inference before the encoder starts.
func (t *NativeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := stt.CheckAudio(audioPath); err != nil {
		return "", err
	}

	audio, err := loadPCM(ctx, audioPath, t.ffmpegPath)
	if err != nil {
		return "", err
	}
	samples := monoFloat32(audio.data, audio.channels)

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}
	if t.threads > 0 {
		wctx.SetThreads(t.threads)
	}

	proceed := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, proceed, nil, nil); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("whisper: process audio: %w", ctx.Err())
		}
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var segments []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		segments = append(segments, segment.Text)
	}
	return stt.JoinSegments(segments), nil
}
