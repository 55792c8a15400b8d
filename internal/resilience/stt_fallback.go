package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

// STTFallback implements [stt.Transcriber] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT backend as a fallback.
func (f *STTFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Transcriber] { return f.group }

// Transcribe runs the first healthy backend. A missing audio file fails
// immediately: no backend can succeed, so neither retries nor failover are
// attempted and no breaker is charged.
func (f *STTFallback) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := stt.CheckAudio(audioPath); err != nil {
		return "", err
	}
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, t stt.Transcriber) (string, error) {
		text, err := t.Transcribe(ctx, audioPath)
		if errors.Is(err, stt.ErrAudioNotFound) {
			return "", Permanent(err)
		}
		return text, err
	})
}
