// Package mock provides a test double for the stt.Transcriber interface.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "ผมชื่อสมชาย"}
//	text, _ := tr.Transcribe(ctx, "clip.wav")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intake/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// AudioPath is the path passed to Transcribe.
	AudioPath string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Err is nil.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// BlockUntilDone makes Transcribe wait for ctx to be done and return
	// ctx.Err(). Used to exercise timeouts and cancellation.
	BlockUntilDone bool

	// CheckPath makes Transcribe run stt.CheckAudio first.
	CheckPath bool

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text, Err.
func (m *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	m.mu.Lock()
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Ctx: ctx, AudioPath: audioPath})
	text, err, block, check := m.Text, m.Err, m.BlockUntilDone, m.CheckPath
	m.mu.Unlock()

	if check {
		if err := stt.CheckAudio(audioPath); err != nil {
			return "", err
		}
	}
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// Calls returns a copy of the recorded calls.
func (m *Transcriber) Calls() []TranscribeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TranscribeCall, len(m.TranscribeCalls))
	copy(out, m.TranscribeCalls)
	return out
}

// Reset clears all recorded calls.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
