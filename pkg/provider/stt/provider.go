// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber turns a recorded audio file into a single transcript. Backends
// are batch engines (whisper.cpp, faster-whisper, hosted Whisper) so the
// interface is path-in, text-out; streaming is out of scope.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrAudioNotFound is wrapped by every Transcriber when the audio path does
// not exist or names a directory.
var ErrAudioNotFound = errors.New("stt: audio file not found")

// Transcriber is the abstraction over any batch STT backend.
type Transcriber interface {
	// Transcribe reads the audio file at audioPath and returns its trimmed
	// transcript. The empty string is a valid transcript for silent audio.
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// CheckAudio returns an error wrapping [ErrAudioNotFound] unless path names
// an existing regular file.
func CheckAudio(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrAudioNotFound)
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrAudioNotFound, path)
		}
		return fmt.Errorf("stt: stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAudioNotFound, path)
	}
	return nil
}

// JoinSegments trims each segment, drops empty ones, and joins the rest with
// a single space.
func JoinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
