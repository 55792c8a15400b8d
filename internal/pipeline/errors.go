package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed run.
type Kind string

const (
	// KindTranscriptionFailure: the audio could not be read or the
	// transcriber failed or timed out.
	KindTranscriptionFailure Kind = "TranscriptionFailure"

	// KindExtractionFailure: the extraction model could not be reached, failed,
	// or timed out.
	KindExtractionFailure Kind = "ExtractionFailure"

	// KindInvalidExtractionFormat: the extraction model answered, but the reply
	// is not parseable JSON. Retrying the same audio may succeed.
	KindInvalidExtractionFormat Kind = "InvalidExtractionFormat"

	// KindMalformedExtraction: the reply parsed, but is not a key/value object.
	KindMalformedExtraction Kind = "MalformedExtraction"

	// KindCancelled: the caller's context ended before the run finished.
	KindCancelled Kind = "Cancelled"
)

// Error is returned by [Pipeline.Run] for every failed run. Match it with
// [errors.As] or use [KindOf].
type Error struct {
	Kind  Kind
	Stage State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s in %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or "" when err is not a
// pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// classify maps a stage error to its kind. A done parent context or a
// cancellation anywhere in the chain wins over the stage's own kind; a stage
// timeout that fired on its own does not.
func classify(parent context.Context, stageKind Kind, err error) Kind {
	if parent.Err() != nil || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return stageKind
}
