package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/MrWong99/intake/internal/pipeline"
	"github.com/MrWong99/intake/internal/record"
)

// StatusClientClosedRequest is the non-standard status used when the client
// went away before the run finished.
const StatusClientClosedRequest = 499

// StatusError is the response status of a failed run.
const StatusError = "error"

// Metrics reports stage durations in seconds, rounded to four decimals.
type Metrics struct {
	STT     float64 `json:"stt_duration"`
	Extract float64 `json:"llm_extract_duration"`
	AskBack float64 `json:"llm_askback_duration"`
	Total   float64 `json:"total_duration"`
}

// Response is the JSON body of POST /process_audio. The CLI prints the same
// shape with --json.
type Response struct {
	// Status is COMPLETE, INCOMPLETE, or error.
	Status string `json:"status"`

	// Message is the ask-back text, or the error text on failure.
	Message string `json:"message"`

	Data          *record.Record `json:"data"`
	Transcript    string         `json:"transcript"`
	MissingFields []string       `json:"missing_fields"`
	Metrics       Metrics        `json:"metrics"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	RunID         string         `json:"run_id,omitempty"`
}

// NewResponse converts a successful run.
func NewResponse(res *pipeline.Result) Response {
	rec := res.Record
	return Response{
		Status:        string(res.Verdict.Status),
		Message:       res.AskBack,
		Data:          &rec,
		Transcript:    res.Transcript,
		MissingFields: append([]string{}, record.Names(res.Verdict.Missing)...),
		Metrics: Metrics{
			STT:     seconds(res.Timings.STT),
			Extract: seconds(res.Timings.Extract),
			AskBack: seconds(res.Timings.AskBack),
			Total:   seconds(res.Timings.Total()),
		},
		RunID: res.RunID,
	}
}

// ErrorResponse converts a failed run or a rejected upload.
func ErrorResponse(err error) Response {
	resp := Response{
		Status:        StatusError,
		Message:       err.Error(),
		MissingFields: []string{},
	}
	resp.ErrorKind = string(pipeline.KindOf(err))
	return resp
}

// HTTPStatus maps a run error to a response status code. Cancellation caused
// by the request deadline is reported as a gateway timeout.
func HTTPStatus(ctx context.Context, err error) int {
	switch pipeline.KindOf(err) {
	case pipeline.KindInvalidExtractionFormat, pipeline.KindMalformedExtraction:
		return http.StatusUnprocessableEntity
	case pipeline.KindTranscriptionFailure, pipeline.KindExtractionFailure:
		return http.StatusBadGateway
	case pipeline.KindCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return StatusClientClosedRequest
	}
	return http.StatusInternalServerError
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1e4) / 1e4
}
