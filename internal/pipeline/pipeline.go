// Package pipeline runs one voice intake: transcribe the audio, extract the
// customer fields with a language model, validate them into a record, judge
// completeness, and, for incomplete records, generate an ask-back message.
//
// A run is a linear state machine:
//
//	START → TRANSCRIBING → EXTRACTING → PARSING → EVALUATING → (ASKING_BACK) → DONE
//
// Any stage before ASKING_BACK may end the run in FAILED with an [*Error]
// naming the [Kind]. A failed run never returns a partial [Result]. Ask-back
// failures other than cancellation degrade to an empty message because the
// record and verdict are already known.
//
// A [Pipeline] holds no per-run state and may serve concurrent runs as long
// as its collaborators do.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/intake/internal/extract"
	"github.com/MrWong99/intake/internal/observe"
	"github.com/MrWong99/intake/internal/record"
)

// State is a pipeline state.
type State string

const (
	StateStart        State = "START"
	StateTranscribing State = "TRANSCRIBING"
	StateExtracting   State = "EXTRACTING"
	StateParsing      State = "PARSING"
	StateEvaluating   State = "EVALUATING"
	StateAskingBack   State = "ASKING_BACK"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Extractor returns the extraction model's raw reply for a transcript.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (string, error)
}

// AskBacker writes a follow-up message asking for the missing fields.
type AskBacker interface {
	AskBack(ctx context.Context, missing []record.Field) (string, error)
}

// Timeouts bounds each external call. A zero value disables that bound.
type Timeouts struct {
	STT     time.Duration
	Extract time.Duration
	AskBack time.Duration
}

// DefaultTimeouts are used unless overridden with [WithTimeouts].
var DefaultTimeouts = Timeouts{
	STT:     120 * time.Second,
	Extract: 30 * time.Second,
	AskBack: 20 * time.Second,
}

// Timings holds the measured duration of each executed stage. AskBack is zero
// when the stage was skipped.
type Timings struct {
	STT     time.Duration
	Extract time.Duration
	AskBack time.Duration
}

// Total is the sum of the stage durations.
func (t Timings) Total() time.Duration {
	return t.STT + t.Extract + t.AskBack
}

// Result is the outcome of a successful run.
type Result struct {
	RunID string

	// Transcript is the transcriber output.
	Transcript string

	// RawExtraction is the extraction reply with code fences removed.
	RawExtraction string

	Record  record.Record
	Verdict record.Verdict

	// AskBack is the follow-up message. Empty for complete records and when
	// generation failed.
	AskBack string

	Timings Timings

	// State is always StateDone for a returned Result.
	State State

	// Trace lists the visited states in order.
	Trace []State
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithTimeouts overrides [DefaultTimeouts].
func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) { p.timeouts = t }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProviderNames labels provider request metrics. Defaults: "stt", "llm".
func WithProviderNames(sttName, llmName string) Option {
	return func(p *Pipeline) {
		if sttName != "" {
			p.sttName = sttName
		}
		if llmName != "" {
			p.llmName = llmName
		}
	}
}

// WithClock replaces the time source used for stage timings.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline sequences the intake stages. Construct it with [New].
type Pipeline struct {
	stt      Transcriber
	extract  Extractor
	askback  AskBacker
	timeouts Timeouts
	metrics  *observe.Metrics
	sttName  string
	llmName  string
	now      func() time.Time
}

// New returns a Pipeline using the given collaborators.
func New(t Transcriber, e Extractor, a AskBacker, opts ...Option) *Pipeline {
	p := &Pipeline{
		stt:      t,
		extract:  e,
		askback:  a,
		timeouts: DefaultTimeouts,
		sttName:  "stt",
		llmName:  "llm",
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// run carries the state of one invocation.
type run struct {
	res *Result
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Trace = append(r.res.Trace, s)
}

// Run processes the audio file at audioPath. On failure the returned error is
// an [*Error] and the Result is nil.
func (p *Pipeline) Run(ctx context.Context, audioPath string) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", runID)))

	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)

	r := &run{res: &Result{RunID: runID}}
	r.enter(StateStart)

	err := p.run(ctx, r, audioPath)
	log := observe.Logger(ctx).With("run_id", runID)
	if err != nil {
		kind := KindOf(err)
		p.metrics.RecordRun(ctx, string(StateFailed), string(kind), r.res.Timings.Total())
		log.Warn("run failed", "kind", kind, "error", err)
		observe.EndSpan(span, err)
		return nil, err
	}

	r.enter(StateDone)
	res := r.res
	p.metrics.RecordRun(ctx, string(res.Verdict.Status), "", res.Timings.Total())
	span.SetAttributes(
		attribute.String("status", string(res.Verdict.Status)),
		attribute.StringSlice("missing", record.Names(res.Verdict.Missing)),
	)
	log.Info("run finished",
		"status", res.Verdict.Status,
		"missing", record.Names(res.Verdict.Missing),
		"total", res.Timings.Total())
	observe.EndSpan(span, nil)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, r *run, audioPath string) error {
	// TRANSCRIBING
	r.enter(StateTranscribing)
	var transcript string
	d, err := p.stage(ctx, observe.StageSTT, p.sttName, p.timeouts.STT, func(ctx context.Context) error {
		var err error
		transcript, err = p.stt.Transcribe(ctx, audioPath)
		return err
	})
	r.res.Timings.STT = d
	if err != nil {
		return p.fail(ctx, StateTranscribing, KindTranscriptionFailure, err)
	}
	if transcript == "" {
		observe.Logger(ctx).Warn("empty transcript", "audio", audioPath)
	}
	r.res.Transcript = transcript

	// EXTRACTING
	r.enter(StateExtracting)
	var raw string
	d, err = p.stage(ctx, observe.StageExtract, p.llmName, p.timeouts.Extract, func(ctx context.Context) error {
		var err error
		raw, err = p.extract.Extract(ctx, transcript)
		return err
	})
	r.res.Timings.Extract = d
	if err != nil {
		return p.fail(ctx, StateExtracting, KindExtractionFailure, err)
	}

	// PARSING
	r.enter(StateParsing)
	r.res.RawExtraction = extract.StripFences(raw)
	parsed, err := extract.Parse(r.res.RawExtraction)
	if err != nil {
		return p.fail(ctx, StateParsing, KindInvalidExtractionFormat, err)
	}
	if vs := extract.CheckContract(parsed); len(vs) > 0 {
		p.metrics.ContractViolations.Add(ctx, 1)
		locs := make([]string, len(vs))
		for i, v := range vs {
			locs[i] = v.String()
		}
		observe.Logger(ctx).Warn("extraction reply violates contract", "violations", locs)
	}

	// EVALUATING
	r.enter(StateEvaluating)
	rec, err := record.FromMapping(parsed)
	if err != nil {
		return p.fail(ctx, StateEvaluating, KindMalformedExtraction, err)
	}
	r.res.Record = rec
	r.res.Verdict = rec.Completeness()
	if r.res.Verdict.Complete() {
		return nil
	}

	// ASKING_BACK
	r.enter(StateAskingBack)
	var msg string
	d, err = p.stage(ctx, observe.StageAskBack, p.llmName, p.timeouts.AskBack, func(ctx context.Context) error {
		var err error
		msg, err = p.askback.AskBack(ctx, r.res.Verdict.Missing)
		return err
	})
	r.res.Timings.AskBack = d
	if err != nil {
		if classify(ctx, "", err) == KindCancelled {
			return p.fail(ctx, StateAskingBack, KindCancelled, err)
		}
		observe.Logger(ctx).Warn("ask-back degraded to empty message", "error", err)
		return nil
	}
	r.res.AskBack = msg
	return nil
}

// stage runs fn under its own span and timeout and measures it. A parent
// context that is already done short-circuits without calling fn.
func (p *Pipeline) stage(ctx context.Context, name, provider string, timeout time.Duration, fn func(context.Context) error) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sctx, span := observe.StartSpan(ctx, "pipeline."+name,
		trace.WithAttributes(attribute.String("provider", provider)))
	if timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, timeout)
		defer cancel()
	}

	start := p.now()
	err := fn(sctx)
	d := p.now().Sub(start)

	p.metrics.RecordStage(ctx, name, d)
	status := "ok"
	if err != nil {
		status = "error"
		if !errors.Is(err, context.Canceled) {
			p.metrics.RecordProviderError(ctx, provider, name)
		}
	}
	p.metrics.RecordProviderRequest(ctx, provider, name, status)
	observe.EndSpan(span, err)
	observe.Logger(sctx).Debug("stage finished", "stage", name, "duration", d, "status", status)
	return d, err
}

func (p *Pipeline) fail(ctx context.Context, stage State, kind Kind, err error) error {
	return &Error{
		Kind:  classify(ctx, kind, err),
		Stage: stage,
		Err:   err,
	}
}
