// Package app wires the intake subsystems into a running application.
//
// The App owns the provider chain built from config: every configured STT and
// LLM backend wrapped in a resilience fallback group, and the pipeline that
// uses them. New builds the chain, Run processes one audio file, Apply swaps
// in a rebuilt chain after a config reload, and Shutdown closes backends that
// hold native resources.
//
// For testing, pass a [config.Registry] whose factories return mocks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/intake/internal/askback"
	"github.com/MrWong99/intake/internal/config"
	"github.com/MrWong99/intake/internal/extract"
	"github.com/MrWong99/intake/internal/health"
	"github.com/MrWong99/intake/internal/observe"
	"github.com/MrWong99/intake/internal/pipeline"
	"github.com/MrWong99/intake/internal/resilience"
)

// chain is one immutable generation of the provider chain.
type chain struct {
	pipeline *pipeline.Pipeline
	stt      *resilience.STTFallback
	llm      *resilience.LLMFallback
}

// App owns the provider chain and its lifecycle.
type App struct {
	reg     *config.Registry
	metrics *observe.Metrics
	level   *slog.LevelVar

	current atomic.Pointer[chain]

	// mu serialises Apply and guards cfg and closers.
	mu  sync.Mutex
	cfg *config.Config

	// closers are called in order during Shutdown. Backends replaced by a
	// reload stay here because in-flight runs may still hold them.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink passed to the pipeline. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets Apply change the log level of a running process.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// New builds the provider chain described by cfg using the factories in reg.
func New(cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{reg: reg, cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	c, closers, err := a.build(cfg)
	if err != nil {
		return nil, err
	}
	a.closers = closers
	a.current.Store(c)
	return a, nil
}

// build creates the backends and the pipeline for cfg. On error every backend
// created so far is closed.
func (a *App) build(cfg *config.Config) (_ *chain, closers []func() error, err error) {
	defer func() {
		if err != nil {
			runClosers(closers)
			closers = nil
		}
	}()

	fcfg := fallbackConfig(cfg.Resilience)
	p := cfg.Providers

	primarySTT, err := a.reg.CreateSTT(p.STT)
	if err != nil {
		return nil, closers, fmt.Errorf("app: create stt %q: %w", p.STT.Name, err)
	}
	closers = appendCloser(closers, primarySTT)
	sttFB := resilience.NewSTTFallback(primarySTT, p.STT.Name, fcfg)
	for i, e := range p.FallbackSTT {
		t, err := a.reg.CreateSTT(e)
		if err != nil {
			return nil, closers, fmt.Errorf("app: create fallback_stt[%d] %q: %w", i, e.Name, err)
		}
		closers = appendCloser(closers, t)
		sttFB.AddFallback(e.Name, t)
	}

	primaryLLM, err := a.reg.CreateLLM(p.LLM)
	if err != nil {
		return nil, closers, fmt.Errorf("app: create llm %q: %w", p.LLM.Name, err)
	}
	closers = appendCloser(closers, primaryLLM)
	llmFB := resilience.NewLLMFallback(primaryLLM, p.LLM.Name, fcfg)
	for i, e := range p.FallbackLLM {
		l, err := a.reg.CreateLLM(e)
		if err != nil {
			return nil, closers, fmt.Errorf("app: create fallback_llm[%d] %q: %w", i, e.Name, err)
		}
		closers = appendCloser(closers, l)
		llmFB.AddFallback(e.Name, l)
	}

	c := &chain{stt: sttFB, llm: llmFB}
	c.pipeline = a.newPipeline(cfg, c)
	slog.Info("provider chain built",
		"stt", sttFB.Group().Names(),
		"llm", llmFB.Group().Names(),
	)
	return c, closers, nil
}

func (a *App) newPipeline(cfg *config.Config, c *chain) *pipeline.Pipeline {
	pc := cfg.Pipeline
	return pipeline.New(
		c.stt,
		extract.New(c.llm, extract.WithTemperature(pc.Temperature)),
		askback.New(c.llm,
			askback.WithTemperature(pc.AskBackTemperature),
			askback.WithLanguage(pc.AskBackLocale),
		),
		pipeline.WithTimeouts(pipeline.Timeouts{
			STT:     pc.STTTimeout,
			Extract: pc.ExtractTimeout,
			AskBack: pc.AskBackTimeout,
		}),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithProviderNames(cfg.Providers.STT.Name, cfg.Providers.LLM.Name),
	)
}

func fallbackConfig(rc config.ResilienceConfig) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  rc.MaxFailures,
			ResetTimeout: rc.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed",
					"provider", name, "from", from.String(), "to", to.String())
			},
		},
		Retry: resilience.RetryPolicy{
			Retries:         rc.Retries,
			InitialInterval: rc.RetryInterval,
		},
		OnAttempt: func(ctx context.Context, name string, err error) {
			if err != nil {
				observe.Logger(ctx).Debug("provider attempt failed", "provider", name, "err", err)
			}
		},
	}
}

func appendCloser(closers []func() error, v any) []func() error {
	if c, ok := v.(io.Closer); ok {
		return append(closers, c.Close)
	}
	return closers
}

func runClosers(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run processes the audio file at audioPath with the current pipeline.
func (a *App) Run(ctx context.Context, audioPath string) (*pipeline.Result, error) {
	return a.current.Load().pipeline.Run(ctx, audioPath)
}

// Config returns the config the current chain was built from.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Apply updates the running application after a config reload. It has the
// signature of [config.ChangeFunc]. A provider change rebuilds the whole
// chain; a pipeline-only change rebuilds the pipeline around the existing
// backends. A failed rebuild keeps the previous chain.
func (a *App) Apply(_, newCfg *config.Config, diff config.ConfigDiff) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if diff.LogLevelChanged && a.level != nil {
		a.level.Set(diff.NewLogLevel.Level())
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}

	switch {
	case diff.ProvidersChanged:
		c, closers, err := a.build(newCfg)
		if err != nil {
			slog.Error("config reload: keeping previous providers", "err", err)
			return
		}
		a.closers = append(a.closers, closers...)
		a.current.Store(c)
	case diff.PipelineChanged:
		old := a.current.Load()
		c := &chain{stt: old.stt, llm: old.llm}
		c.pipeline = a.newPipeline(newCfg, c)
		a.current.Store(c)
		slog.Info("pipeline settings applied")
	}
	a.cfg = newCfg
}

// Checkers returns the readiness checks for the application: the upload
// directory is writable and each provider chain has a usable backend.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		health.DirWritable("upload_dir", a.Config().Server.UploadDir),
		{Name: "stt", Check: func(ctx context.Context) error {
			return health.BreakersClosed("stt", breakerStates(a.current.Load().stt.Group().Breakers())...).Check(ctx)
		}},
		{Name: "llm", Check: func(ctx context.Context) error {
			return health.BreakersClosed("llm", breakerStates(a.current.Load().llm.Group().Breakers())...).Check(ctx)
		}},
	}
}

func breakerStates(bs []*resilience.CircuitBreaker) []health.BreakerState {
	out := make([]health.BreakerState, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

// Shutdown closes every backend in creation order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := a.closers
		a.mu.Unlock()

		slog.Info("shutting down", "closers", len(closers))
		var errs []error
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
