// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider registry for the intake service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader]; fields missing from the file keep the values of
// [Default].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Observe    ObserveConfig    `yaml:"observe"`
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// UploadDir is where uploaded audio is staged while a run is in flight.
	UploadDir string `yaml:"upload_dir"`

	// MaxUploadBytes caps the request body of POST /process_audio.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RequestTimeout bounds a whole HTTP request, including all stages.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PipelineConfig tunes the intake stages. Hot-reloadable.
type PipelineConfig struct {
	STTTimeout     time.Duration `yaml:"stt_timeout"`
	ExtractTimeout time.Duration `yaml:"extract_timeout"`
	AskBackTimeout time.Duration `yaml:"askback_timeout"`

	// Temperature is the sampling temperature of the extraction call.
	Temperature float64 `yaml:"temperature"`

	// AskBackTemperature is the sampling temperature of the ask-back call.
	AskBackTemperature float64 `yaml:"askback_temperature"`

	// AskBackLocale names the language the ask-back message is written in,
	// e.g. "Thai".
	AskBackLocale string `yaml:"askback_locale"`
}

// ProvidersConfig declares the speech and language backends. Each entry
// selects a named factory registered in the [Registry]. Fallbacks are tried
// in order when the primary fails or its circuit breaker is open.
type ProvidersConfig struct {
	STT         ProviderEntry   `yaml:"stt"`
	LLM         ProviderEntry   `yaml:"llm"`
	FallbackSTT []ProviderEntry `yaml:"fallback_stt"`
	FallbackLLM []ProviderEntry `yaml:"fallback_llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini",
	// "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For the whisper
	// server provider it is the server address.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider. For local whisper providers
	// it is a model name or a model file path.
	Model string `yaml:"model"`

	// Options holds provider-specific values. Decode them with
	// [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig tunes the circuit breaker and retry policy applied to
// every provider.
type ResilienceConfig struct {
	MaxFailures   int           `yaml:"max_failures"`
	ResetTimeout  time.Duration `yaml:"reset_timeout"`
	Retries       int           `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ObserveConfig controls telemetry.
type ObserveConfig struct {
	// Metrics enables the Prometheus exporter and GET /metrics.
	Metrics bool `yaml:"metrics"`

	// ServiceName is the OpenTelemetry service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     ":8000",
			LogLevel:       LogInfo,
			UploadDir:      "audio",
			MaxUploadBytes: 25 << 20,
			RequestTimeout: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			STTTimeout:         120 * time.Second,
			ExtractTimeout:     30 * time.Second,
			AskBackTimeout:     20 * time.Second,
			Temperature:        0.1,
			AskBackTemperature: 0.7,
			AskBackLocale:      "Thai",
		},
		Providers: ProvidersConfig{
			STT: ProviderEntry{
				Name:    "whisper",
				BaseURL: "http://localhost:8080",
				Model:   "small",
				Options: map[string]any{"language": "th"},
			},
			LLM: ProviderEntry{
				Name:   "gemini",
				Model:  "gemini-1.5-flash",
				APIKey: "${GEMINI_API_KEY}",
			},
		},
		Resilience: ResilienceConfig{
			MaxFailures:   5,
			ResetTimeout:  30 * time.Second,
			Retries:       1,
			RetryInterval: 500 * time.Millisecond,
		},
		Observe: ObserveConfig{
			Metrics:     true,
			ServiceName: "intake",
		},
	}
}
