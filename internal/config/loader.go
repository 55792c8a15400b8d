package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native", "faster-whisper", "openai"},
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set are left untouched. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load env file %q: %w", path, err)
	}
	return nil
}

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} references in data with the value of the
// environment variable VAR, or with the text after ":-" when VAR is unset or
// empty. Bare $VAR is left alone so values may contain dollar signs.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v := os.Getenv(string(sub[1])); v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and otherwise returns the
// validated, env-expanded [Default].
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return LoadFromReader(bytes.NewReader(nil))
	}
	return Load(path)
}

// LoadFromReader expands ${VAR} references, decodes YAML from r over
// [Default], and validates the result. Unknown keys are rejected. A provider
// entry that the file omits entirely is replaced by the default entry as a
// whole; a partially specified entry is never merged with the default.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := Default()
	defaults := cfg.Providers
	cfg.Providers = ProvidersConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if reflect.DeepEqual(cfg.Providers.STT, ProviderEntry{}) {
		cfg.Providers.STT = defaults.STT
	}
	if reflect.DeepEqual(cfg.Providers.LLM, ProviderEntry{}) {
		cfg.Providers.LLM = defaults.LLM
	}
	expandEntries(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEntries resolves ${VAR} references that came from [Default] rather
// than from the file.
func expandEntries(cfg *Config) {
	expand := func(e *ProviderEntry) {
		e.APIKey = string(ExpandEnv([]byte(e.APIKey)))
		e.BaseURL = string(ExpandEnv([]byte(e.BaseURL)))
	}
	expand(&cfg.Providers.STT)
	expand(&cfg.Providers.LLM)
	for i := range cfg.Providers.FallbackSTT {
		expand(&cfg.Providers.FallbackSTT[i])
	}
	for i := range cfg.Providers.FallbackLLM {
		expand(&cfg.Providers.FallbackLLM[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.UploadDir == "" {
		errs = append(errs, errors.New("server.upload_dir is required"))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must be positive", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %v must not be negative", cfg.Server.RequestTimeout))
	}

	// Pipeline
	for name, d := range map[string]time.Duration{
		"pipeline.stt_timeout":     cfg.Pipeline.STTTimeout,
		"pipeline.extract_timeout": cfg.Pipeline.ExtractTimeout,
		"pipeline.askback_timeout": cfg.Pipeline.AskBackTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", name, d))
		}
	}
	for name, t := range map[string]float64{
		"pipeline.temperature":         cfg.Pipeline.Temperature,
		"pipeline.askback_temperature": cfg.Pipeline.AskBackTemperature,
	} {
		if t < 0 || t > 2 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 2]", name, t))
		}
	}

	// Providers
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM)...)
	for i, e := range cfg.Providers.FallbackSTT {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.fallback_stt[%d]", i), "stt", e)...)
	}
	for i, e := range cfg.Providers.FallbackLLM {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.fallback_llm[%d]", i), "llm", e)...)
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.Retries < 0 {
		errs = append(errs, fmt.Errorf("resilience.retries %d must not be negative", cfg.Resilience.Retries))
	}

	return errors.Join(errs...)
}

func validateEntry(path, kind string, e ProviderEntry) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", path)}
	}
	validateProviderName(kind, e.Name)
	if kind == "llm" && e.APIKey == "" && needsAPIKey(e.Name) {
		slog.Warn("provider has no api_key; requests will fail until one is set", "provider", path, "name", e.Name)
	}
	return nil
}

func needsAPIKey(name string) bool {
	switch name {
	case "ollama", "llamacpp", "llamafile":
		return false
	}
	return true
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
