package config_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/intake/internal/config"
	"github.com/MrWong99/intake/pkg/provider/llm"
	llmmock "github.com/MrWong99/intake/pkg/provider/llm/mock"
	"github.com/MrWong99/intake/pkg/provider/stt"
	sttmock "github.com/MrWong99/intake/pkg/provider/stt/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  upload_dir: /tmp/intake
  max_upload_bytes: 1048576
  request_timeout: 2m

pipeline:
  stt_timeout: 90s
  extract_timeout: 15s
  askback_timeout: 10s
  temperature: 0.2
  askback_temperature: 0.5
  askback_locale: English

providers:
  stt:
    name: whisper
    base_url: http://whisper:8080
    model: medium
    options:
      language: th
  llm:
    name: gemini
    api_key: g-test
    model: gemini-2.0-flash
  fallback_stt:
    - name: openai
      api_key: sk-test
  fallback_llm:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
    - name: ollama
      model: llama3

resilience:
  max_failures: 3
  reset_timeout: 1m
  retries: 2
  retry_interval: 250ms

observe:
  metrics: false
  service_name: intake-test
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 2*time.Minute || cfg.Server.MaxUploadBytes != 1<<20 {
		t.Errorf("server limits = %+v", cfg.Server)
	}
	if cfg.Pipeline.STTTimeout != 90*time.Second || cfg.Pipeline.AskBackLocale != "English" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Providers.STT.Model != "medium" || cfg.Providers.STT.Options["language"] != "th" {
		t.Errorf("stt = %+v", cfg.Providers.STT)
	}
	if len(cfg.Providers.FallbackLLM) != 2 || cfg.Providers.FallbackLLM[1].Name != "ollama" {
		t.Errorf("fallback_llm = %+v", cfg.Providers.FallbackLLM)
	}
	if cfg.Resilience.RetryInterval != 250*time.Millisecond {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
	if cfg.Observe.Metrics || cfg.Observe.ServiceName != "intake-test" {
		t.Errorf("observe = %+v", cfg.Observe)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	def := config.Default()
	if cfg.Server != def.Server || cfg.Pipeline != def.Pipeline || cfg.Resilience != def.Resilience {
		t.Errorf("empty config does not match defaults:\n got %+v\nwant %+v", cfg, def)
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.STT.BaseURL != "http://localhost:8080" {
		t.Errorf("default stt = %+v", cfg.Providers.STT)
	}
	if cfg.Providers.LLM.Name != "gemini" || cfg.Providers.LLM.APIKey != "from-env" {
		t.Errorf("default llm = %+v", cfg.Providers.LLM)
	}
}

func TestLoadFromReader_PartialEntryIsNotMerged(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: openai\n    api_key: sk\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.Model != "" || cfg.Providers.STT.BaseURL != "" || cfg.Providers.STT.Options != nil {
		t.Errorf("stt entry inherited defaults: %+v", cfg.Providers.STT)
	}
	if cfg.Providers.LLM.Name != "gemini" {
		t.Errorf("llm should fall back to the default entry, got %+v", cfg.Providers.LLM)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("INTAKE_TEST_KEY", "secret")
	t.Setenv("INTAKE_TEST_EMPTY", "")

	yaml := `
providers:
  llm:
    name: openai
    api_key: ${INTAKE_TEST_KEY}
    base_url: ${INTAKE_TEST_EMPTY:-https://api.example.com/v1}
    model: price$5
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	llmEntry := cfg.Providers.LLM
	if llmEntry.APIKey != "secret" {
		t.Errorf("api_key = %q, want secret", llmEntry.APIKey)
	}
	if llmEntry.BaseURL != "https://api.example.com/v1" {
		t.Errorf("base_url = %q, want the fallback", llmEntry.BaseURL)
	}
	if llmEntry.Model != "price$5" {
		t.Errorf("model = %q, bare $ must be kept", llmEntry.Model)
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen: \":1\"\n"))
	if err == nil || !strings.Contains(err.Error(), "decode yaml") {
		t.Fatalf("err = %v, want decode error for unknown key", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr []string
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{
			name:    "invalid log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "bananas" },
			wantErr: []string{`server.log_level "bananas" is invalid`},
		},
		{
			name:    "missing upload dir",
			mutate:  func(c *config.Config) { c.Server.UploadDir = "" },
			wantErr: []string{"server.upload_dir is required"},
		},
		{
			name:    "non-positive upload limit",
			mutate:  func(c *config.Config) { c.Server.MaxUploadBytes = 0 },
			wantErr: []string{"server.max_upload_bytes 0 must be positive"},
		},
		{
			name:    "negative timeout",
			mutate:  func(c *config.Config) { c.Pipeline.ExtractTimeout = -time.Second },
			wantErr: []string{"pipeline.extract_timeout -1s must not be negative"},
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *config.Config) { c.Pipeline.AskBackTemperature = 3 },
			wantErr: []string{"pipeline.askback_temperature 3.00 is out of range"},
		},
		{
			name:    "missing provider name",
			mutate:  func(c *config.Config) { c.Providers.FallbackLLM = []config.ProviderEntry{{Model: "x"}} },
			wantErr: []string{"providers.fallback_llm[0].name is required"},
		},
		{
			name: "multiple errors are joined",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ""
				c.Providers.STT.Name = ""
				c.Resilience.Retries = -1
			},
			wantErr: []string{
				"server.listen_addr is required",
				"providers.stt.name is required",
				"resilience.retries -1 must not be negative",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.Providers.LLM.APIKey = "k"
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if len(tc.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"verbose":       slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.Level(); got != want {
			t.Errorf("%q.Level() = %v, want %v", in, got, want)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"llm", "stt"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %s", kind)
		}
	}
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	want := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	reg.RegisterLLM("mock", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.Model != "m1" {
			t.Errorf("factory got model %q", e.Model)
		}
		return want, nil
	})
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Text: "สวัสดี"}, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "mock", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want {
		t.Error("CreateLLM returned a different provider")
	}

	tr, err := reg.CreateSTT(config.ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if text, _ := tr.Transcribe(context.Background(), "x.wav"); text != "สวัสดี" {
		t.Errorf("transcriber text = %q", text)
	}

	if got := reg.Names("llm"); len(got) != 1 || got[0] != "mock" {
		t.Errorf("Names(llm) = %v", got)
	}
	if got := reg.Names("tts"); got != nil {
		t.Errorf("Names(tts) = %v, want nil", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("bad", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, boom })

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestDecodeOptions(t *testing.T) {
	t.Parallel()

	type opts struct {
		Language string        `mapstructure:"language"`
		Threads  int           `mapstructure:"threads"`
		Timeout  time.Duration `mapstructure:"timeout"`
	}

	var o opts
	err := config.DecodeOptions(config.ProviderEntry{
		Name:    "whisper-native",
		Options: map[string]any{"language": "th", "threads": "4", "timeout": "30s"},
	}, &o)
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if o != (opts{Language: "th", Threads: 4, Timeout: 30 * time.Second}) {
		t.Errorf("decoded %+v", o)
	}

	err = config.DecodeOptions(config.ProviderEntry{Name: "x", Options: map[string]any{"langauge": "th"}}, &o)
	if err == nil || !strings.Contains(err.Error(), "x options") {
		t.Errorf("unknown key err = %v", err)
	}

	if err := config.DecodeOptions(config.ProviderEntry{Name: "x"}, &o); err != nil {
		t.Errorf("empty options: %v", err)
	}
}
