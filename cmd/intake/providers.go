package main

import (
	"context"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intake/internal/config"
	"github.com/MrWong99/intake/internal/record"
	"github.com/MrWong99/intake/pkg/provider/llm"
	"github.com/MrWong99/intake/pkg/provider/llm/anyllm"
	"github.com/MrWong99/intake/pkg/provider/llm/gemini"
	oallm "github.com/MrWong99/intake/pkg/provider/llm/openai"
	"github.com/MrWong99/intake/pkg/provider/stt"
	"github.com/MrWong99/intake/pkg/provider/stt/fasterwhisper"
	oastt "github.com/MrWong99/intake/pkg/provider/stt/openai"
	"github.com/MrWong99/intake/pkg/provider/stt/whisper"
)

// Provider-specific option blocks, decoded from ProviderEntry.Options.

type geminiOptions struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type openaiLLMOptions struct {
	Organization string        `mapstructure:"organization"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type whisperOptions struct {
	Language string `mapstructure:"language"`
	FFmpeg   string `mapstructure:"ffmpeg"`
}

type nativeWhisperOptions struct {
	Language  string `mapstructure:"language"`
	ModelPath string `mapstructure:"model_path"`
	Threads   uint   `mapstructure:"threads"`
	FFmpeg    string `mapstructure:"ffmpeg"`
}

type fasterWhisperOptions struct {
	Language    string `mapstructure:"language"`
	Python      string `mapstructure:"python"`
	Device      string `mapstructure:"device"`
	ComputeType string `mapstructure:"compute_type"`
	BeamSize    int    `mapstructure:"beam_size"`
}

type openaiSTTOptions struct {
	Language string        `mapstructure:"language"`
	Prompt   string        `mapstructure:"prompt"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// gemini uses the native SDK so the reply can be constrained to the
	// customer record schema.
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var o geminiOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		opts := []gemini.Option{
			gemini.WithResponseSchema(gemini.NullableStringObject(record.Names(record.Fields)...)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if o.Timeout > 0 {
			opts = append(opts, gemini.WithTimeout(o.Timeout))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var o openaiLLMOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if o.Organization != "" {
			opts = append(opts, oallm.WithOrganization(o.Organization))
		}
		if o.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(o.Timeout))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the any-llm pattern: optional APIKey and
	// optional BaseURL. Local servers (ollama, llamacpp, llamafile) only use
	// BaseURL.
	for _, providerName := range []string{
		"anthropic", "deepseek", "mistral", "groq",
		"ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var o whisperOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if o.Language != "" {
			opts = append(opts, whisper.WithLanguage(o.Language))
		}
		if o.FFmpeg != "" {
			opts = append(opts, whisper.WithFFmpeg(o.FFmpeg))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var o nativeWhisperOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = o.ModelPath
		}
		var opts []whisper.NativeOption
		if o.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(o.Language))
		}
		if o.Threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(o.Threads))
		}
		if o.FFmpeg != "" {
			opts = append(opts, whisper.WithNativeFFmpeg(o.FFmpeg))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("faster-whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var o fasterWhisperOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []fasterwhisper.Option
		if o.Language != "" {
			opts = append(opts, fasterwhisper.WithLanguage(o.Language))
		}
		if o.Python != "" {
			opts = append(opts, fasterwhisper.WithPython(o.Python))
		}
		if o.Device != "" {
			opts = append(opts, fasterwhisper.WithDevice(o.Device))
		}
		if o.ComputeType != "" {
			opts = append(opts, fasterwhisper.WithComputeType(o.ComputeType))
		}
		if o.BeamSize > 0 {
			opts = append(opts, fasterwhisper.WithBeamSize(o.BeamSize))
		}
		return fasterwhisper.New(entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var o openaiSTTOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if o.Language != "" {
			opts = append(opts, oastt.WithLanguage(o.Language))
		}
		if o.Prompt != "" {
			opts = append(opts, oastt.WithPrompt(o.Prompt))
		}
		if o.Timeout > 0 {
			opts = append(opts, oastt.WithTimeout(o.Timeout))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})
}
