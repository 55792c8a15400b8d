package config_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/intake/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if d.Reloadable() || len(d.RestartRequired) != 0 {
		t.Errorf("diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v", d)
	}
	if !d.Reloadable() {
		t.Error("log level change should be reloadable")
	}
}

func TestDiff_PipelineChanged(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Pipeline.ExtractTimeout = time.Minute

	d := config.Diff(old, new)
	if !d.PipelineChanged || d.ProvidersChanged {
		t.Errorf("diff = %+v", d)
	}
}

func TestDiff_ProvidersChanged(t *testing.T) {
	t.Parallel()

	tests := map[string]func(*config.Config){
		"model":      func(c *config.Config) { c.Providers.LLM.Model = "gemini-2.0-flash" },
		"options":    func(c *config.Config) { c.Providers.STT.Options = map[string]any{"language": "en"} },
		"fallback":   func(c *config.Config) { c.Providers.FallbackSTT = []config.ProviderEntry{{Name: "openai"}} },
		"resilience": func(c *config.Config) { c.Resilience.Retries = 4 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			old, new := config.Default(), config.Default()
			mutate(new)
			if d := config.Diff(old, new); !d.ProvidersChanged {
				t.Errorf("diff = %+v, want ProvidersChanged", d)
			}
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := config.Default(), config.Default()
	new.Server.ListenAddr = ":9999"
	new.Server.UploadDir = "/var/intake"
	new.Observe.Metrics = false

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "server.upload_dir", "observe"}
	if !reflect.DeepEqual(d.RestartRequired, want) {
		t.Errorf("restart required = %v, want %v", d.RestartRequired, want)
	}
	if d.Reloadable() {
		t.Error("restart-only changes should not be reloadable")
	}
}
