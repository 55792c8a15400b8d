package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when stage timeouts, temperatures, or the
	// ask-back locale changed. These apply to the next run.
	PipelineChanged bool

	// ProvidersChanged is true when any provider entry, fallback list, or
	// resilience setting changed. The provider chain must be rebuilt.
	ProvidersChanged bool

	// RestartRequired lists settings that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// Reloadable reports whether the diff contains anything that can be applied
// to a running server.
func (d ConfigDiff) Reloadable() bool {
	return d.LogLevelChanged || d.PipelineChanged || d.ProvidersChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) || old.Resilience != new.Resilience {
		d.ProvidersChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.UploadDir != new.Server.UploadDir {
		d.RestartRequired = append(d.RestartRequired, "server.upload_dir")
	}
	if old.Server.MaxUploadBytes != new.Server.MaxUploadBytes {
		d.RestartRequired = append(d.RestartRequired, "server.max_upload_bytes")
	}
	if old.Server.RequestTimeout != new.Server.RequestTimeout {
		d.RestartRequired = append(d.RestartRequired, "server.request_timeout")
	}
	if old.Observe != new.Observe {
		d.RestartRequired = append(d.RestartRequired, "observe")
	}
	return d
}
