package config

// ConfigDiff describes what changed between two configs. Only the log
// level can be safely hot-reloaded; every other field here requires
// restarting the pipeline, since the queue, scheduler, and executor pool
// are sized once at construction and the model adapter is a single fixed
// instance, not a registry lookup performed per request.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PipelineTuningChanged bool
	AdapterChanged        bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineTuningChanged = true
	}

	if old.Adapter != new.Adapter {
		d.AdapterChanged = true
	}

	return d
}
