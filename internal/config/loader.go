package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidAdapterKinds lists known model adapter kinds. Used by [Validate] to
// warn about unrecognised kinds.
var ValidAdapterKinds = []string{"http", "native", "ws", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the reference scenario parameters (B=4, T_b=200ms,
// W=1, max_queue_size=8) for any pipeline field left at its zero value.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 4
	}
	if cfg.Pipeline.BatchTimeoutMs == 0 {
		cfg.Pipeline.BatchTimeoutMs = 200
	}
	if cfg.Pipeline.QueueCheckIntervalMs == 0 {
		cfg.Pipeline.QueueCheckIntervalMs = 10
	}
	if cfg.Pipeline.MaxQueueSize == 0 {
		cfg.Pipeline.MaxQueueSize = 8
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 1
	}
	if cfg.Pipeline.ResultRetentionSeconds == 0 {
		cfg.Pipeline.ResultRetentionSeconds = 300
	}
	if cfg.Adapter.Kind == "" {
		cfg.Adapter.Kind = "mock"
	}
	if cfg.Adapter.Language == "" {
		cfg.Adapter.Language = "en"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = 5
	}
	if cfg.Resilience.ResetTimeoutMs == 0 {
		cfg.Resilience.ResetTimeoutMs = 30000
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = 3
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Pipeline.BatchSize <= 0 {
		errs = append(errs, errors.New("pipeline.batch_size must be positive"))
	}
	if cfg.Pipeline.BatchTimeoutMs <= 0 {
		errs = append(errs, errors.New("pipeline.batch_timeout_ms must be positive"))
	}
	if cfg.Pipeline.QueueCheckIntervalMs <= 0 {
		errs = append(errs, errors.New("pipeline.queue_check_interval_ms must be positive"))
	}
	if cfg.Pipeline.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("pipeline.max_queue_size must be positive"))
	}
	if cfg.Pipeline.MaxQueueSize < cfg.Pipeline.BatchSize {
		errs = append(errs, fmt.Errorf("pipeline.max_queue_size (%d) must be at least pipeline.batch_size (%d)", cfg.Pipeline.MaxQueueSize, cfg.Pipeline.BatchSize))
	}
	if cfg.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}

	validateAdapterKind(cfg.Adapter.Kind)

	switch cfg.Adapter.Kind {
	case "http", "ws":
		if cfg.Adapter.Endpoint == "" {
			errs = append(errs, fmt.Errorf("model_adapter.endpoint is required for adapter kind %q", cfg.Adapter.Kind))
		}
	case "native":
		if cfg.Adapter.ModelPath == "" {
			errs = append(errs, errors.New("model_adapter.model_path is required for adapter kind \"native\""))
		}
	}

	if cfg.Adapter.Fallback.Kind != "" {
		validateAdapterKind(cfg.Adapter.Fallback.Kind)
		switch cfg.Adapter.Fallback.Kind {
		case "http", "ws":
			if cfg.Adapter.Fallback.Endpoint == "" {
				errs = append(errs, fmt.Errorf("model_adapter.fallback.endpoint is required for fallback kind %q", cfg.Adapter.Fallback.Kind))
			}
		case "native":
			if cfg.Adapter.Fallback.ModelPath == "" {
				errs = append(errs, errors.New("model_adapter.fallback.model_path is required for fallback kind \"native\""))
			}
		}
	}

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, errors.New("resilience.max_failures must not be negative"))
	}
	if cfg.Resilience.ResetTimeoutMs < 0 {
		errs = append(errs, errors.New("resilience.reset_timeout_ms must not be negative"))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, errors.New("resilience.half_open_max must not be negative"))
	}

	if cfg.Observe.TraceSampleRatio < 0 || cfg.Observe.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("observe.trace_sample_ratio %.2f is out of range [0, 1]", cfg.Observe.TraceSampleRatio))
	}

	return errors.Join(errs...)
}

// validateAdapterKind logs a warning if kind is non-empty and not found in
// [ValidAdapterKinds].
func validateAdapterKind(kind string) {
	if kind == "" || slices.Contains(ValidAdapterKinds, kind) {
		return
	}
	slog.Warn("unknown model adapter kind — may be a typo or third-party adapter",
		"kind", kind,
		"known", ValidAdapterKinds,
	)
}
