// Package config provides the configuration schema, loader, and model
// adapter registry for the streamxcribe batch inference pipeline.
package config

// Config is the root configuration structure for the pipeline server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Pipeline   PipelineConfig     `yaml:"pipeline"`
	Adapter    ModelAdapterConfig `yaml:"model_adapter"`
	Observe    ObserveConfig      `yaml:"observe"`
	Resilience ResilienceConfig   `yaml:"resilience"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the known log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings for the demo HTTP surface.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// PipelineConfig tunes the admission queue, batch scheduler, and executor
// pool.
type PipelineConfig struct {
	// BatchSize is the maximum number of segments per batch (B).
	BatchSize int `yaml:"batch_size"`

	// BatchTimeoutMs is the maximum wait to fill a batch, in milliseconds (T_b).
	BatchTimeoutMs int `yaml:"batch_timeout_ms"`

	// QueueCheckIntervalMs is the internal poll granularity, in
	// milliseconds (T_p).
	QueueCheckIntervalMs int `yaml:"queue_check_interval_ms"`

	// MaxQueueSize is the combined capacity of the high and normal lanes.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Workers is the fixed number of executor pool workers (W).
	Workers int `yaml:"workers"`

	// ResultRetentionSeconds is loaded and defaulted (300) but not read by
	// the server; dispatched results stay in memory until
	// Pipeline.EvictResultsOlderThan is called.
	ResultRetentionSeconds int `yaml:"result_retention_seconds"`
}

// ModelAdapterConfig selects and configures one modeladapter.Adapter
// implementation, analogous to the teacher's per-stage ProviderEntry.
type ModelAdapterConfig struct {
	// Kind selects the registered adapter implementation (e.g., "http",
	// "native", "ws", "mock").
	Kind string `yaml:"kind"`

	// Endpoint is the whisper.cpp server URL (http) or gateway URL (ws).
	Endpoint string `yaml:"endpoint"`

	// ModelPath is the local whisper.cpp model file path (native).
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code forwarded to the http and native
	// adapters; the ws adapter is not given it.
	Language string `yaml:"language"`

	// APIKey authenticates against a remote inference gateway (ws).
	APIKey string `yaml:"api_key"`

	// Fallback optionally configures a secondary adapter that the pipeline
	// fails over to when a primary call fails or the primary's circuit
	// breaker is open. Kind == ""
	// means no fallback is configured.
	Fallback FallbackAdapterConfig `yaml:"fallback"`
}

// FallbackAdapterConfig configures the secondary model adapter used by
// resilience.ModelAdapterFallback when the primary adapter is unhealthy.
// Its fields mirror ModelAdapterConfig; it is kept as a separate type
// rather than a nested ModelAdapterConfig to avoid unbounded recursion.
type FallbackAdapterConfig struct {
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	APIKey    string `yaml:"api_key"`
}

// AsModelAdapterConfig converts f into a ModelAdapterConfig suitable for
// passing to a [Registry].
func (f FallbackAdapterConfig) AsModelAdapterConfig() ModelAdapterConfig {
	return ModelAdapterConfig{
		Kind:      f.Kind,
		Endpoint:  f.Endpoint,
		ModelPath: f.ModelPath,
		Language:  f.Language,
		APIKey:    f.APIKey,
	}
}

// ResilienceConfig tunes the circuit breaker wrapped around every model
// adapter call.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Zero uses the breaker's own default (5).
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutMs is how long the breaker stays open before probing
	// again, in milliseconds. Zero uses the breaker's own default (30s).
	ResetTimeoutMs int `yaml:"reset_timeout_ms"`

	// HalfOpenMax is the number of probe calls allowed while half-open.
	// Zero uses the breaker's own default (3).
	HalfOpenMax int `yaml:"half_open_max"`
}

// ObserveConfig configures OpenTelemetry metrics and tracing export.
type ObserveConfig struct {
	// ServiceName is reported as the otel resource's service.name attribute.
	ServiceName string `yaml:"service_name"`

	// PrometheusAddr is parsed from the config file but not used by the
	// server: /metrics is always served on Server.ListenAddr.
	PrometheusAddr string `yaml:"prometheus_addr"`

	// TraceSampleRatio is validated to lie in [0, 1]; the tracer provider
	// does not read it.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}
