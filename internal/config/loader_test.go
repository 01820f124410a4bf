package config_test

import (
	"strings"
	"testing"

	"github.com/streamxcribe/pipeline/internal/config"
)

func TestValidate_DefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(``))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.BatchSize != 4 {
		t.Errorf("default batch_size = %d, want 4", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.BatchTimeoutMs != 200 {
		t.Errorf("default batch_timeout_ms = %d, want 200", cfg.Pipeline.BatchTimeoutMs)
	}
	if cfg.Pipeline.MaxQueueSize != 8 {
		t.Errorf("default max_queue_size = %d, want 8", cfg.Pipeline.MaxQueueSize)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("default workers = %d, want 1", cfg.Pipeline.Workers)
	}
	if cfg.Adapter.Kind != "mock" {
		t.Errorf("default model_adapter.kind = %q, want mock", cfg.Adapter.Kind)
	}
	if cfg.Resilience.MaxFailures != 5 {
		t.Errorf("default resilience.max_failures = %d, want 5", cfg.Resilience.MaxFailures)
	}
	if cfg.Resilience.ResetTimeoutMs != 30000 {
		t.Errorf("default resilience.reset_timeout_ms = %d, want 30000", cfg.Resilience.ResetTimeoutMs)
	}
	if cfg.Resilience.HalfOpenMax != 3 {
		t.Errorf("default resilience.half_open_max = %d, want 3", cfg.Resilience.HalfOpenMax)
	}
}

func TestValidate_FallbackAdapterRequiresEndpoint(t *testing.T) {
	t.Parallel()
	yaml := `
model_adapter:
  kind: mock
  fallback:
    kind: http
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for http fallback without endpoint, got nil")
	}
	if !strings.Contains(err.Error(), "fallback.endpoint") {
		t.Errorf("error should mention fallback.endpoint, got: %v", err)
	}
}

func TestValidate_FallbackAdapterWithEndpointIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
model_adapter:
  kind: native
  model_path: /models/whisper.bin
  fallback:
    kind: http
    endpoint: http://localhost:9000
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Adapter.Fallback.Kind != "http" {
		t.Errorf("fallback.kind = %q, want http", cfg.Adapter.Fallback.Kind)
	}
}

func TestValidate_MaxQueueSizeBelowBatchSize(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  batch_size: 8
  max_queue_size: 4
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for max_queue_size < batch_size, got nil")
	}
	if !strings.Contains(err.Error(), "max_queue_size") {
		t.Errorf("error should mention max_queue_size, got: %v", err)
	}
}

func TestValidate_HTTPAdapterRequiresEndpoint(t *testing.T) {
	t.Parallel()
	yaml := `
model_adapter:
  kind: http
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for http adapter without endpoint, got nil")
	}
	if !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("error should mention endpoint, got: %v", err)
	}
}

func TestValidate_NativeAdapterRequiresModelPath(t *testing.T) {
	t.Parallel()
	yaml := `
model_adapter:
  kind: native
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for native adapter without model_path, got nil")
	}
	if !strings.Contains(err.Error(), "model_path") {
		t.Errorf("error should mention model_path, got: %v", err)
	}
}

func TestValidate_WSAdapterWithEndpointIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
model_adapter:
  kind: ws
  endpoint: wss://inference.example.com/v1/batch
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TraceSampleRatioOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
observe:
  trace_sample_ratio: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for trace_sample_ratio out of range, got nil")
	}
	if !strings.Contains(err.Error(), "trace_sample_ratio") {
		t.Errorf("error should mention trace_sample_ratio, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  batch_size: -1
  max_queue_size: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "batch_size") {
		t.Errorf("error should mention batch_size, got: %v", err)
	}
	if !strings.Contains(errStr, "max_queue_size") {
		t.Errorf("error should mention max_queue_size, got: %v", err)
	}
}

func TestValidAdapterKinds(t *testing.T) {
	t.Parallel()
	if len(config.ValidAdapterKinds) == 0 {
		t.Fatal("ValidAdapterKinds should not be empty")
	}
	found := false
	for _, k := range config.ValidAdapterKinds {
		if k == "http" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidAdapterKinds should contain \"http\"")
	}
}
