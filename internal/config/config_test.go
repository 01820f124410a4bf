package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/streamxcribe/pipeline/internal/config"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
	"github.com/streamxcribe/pipeline/pkg/modeladapter/mock"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

pipeline:
  batch_size: 4
  batch_timeout_ms: 200
  queue_check_interval_ms: 10
  max_queue_size: 8
  workers: 2
  result_retention_seconds: 60

model_adapter:
  kind: http
  endpoint: "http://localhost:8081"
  language: en

observe:
  service_name: streamxcribe
  prometheus_addr: ":9090"
  trace_sample_ratio: 0.1
`

func TestLoadFromReader_ParsesAllFields(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogLevelInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Pipeline.BatchSize != 4 {
		t.Errorf("batch_size = %d, want 4", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Pipeline.Workers)
	}
	if cfg.Adapter.Kind != "http" {
		t.Errorf("adapter kind = %q, want http", cfg.Adapter.Kind)
	}
	if cfg.Adapter.Endpoint != "http://localhost:8081" {
		t.Errorf("adapter endpoint = %q", cfg.Adapter.Endpoint)
	}
	if cfg.Observe.PrometheusAddr != ":9090" {
		t.Errorf("prometheus_addr = %q, want :9090", cfg.Observe.PrometheusAddr)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
pipeline:
  batch_sizee: 4
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogLevelDebug, true},
		{config.LogLevelInfo, true},
		{config.LogLevelWarn, true},
		{config.LogLevelError, true},
		{"trace", false},
		{"", false},
	}
	for _, c := range cases {
		if got := c.level.IsValid(); got != c.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", c.level, got, c.want)
		}
	}
}

func TestRegistry_CreateUnregisteredKind(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.Create(config.ModelAdapterConfig{Kind: "nonexistent"})
	if !errors.Is(err, config.ErrAdapterNotRegistered) {
		t.Fatalf("err = %v, want ErrAdapterNotRegistered", err)
	}
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.Register("mock", func(config.ModelAdapterConfig) (modeladapter.Adapter, error) {
		return mock.New(), nil
	})

	a, err := reg.Create(config.ModelAdapterConfig{Kind: "mock"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.IsReady(context.Background()) {
		t.Error("expected mock adapter to report ready")
	}
}
