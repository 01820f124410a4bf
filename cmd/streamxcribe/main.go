// Command streamxcribe is the entry point for the streamxcribe batch
// speech-to-text inference pipeline server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamxcribe/pipeline/internal/config"
	"github.com/streamxcribe/pipeline/internal/health"
	"github.com/streamxcribe/pipeline/internal/observe"
	"github.com/streamxcribe/pipeline/internal/pipeline"
	"github.com/streamxcribe/pipeline/internal/resilience"
	"github.com/streamxcribe/pipeline/internal/server"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
	"github.com/streamxcribe/pipeline/pkg/modeladapter/httpinfer"
	"github.com/streamxcribe/pipeline/pkg/modeladapter/mock"
	"github.com/streamxcribe/pipeline/pkg/modeladapter/native"
	"github.com/streamxcribe/pipeline/pkg/modeladapter/wsinfer"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "streamxcribe: config file %q not found — pass the path of a YAML config file with -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "streamxcribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("streamxcribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"adapter_kind", cfg.Adapter.Kind,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Hot config reload ────────────────────────────────────────────────────
	// Only the log level is safe to apply without a restart: the queue,
	// scheduler, and executor pool are sized once at construction and the
	// model adapter is a fixed instance, not a per-request registry lookup.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			newLevel := newLogger(diff.NewLogLevel)
			slog.SetDefault(newLevel)
			slog.Info("log level hot-reloaded", "new_level", diff.NewLogLevel)
		}
		if diff.PipelineTuningChanged {
			slog.Warn("pipeline tuning changed in config file — restart required to apply", "path", *configPath)
		}
		if diff.AdapterChanged {
			slog.Warn("model adapter config changed in config file — restart required to apply", "path", *configPath)
		}
	})
	if err != nil {
		slog.Warn("config hot-reload watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Model adapter ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinAdapters(ctx, reg)

	primaryAdapter, err := reg.Create(cfg.Adapter)
	if err != nil {
		slog.Error("failed to create model adapter", "kind", cfg.Adapter.Kind, "err", err)
		return 1
	}

	breakerCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: time.Duration(cfg.Resilience.ResetTimeoutMs) * time.Millisecond,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		},
	}
	adapterGroup := resilience.NewModelAdapterFallback(primaryAdapter, cfg.Adapter.Kind, breakerCfg)
	if cfg.Adapter.Fallback.Kind != "" {
		fallbackAdapter, err := reg.Create(cfg.Adapter.Fallback.AsModelAdapterConfig())
		if err != nil {
			slog.Error("failed to create fallback model adapter", "kind", cfg.Adapter.Fallback.Kind, "err", err)
			return 1
		}
		adapterGroup.AddFallback(cfg.Adapter.Fallback.Kind, fallbackAdapter)
		slog.Info("fallback model adapter registered", "primary", cfg.Adapter.Kind, "fallback", cfg.Adapter.Fallback.Kind)
	}
	// Every call into the model adapter — primary or fallback — now passes
	// through a per-entry circuit breaker, so a wedged adapter degrades
	// instead of hanging every worker in the pool.
	var adapter modeladapter.Adapter = adapterGroup

	// ── Observability ────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Observe.ServiceName,
	})
	if err != nil {
		slog.Error("failed to initialise observability provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Error("observability shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Pipeline ─────────────────────────────────────────────────────────────
	pipeCfg := pipeline.Config{
		MaxQueueSize:       cfg.Pipeline.MaxQueueSize,
		BatchSize:          cfg.Pipeline.BatchSize,
		BatchTimeout:       time.Duration(cfg.Pipeline.BatchTimeoutMs) * time.Millisecond,
		QueueCheckInterval: time.Duration(cfg.Pipeline.QueueCheckIntervalMs) * time.Millisecond,
		Workers:            cfg.Pipeline.Workers,
	}
	pipe := pipeline.New(pipeCfg, adapter)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- pipe.Run(ctx)
	}()

	// ── HTTP surface ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()

	srv := server.New(pipe, 0)
	srv.Register(mux)

	healthHandler := health.New(
		health.Checker{Name: "pipeline running", Check: func(checkCtx context.Context) error {
			if !pipe.Ready(checkCtx) {
				return errors.New("pipeline not accepting work")
			}
			return nil
		}},
		health.Checker{Name: "model adapter ready", Check: func(checkCtx context.Context) error {
			if !adapter.IsReady(checkCtx) {
				return errors.New("adapter not ready")
			}
			if state := adapterGroup.PrimaryBreakerState(); state != resilience.StateClosed {
				return fmt.Errorf("primary adapter circuit breaker is %s — serving degraded", state)
			}
			return nil
		}},
	)
	healthHandler.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	serveErrCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-runErrCh:
		if err != nil {
			slog.Error("pipeline run error", "err", err)
		}
	case err := <-serveErrCh:
		if err != nil {
			slog.Error("HTTP server error", "err", err)
		}
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "err", err)
	}
	pipe.Stop()
	<-runErrCh

	slog.Info("goodbye")
	return 0
}

// registerBuiltinAdapters registers a factory for every model adapter kind
// streamxcribe ships with.
func registerBuiltinAdapters(ctx context.Context, reg *config.Registry) {
	reg.Register("mock", func(config.ModelAdapterConfig) (modeladapter.Adapter, error) {
		return mock.New(), nil
	})
	reg.Register("http", func(entry config.ModelAdapterConfig) (modeladapter.Adapter, error) {
		return httpinfer.New(entry.Endpoint, httpinfer.WithLanguage(entry.Language))
	})
	reg.Register("native", func(entry config.ModelAdapterConfig) (modeladapter.Adapter, error) {
		return native.New(entry.ModelPath, native.WithLanguage(entry.Language))
	})
	reg.Register("ws", func(entry config.ModelAdapterConfig) (modeladapter.Adapter, error) {
		return wsinfer.New(ctx, entry.Endpoint, wsinfer.WithAPIKey(entry.APIKey))
	})
}

// newLogger builds a slog.Logger at the configured level, writing text-
// formatted records to stderr.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
