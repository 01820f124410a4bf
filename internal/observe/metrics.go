// Package observe provides application-wide observability primitives for
// the streamxcribe batch inference pipeline: OpenTelemetry metrics,
// distributed tracing, and the Prometheus exporter bridge that exposes them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pipeline metrics.
const meterName = "github.com/streamxcribe/pipeline"

// Metrics holds all OpenTelemetry metric instruments for the pipeline. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BatchFormationDuration tracks how long it took to form a batch, from
	// the first segment's admission to the batch being drained.
	BatchFormationDuration metric.Float64Histogram

	// InferenceDuration tracks model adapter TranscribeBatch call latency.
	InferenceDuration metric.Float64Histogram

	// QueueWaitDuration tracks how long a segment sat in the queue before
	// being picked up by an executor worker.
	QueueWaitDuration metric.Float64Histogram

	// --- Counters ---

	// SegmentsSubmitted counts segments admitted to the queue. Use with
	// attribute.String("lane", "high"|"normal").
	SegmentsSubmitted metric.Int64Counter

	// SegmentsRejected counts segments rejected because the queue was full.
	SegmentsRejected metric.Int64Counter

	// SegmentsCompleted counts segments that finished transcription,
	// successfully or not. Use with attribute.String("status", "success"|"failure").
	SegmentsCompleted metric.Int64Counter

	// BatchesFormed counts batches handed to the executor pool.
	BatchesFormed metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the combined size of the high and normal lanes.
	QueueDepth metric.Int64UpDownCounter

	// ActiveWorkers tracks how many executor pool workers are currently
	// processing a batch.
	ActiveWorkers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// sub-second batch-inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BatchFormationDuration, err = m.Float64Histogram("streamxcribe.batch.formation.duration",
		metric.WithDescription("Latency from first segment admission to batch drain."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("streamxcribe.inference.duration",
		metric.WithDescription("Latency of a model adapter TranscribeBatch call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueueWaitDuration, err = m.Float64Histogram("streamxcribe.queue.wait.duration",
		metric.WithDescription("Time a segment spent queued before processing started."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SegmentsSubmitted, err = m.Int64Counter("streamxcribe.segments.submitted",
		metric.WithDescription("Total segments admitted to the queue, by lane."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsRejected, err = m.Int64Counter("streamxcribe.segments.rejected",
		metric.WithDescription("Total segments rejected because the queue was full."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsCompleted, err = m.Int64Counter("streamxcribe.segments.completed",
		metric.WithDescription("Total segments that reached a terminal state, by status."),
	); err != nil {
		return nil, err
	}
	if met.BatchesFormed, err = m.Int64Counter("streamxcribe.batches.formed",
		metric.WithDescription("Total batches handed to the executor pool."),
	); err != nil {
		return nil, err
	}

	if met.QueueDepth, err = m.Int64UpDownCounter("streamxcribe.queue.depth",
		metric.WithDescription("Combined size of the high and normal priority lanes."),
	); err != nil {
		return nil, err
	}
	if met.ActiveWorkers, err = m.Int64UpDownCounter("streamxcribe.workers.active",
		metric.WithDescription("Number of executor pool workers currently processing a batch."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("streamxcribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegmentSubmitted records one segment admission, tagged by lane
// ("high" or "normal").
func (m *Metrics) RecordSegmentSubmitted(ctx context.Context, lane string) {
	m.SegmentsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("lane", lane)))
}

// RecordSegmentCompleted records one segment reaching a terminal state,
// tagged by status ("success" or "failure").
func (m *Metrics) RecordSegmentCompleted(ctx context.Context, status string) {
	m.SegmentsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBatchFormed records one batch being handed to the executor pool.
func (m *Metrics) RecordBatchFormed(ctx context.Context, highCount, normalCount int) {
	m.BatchesFormed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.Int("high_count", highCount),
			attribute.Int("normal_count", normalCount),
		),
	)
}
