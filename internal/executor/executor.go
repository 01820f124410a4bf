// Package executor runs the fixed-size worker pool that pulls batches from
// the scheduler, drives the model adapter, and hands results to the
// dispatcher.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamxcribe/pipeline/internal/scheduler"
	"github.com/streamxcribe/pipeline/internal/taskstore"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
	"github.com/streamxcribe/pipeline/pkg/segment"
)

// BatchStatus is the terminal outcome of one batch.
type BatchStatus int

const (
	BatchCompleted BatchStatus = iota
	BatchFailed
)

// SegmentResult pairs one segment with its tagged model-adapter outcome and
// the time it finished.
type SegmentResult struct {
	Segment    segment.Segment
	Item       modeladapter.ItemResult
	FinishedAt time.Time
}

// BatchResult is the outcome of driving one batch through the model
// adapter. When Status is BatchFailed because the adapter call itself
// returned an error (rather than a per-item failure), Err is set and every
// Results[i].Item is a Failure with the same underlying error.
type BatchResult struct {
	BatchID string
	Status  BatchStatus
	Results []SegmentResult
	Err     error
}

// Dispatcher is the subset of dispatcher.Dispatcher the executor depends on.
type Dispatcher interface {
	Dispatch(batchID string, results []SegmentResult)
}

// QueueWaitRecorder is the subset of scheduler.Scheduler used to feed the
// avg_queue_wait_ms statistic.
type QueueWaitRecorder interface {
	RecordQueueWait(time.Duration)
}

// Stats is a snapshot of the executor pool's running statistics.
type Stats struct {
	TotalBatches   int64
	TotalSegments  int64
	AvgBatchMs     float64
	SuccessRate    float64
	ActiveWorkers  int
}

// Pool runs W worker goroutines, each pulling batches from batches and
// driving them through adapter.
type Pool struct {
	workers    int
	store      *taskstore.Store
	adapter    modeladapter.Adapter
	dispatcher Dispatcher
	waitRec    QueueWaitRecorder

	stats *statsAccumulator
}

// New creates a Pool with the given number of workers.
func New(workers int, store *taskstore.Store, adapter modeladapter.Adapter, dispatcher Dispatcher, waitRec QueueWaitRecorder) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers:    workers,
		store:      store,
		adapter:    adapter,
		dispatcher: dispatcher,
		waitRec:    waitRec,
		stats:      newStatsAccumulator(),
	}
}

// Run starts p.workers worker goroutines that each pull from batches until
// it is closed or ctx is cancelled, then waits for all of them to return. A
// worker exits cleanly (without error) when batches is closed and returns
// ctx.Err() when ctx is cancelled; adapter failures are recorded per-batch
// rather than propagated.
func (p *Pool) Run(ctx context.Context, batches <-chan scheduler.Batch) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		eg.Go(func() error {
			p.stats.workerStarted()
			defer p.stats.workerStopped()
			return p.workerLoop(egCtx, batches)
		})
	}

	return eg.Wait()
}

// workerLoop repeatedly pulls a batch, marks its segments PROCESSING,
// invokes the model adapter, and dispatches the result, until batches is
// closed or ctx is cancelled.
func (p *Pool) workerLoop(ctx context.Context, batches <-chan scheduler.Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			p.processBatch(ctx, batch)
		}
	}
}

// processBatch marks every segment PROCESSING, invokes the adapter, and
// dispatches the resulting BatchResult. Failures in the adapter call itself
// (a returned error, or a length mismatch) fail every segment in the batch;
// a per-item Failure from the adapter fails only that segment.
func (p *Pool) processBatch(ctx context.Context, batch scheduler.Batch) {
	start := time.Now()

	paths := make([]string, len(batch.Segments))
	for i, seg := range batch.Segments {
		paths[i] = seg.FilePath

		p.store.MarkProcessing(seg.SegmentID, batch.BatchID, start)
		if st, ok := p.store.SegmentState(seg.SegmentID); ok && p.waitRec != nil && !st.QueuedAt.IsZero() {
			p.waitRec.RecordQueueWait(start.Sub(st.QueuedAt))
		}
	}

	items, err := p.adapter.TranscribeBatch(ctx, paths)

	var batchResult BatchResult
	batchResult.BatchID = batch.BatchID
	finishedAt := time.Now()

	switch {
	case err != nil:
		batchResult.Status = BatchFailed
		batchResult.Err = err
		batchResult.Results = failAll(batch.Segments, finishedAt, err)
	case len(items) != len(batch.Segments):
		mismatchErr := fmt.Errorf("executor: model returned %d results for %d segments", len(items), len(batch.Segments))
		batchResult.Status = BatchFailed
		batchResult.Err = mismatchErr
		batchResult.Results = failAll(batch.Segments, finishedAt, mismatchErr)
	default:
		batchResult.Status = BatchCompleted
		batchResult.Results = make([]SegmentResult, len(batch.Segments))
		for i, seg := range batch.Segments {
			batchResult.Results[i] = SegmentResult{
				Segment:    seg,
				Item:       items[i],
				FinishedAt: finishedAt,
			}
		}
	}

	p.recordResults(batchResult.Results, finishedAt)
	p.stats.recordBatch(time.Since(start), batchResult)
	p.dispatcher.Dispatch(batch.BatchID, batchResult.Results)
}

// recordResults writes each segment's terminal outcome into the task store.
// A per-item Failure (whether from a whole-batch error or an individual
// success=false item) fails only that segment; it never cascades.
func (p *Pool) recordResults(results []SegmentResult, finishedAt time.Time) {
	for _, r := range results {
		if r.Item.Ok {
			p.store.CompleteSegment(r.Segment.SegmentID, r.Item.Success.Text, r.Item.Success.Confidence, r.Item.Success.ProcessingTimeS, finishedAt)
		} else {
			p.store.FailSegment(r.Segment.SegmentID, r.Item.Failure.Err.Error(), finishedAt)
		}
	}
}

func failAll(segments []segment.Segment, finishedAt time.Time, err error) []SegmentResult {
	results := make([]SegmentResult, len(segments))
	for i, seg := range segments {
		results[i] = SegmentResult{
			Segment:    seg,
			Item:       modeladapter.NewFailure(err),
			FinishedAt: finishedAt,
		}
	}
	return results
}

// Stats returns a snapshot of the pool's running statistics.
func (p *Pool) Stats() Stats {
	return p.stats.snapshot()
}
