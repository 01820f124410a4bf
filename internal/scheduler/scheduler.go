// Package scheduler forms micro-batches from the dual-priority queue using a
// size-plus-timeout rule that prioritises the high lane, and tracks the
// statistics the supervisor reports.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamxcribe/pipeline/internal/queue"
	"github.com/streamxcribe/pipeline/pkg/segment"
)

// Config tunes batch formation.
type Config struct {
	// BatchSize is the maximum number of segments per batch (B).
	BatchSize int

	// BatchTimeout is the maximum wait to fill a batch (T_b).
	BatchTimeout time.Duration

	// QueueCheckInterval is the internal poll granularity (T_p) used while
	// waiting for the queue to grow toward BatchSize.
	QueueCheckInterval time.Duration
}

// Batch is a bounded group of segments submitted to the model adapter in
// one call.
type Batch struct {
	BatchID     string
	Segments    []segment.Segment
	HighCount   int
	NormalCount int
	CreatedAt   time.Time
}

// Stats is a snapshot of the scheduler's running statistics.
type Stats struct {
	TotalBatchesCreated int64
	AvgBatchCreationMs  float64
	AvgQueueWaitMs      float64
	AvgBatchSize        float64
}

// Scheduler forms batches from a Queue and emits them on a channel consumed
// by the executor pool. The formation loop runs in its own goroutine started
// by Run; Batches returns the channel workers should receive from.
type Scheduler struct {
	q   *queue.Queue
	cfg Config

	nextID  atomic.Uint64
	batches chan Batch

	mu                 sync.Mutex
	totalBatches       int64
	sumCreationMs      float64
	sumQueueWaitMs     float64
	sumQueueWaitCount  int64
	sumBatchSize       int64
}

// New creates a Scheduler over q. cfg.BatchSize, cfg.BatchTimeout, and
// cfg.QueueCheckInterval must all be positive.
func New(q *queue.Queue, cfg Config) *Scheduler {
	return &Scheduler{
		q:       q,
		cfg:     cfg,
		batches: make(chan Batch),
	}
}

// Batches returns the channel on which formed batches are emitted. It is
// closed when Run returns.
func (s *Scheduler) Batches() <-chan Batch {
	return s.batches
}

// Run executes the batch-formation loop until ctx is cancelled or the
// underlying queue is closed, then closes the Batches channel. It is meant
// to be run on its own goroutine (the supervisor does so via errgroup).
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.batches)

	for {
		// Wait until the queue has something, or we're done.
		if s.q.Size() == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.q.Done():
				return nil
			case <-s.q.Notify():
			}
		}

		batch, ok := s.formBatch(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if len(batch.Segments) == 0 {
			continue
		}

		select {
		case s.batches <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// formBatch waits until the queue reaches BatchSize or BatchTimeout elapses,
// whichever comes first, then drains up to BatchSize items. ok is false only
// when the scheduler should stop (context cancelled or queue closed) before
// any items were available.
func (s *Scheduler) formBatch(ctx context.Context) (Batch, bool) {
	start := time.Now()

	deadline := time.NewTimer(s.cfg.BatchTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(s.cfg.QueueCheckInterval)
	defer ticker.Stop()

waitLoop:
	for s.q.Size() < s.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return Batch{}, false
		case <-s.q.Done():
			return Batch{}, false
		case <-s.q.Notify():
		case <-ticker.C:
		case <-deadline.C:
			break waitLoop
		}
	}

	items, high, normal := s.q.DrainBatch(s.cfg.BatchSize)
	creation := time.Since(start)

	if len(items) == 0 {
		return Batch{}, true
	}

	now := time.Now()
	batch := Batch{
		BatchID:     s.allocateID(),
		Segments:    items,
		HighCount:   high,
		NormalCount: normal,
		CreatedAt:   now,
	}

	s.recordBatch(creation, items)
	return batch, true
}

func (s *Scheduler) allocateID() string {
	id := s.nextID.Add(1)
	return formatBatchID(id)
}

func formatBatchID(id uint64) string {
	const digits = "0123456789"
	if id == 0 {
		return "batch-0"
	}
	buf := make([]byte, 0, 20)
	for id > 0 {
		buf = append([]byte{digits[id%10]}, buf...)
		id /= 10
	}
	return "batch-" + string(buf)
}

// recordBatch folds one batch's statistics into the running averages.
func (s *Scheduler) recordBatch(creation time.Duration, items []segment.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBatches++
	s.sumCreationMs += float64(creation.Milliseconds())
	s.sumBatchSize += int64(len(items))
}

// RecordQueueWait folds one segment's queue-wait duration into the running
// average. Called by the executor when it marks a segment PROCESSING, using
// the difference between now and the segment's QueuedAt.
func (s *Scheduler) RecordQueueWait(wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sumQueueWaitMs += float64(wait.Milliseconds())
	s.sumQueueWaitCount++
}

// Stats returns a snapshot of the scheduler's running averages.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{TotalBatchesCreated: s.totalBatches}
	if s.totalBatches > 0 {
		st.AvgBatchCreationMs = s.sumCreationMs / float64(s.totalBatches)
		st.AvgBatchSize = float64(s.sumBatchSize) / float64(s.totalBatches)
	}
	if s.sumQueueWaitCount > 0 {
		st.AvgQueueWaitMs = s.sumQueueWaitMs / float64(s.sumQueueWaitCount)
	}
	return st
}
