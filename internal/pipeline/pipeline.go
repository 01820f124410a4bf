// Package pipeline wires the queue, scheduler, executor pool, dispatcher,
// and task store into one running batch inference pipeline, and exposes the
// Core API surface the HTTP layer sits on top of.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamxcribe/pipeline/internal/dispatcher"
	"github.com/streamxcribe/pipeline/internal/executor"
	"github.com/streamxcribe/pipeline/internal/queue"
	"github.com/streamxcribe/pipeline/internal/scheduler"
	"github.com/streamxcribe/pipeline/internal/taskstore"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
	"github.com/streamxcribe/pipeline/pkg/segment"
)

// Config tunes every stage of the pipeline.
type Config struct {
	MaxQueueSize       int
	BatchSize          int
	BatchTimeout       time.Duration
	QueueCheckInterval time.Duration
	Workers            int
}

// DefaultConfig returns a Config matching the reference parameters used
// throughout the testable-property scenarios: B=4, T_b=200ms, W=1,
// max_queue_size=8.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:       8,
		BatchSize:          4,
		BatchTimeout:       200 * time.Millisecond,
		QueueCheckInterval: 10 * time.Millisecond,
		Workers:            1,
	}
}

// Option is a functional option for New. Used to inject test doubles.
type Option func(*Pipeline)

// WithObserver registers a dispatch observer.
func WithObserver(o dispatcher.Observer) Option {
	return func(p *Pipeline) { p.dispatcher.AddObserver(o) }
}

// Pipeline owns the full lifecycle of the batch inference pipeline: the
// admission queue, the batch scheduler, the executor pool, the result
// dispatcher, and the task store.
//
// The queue, dispatcher, and task store persist across restarts. The
// scheduler and executor pool do not: each owns a batches channel and a
// worker errgroup that are only good for one Run, so Run rebuilds both from
// scratch every time it is called. This is what makes Stop followed by a
// new Run resume processing instead of feeding workers a permanently closed
// channel.
type Pipeline struct {
	cfg     Config
	adapter modeladapter.Adapter

	queue      *queue.Queue
	dispatcher *dispatcher.Dispatcher
	store      *taskstore.Store

	cancel   context.CancelFunc
	runErr   error
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	scheduler *scheduler.Scheduler
	executor  *executor.Pool
}

// New wires a Pipeline over adapter. It does not start any goroutines; call
// Run to start the pipeline.
func New(cfg Config, adapter modeladapter.Adapter, opts ...Option) *Pipeline {
	// ── 1. Task store ────────────────────────────────────────────────────
	store := taskstore.New()

	// ── 2. Admission queue ───────────────────────────────────────────────
	q := queue.New(cfg.MaxQueueSize)

	// ── 3. Result dispatcher ─────────────────────────────────────────────
	disp := dispatcher.New()

	p := &Pipeline{
		cfg:        cfg,
		adapter:    adapter,
		queue:      q,
		dispatcher: disp,
		store:      store,
	}
	p.rebuildComponents()
	for _, o := range opts {
		o(p)
	}
	return p
}

// rebuildComponents creates a fresh scheduler and executor pool bound to the
// pipeline's persistent queue, dispatcher, and task store, replacing
// whatever scheduler/executor were previously installed. Called from New
// and again at the top of every Run.
func (p *Pipeline) rebuildComponents() {
	sched := scheduler.New(p.queue, scheduler.Config{
		BatchSize:          p.cfg.BatchSize,
		BatchTimeout:       p.cfg.BatchTimeout,
		QueueCheckInterval: p.cfg.QueueCheckInterval,
	})
	pool := executor.New(p.cfg.Workers, p.store, p.adapter, p.dispatcher, sched)

	p.mu.Lock()
	p.scheduler = sched
	p.executor = pool
	p.mu.Unlock()
}

// components returns the currently installed scheduler and executor pool.
func (p *Pipeline) components() (*scheduler.Scheduler, *executor.Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler, p.executor
}

// Run starts the scheduler and executor pool goroutines and blocks until ctx
// is cancelled or one of them returns an unexpected error. Call Stop (or
// cancel ctx) to shut down cleanly. Run may be called again after Stop: the
// queue is reopened and a fresh scheduler/executor pool take over, so any
// segments left queued from before the stop are picked back up.
func (p *Pipeline) Run(ctx context.Context) error {
	p.queue.Reopen()
	p.rebuildComponents()
	sched, pool := p.components()

	runCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.stopOnce = sync.Once{}
	p.running = true
	p.startedAt = time.Now()
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		return sched.Run(egCtx)
	})
	eg.Go(func() error {
		return pool.Run(egCtx, sched.Batches())
	})

	err := eg.Wait()
	if err != nil && runCtx.Err() != nil {
		// Cancellation was requested (by Stop or by the parent context); not
		// a real failure.
		return nil
	}
	return err
}

// Stop shuts down the pipeline: it stops accepting queue-notify wakeups and
// cancels the run context, letting the scheduler and executor pool drain
// and return. It does not force-drain segments still sitting in the queue.
// Stop is idempotent per run; calling Run again starts a new stoppable run.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	once := &p.stopOnce
	cancel := p.cancel
	p.mu.Unlock()

	once.Do(func() {
		p.queue.Close()
		if cancel != nil {
			cancel()
		}
	})
}

// SubmitSegment admits a segment to the queue and, if admitted, marks it
// QUEUED in the task store. The caller is expected to have already called
// CreateAudioTask for the owning audio.
func (p *Pipeline) SubmitSegment(seg segment.Segment) (queue.AdmitResult, error) {
	result := p.queue.Admit(seg)
	if result != queue.Admitted {
		return result, nil
	}
	if err := p.store.MarkQueued(seg.SegmentID, time.Now()); err != nil {
		return result, fmt.Errorf("pipeline: mark queued: %w", err)
	}
	return result, nil
}

// CreateAudioTask registers a new audio task and its ordered segments,
// ready to be submitted one at a time via SubmitSegment.
func (p *Pipeline) CreateAudioTask(audioID string, durationS float64, segments []segment.Segment) {
	p.store.CreateAudioTask(audioID, durationS)
	p.store.RegisterSegments(audioID, segments)
}

// AudioStatus returns the current status payload for one audio task.
func (p *Pipeline) AudioStatus(audioID string) (taskstore.AudioTask, bool) {
	return p.store.AudioTask(audioID)
}

// SegmentStatus returns the current state of one segment.
func (p *Pipeline) SegmentStatus(segmentID string) (taskstore.SegmentState, bool) {
	return p.store.SegmentState(segmentID)
}

// FirstResult returns the result of an audio task's first segment
// (IsFirst), if it has been dispatched yet.
func (p *Pipeline) FirstResult(audioID string) (dispatcher.Result, bool) {
	return p.dispatcher.GetFirst(audioID)
}

// Results returns every dispatched result for an audio task, sorted by
// segment index.
func (p *Pipeline) Results(audioID string) []dispatcher.Result {
	return p.dispatcher.ListByAudio(audioID)
}

// EvictResultsOlderThan removes dispatched results older than cutoff,
// bounding dispatcher memory growth over a long-running process.
func (p *Pipeline) EvictResultsOlderThan(cutoff time.Time) int {
	return p.dispatcher.EvictOlderThan(cutoff)
}

// Ready reports whether the pipeline is able to accept work: the model
// adapter reports ready and the queue has not been closed.
func (p *Pipeline) Ready(ctx context.Context) bool {
	select {
	case <-p.queue.Done():
		return false
	default:
	}
	return p.adapter.IsReady(ctx)
}

// Stats aggregates the scheduler's and executor pool's running statistics.
type Stats struct {
	Scheduler scheduler.Stats
	Executor  executor.Stats
	QueueSize int
}

// Stats returns a snapshot of the pipeline's running statistics.
func (p *Pipeline) Stats() Stats {
	sched, pool := p.components()
	return Stats{
		Scheduler: sched.Stats(),
		Executor:  pool.Stats(),
		QueueSize: p.queue.Size(),
	}
}

// QueueStatus is the queue breakdown reported in StatusReport.
type QueueStatus struct {
	High   int `json:"high"`
	Normal int `json:"normal"`
	Total  int `json:"total"`
}

// SchedulerStatus is the scheduler breakdown reported in StatusReport.
type SchedulerStatus struct {
	AvgBatchCreationMs float64 `json:"avg_batch_creation_ms"`
	AvgQueueWaitMs     float64 `json:"avg_queue_wait_ms"`
	AvgBatchSize       float64 `json:"avg_batch_size"`
}

// ExecutorStatus is the executor breakdown reported in StatusReport.
type ExecutorStatus struct {
	TotalBatches  int64   `json:"total_batches"`
	TotalSegments int64   `json:"total_segments"`
	AvgBatchMs    float64 `json:"avg_batch_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// DispatcherStatus is the dispatcher breakdown reported in StatusReport.
type DispatcherStatus struct {
	TotalDispatched  int64 `json:"total_dispatched"`
	FirstDispatched  int64 `json:"first_dispatched"`
	NormalDispatched int64 `json:"normal_dispatched"`
	PendingFirsts    int   `json:"pending_firsts"`
	TotalCompleted   int   `json:"total_completed"`
}

// StatusReport is the stable, observable status payload exposed by the Core
// API's status() call.
type StatusReport struct {
	IsRunning             bool             `json:"is_running"`
	UptimeS               float64          `json:"uptime_s"`
	TotalBatchesCreated   int64            `json:"total_batches_created"`
	TotalBatchesCompleted int64            `json:"total_batches_completed"`
	ActiveWorkers         int              `json:"active_workers"`
	Queue                 QueueStatus      `json:"queue"`
	Scheduler             SchedulerStatus  `json:"scheduler"`
	Executor              ExecutorStatus   `json:"executor"`
	Dispatcher            DispatcherStatus `json:"dispatcher"`
}

// Status returns the full observable status payload.
func (p *Pipeline) Status() StatusReport {
	p.mu.Lock()
	running := p.running
	started := p.startedAt
	p.mu.Unlock()

	var uptime float64
	if running {
		uptime = time.Since(started).Seconds()
	}

	sched, pool := p.components()
	schedStats := sched.Stats()
	execStats := pool.Stats()
	dispStats := p.dispatcher.Stats()

	return StatusReport{
		IsRunning:             running,
		UptimeS:               uptime,
		TotalBatchesCreated:   schedStats.TotalBatchesCreated,
		TotalBatchesCompleted: execStats.TotalBatches,
		ActiveWorkers:         execStats.ActiveWorkers,
		Queue: QueueStatus{
			High:   p.queue.SizeHigh(),
			Normal: p.queue.SizeNormal(),
			Total:  p.queue.Size(),
		},
		Scheduler: SchedulerStatus{
			AvgBatchCreationMs: schedStats.AvgBatchCreationMs,
			AvgQueueWaitMs:     schedStats.AvgQueueWaitMs,
			AvgBatchSize:       schedStats.AvgBatchSize,
		},
		Executor: ExecutorStatus{
			TotalBatches:  execStats.TotalBatches,
			TotalSegments: execStats.TotalSegments,
			AvgBatchMs:    execStats.AvgBatchMs,
			SuccessRate:   execStats.SuccessRate,
		},
		Dispatcher: DispatcherStatus{
			TotalDispatched:  dispStats.TotalDispatched,
			FirstDispatched:  dispStats.FirstDispatched,
			NormalDispatched: dispStats.NormalDispatched,
			PendingFirsts:    dispStats.PendingFirsts,
			TotalCompleted:   dispStats.TotalCompleted,
		},
	}
}
