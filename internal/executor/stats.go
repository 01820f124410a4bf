package executor

import (
	"sync"
	"time"
)

// statsAccumulator tracks running totals behind a single mutex, mirroring
// the scheduler's own running-sum approach rather than a sampling window.
type statsAccumulator struct {
	mu sync.Mutex

	active int

	totalBatches  int64
	totalSegments int64
	failedItems   int64
	sumBatchMs    float64
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{}
}

func (s *statsAccumulator) workerStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active++
}

func (s *statsAccumulator) workerStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
}

func (s *statsAccumulator) recordBatch(elapsed time.Duration, result BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBatches++
	s.totalSegments += int64(len(result.Results))
	s.sumBatchMs += float64(elapsed.Milliseconds())

	for _, r := range result.Results {
		if !r.Item.Ok {
			s.failedItems++
		}
	}
}

func (s *statsAccumulator) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalBatches:  s.totalBatches,
		TotalSegments: s.totalSegments,
		ActiveWorkers: s.active,
	}
	if s.totalBatches > 0 {
		st.AvgBatchMs = s.sumBatchMs / float64(s.totalBatches)
	}
	if s.totalSegments > 0 {
		st.SuccessRate = 1.0 - float64(s.failedItems)/float64(s.totalSegments)
	}
	return st
}
