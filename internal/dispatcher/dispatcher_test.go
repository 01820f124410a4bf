package dispatcher

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/streamxcribe/pipeline/internal/executor"
	"github.com/streamxcribe/pipeline/pkg/modeladapter"
	"github.com/streamxcribe/pipeline/pkg/segment"
)

type recordingObserver struct {
	mu     sync.Mutex
	firsts []Result
	anys   []Result
}

func (o *recordingObserver) OnFirst(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.firsts = append(o.firsts, r)
}

func (o *recordingObserver) OnAny(r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.anys = append(o.anys, r)
}

func segResult(audioID string, index int, isFirst bool, ok bool, finishedAt time.Time) executor.SegmentResult {
	seg := segment.New(fmt.Sprintf("%s-seg-%d", audioID, index), audioID, index, 0, 1, "/tmp/x.wav")
	seg.IsFirst = isFirst
	item := modeladapter.NewSuccess("hello", 0.9, 0.1)
	if !ok {
		item = modeladapter.NewFailure(errBoom)
	}
	return executor.SegmentResult{Segment: seg, Item: item, FinishedAt: finishedAt}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func TestDispatch_FirstsBeforeRest(t *testing.T) {
	d := New()
	obs := &recordingObserver{}
	d.AddObserver(obs)

	now := time.Now()
	first := segResult("a1", 0, true, true, now)
	rest := segResult("a1", 1, false, true, now)

	d.Dispatch("batch-1", []executor.SegmentResult{rest, first})

	if len(obs.anys) != 2 {
		t.Fatalf("len(anys) = %d, want 2", len(obs.anys))
	}
	if !obs.anys[0].IsFirst {
		t.Errorf("first dispatched result should be the IsFirst segment, got %+v", obs.anys[0])
	}
	if len(obs.firsts) != 1 {
		t.Fatalf("len(firsts) = %d, want 1", len(obs.firsts))
	}
}

func TestDispatch_OnFirstCalledOnceEvenWithMultipleSegments(t *testing.T) {
	d := New()
	obs := &recordingObserver{}
	d.AddObserver(obs)

	now := time.Now()
	first := segResult("a1", 0, true, true, now)
	second := segResult("a1", 1, false, true, now)
	third := segResult("a1", 2, false, true, now)

	d.Dispatch("batch-1", []executor.SegmentResult{first, second, third})

	if len(obs.firsts) != 1 {
		t.Fatalf("len(firsts) = %d, want 1", len(obs.firsts))
	}
	if len(obs.anys) != 3 {
		t.Fatalf("len(anys) = %d, want 3", len(obs.anys))
	}
}

func TestGetFirst_ReturnsFirstSegment(t *testing.T) {
	d := New()
	now := time.Now()
	first := segResult("a1", 0, true, true, now)
	d.Dispatch("batch-1", []executor.SegmentResult{first})

	r, ok := d.GetFirst("a1")
	if !ok {
		t.Fatal("expected a first result")
	}
	if r.Index != 0 {
		t.Errorf("Index = %d, want 0", r.Index)
	}
}

func TestGetFirst_NoneYet(t *testing.T) {
	d := New()
	_, ok := d.GetFirst("unknown")
	if ok {
		t.Error("expected no first result for unknown audio")
	}
}

func TestListByAudio_SortsByIndex(t *testing.T) {
	d := New()
	now := time.Now()
	first := segResult("a1", 0, true, true, now)
	second := segResult("a1", 1, false, true, now)

	d.Dispatch("batch-1", []executor.SegmentResult{second, first})

	results := d.ListByAudio("a1")
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Index != 0 {
		t.Errorf("results[0].Index = %d, want 0 (sorted by index)", results[0].Index)
	}
}

func TestDispatch_FailureCarriesErrorText(t *testing.T) {
	d := New()
	now := time.Now()
	failed := segResult("a1", 0, true, false, now)

	d.Dispatch("batch-1", []executor.SegmentResult{failed})

	r, ok := d.Get(failed.Segment.SegmentID)
	if !ok {
		t.Fatal("result not found")
	}
	if r.Ok {
		t.Error("expected Ok=false")
	}
	if r.Err != "boom" {
		t.Errorf("Err = %q, want %q", r.Err, "boom")
	}
}

func TestEvictOlderThan_RemovesStaleResults(t *testing.T) {
	d := New()
	old := segResult("a1", 0, true, true, time.Now().Add(-time.Hour))
	fresh := segResult("a2", 0, true, true, time.Now())

	d.Dispatch("batch-1", []executor.SegmentResult{old, fresh})

	evicted := d.EvictOlderThan(time.Now().Add(-time.Minute))
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}

	if _, ok := d.Get(old.Segment.SegmentID); ok {
		t.Error("old result should have been evicted")
	}
	if _, ok := d.Get(fresh.Segment.SegmentID); !ok {
		t.Error("fresh result should remain")
	}
	if _, ok := d.GetFirst("a1"); ok {
		t.Error("evicted audio's first-result bookkeeping should be cleared")
	}
}

func TestStats_TracksCounters(t *testing.T) {
	d := New()
	now := time.Now()
	first := segResult("a1", 0, true, true, now)
	second := segResult("a1", 1, false, true, now)

	d.Dispatch("batch-1", []executor.SegmentResult{first, second})

	stats := d.Stats()
	if stats.TotalDispatched != 2 {
		t.Errorf("TotalDispatched = %d, want 2", stats.TotalDispatched)
	}
	if stats.FirstDispatched != 1 {
		t.Errorf("FirstDispatched = %d, want 1", stats.FirstDispatched)
	}
	if stats.NormalDispatched != 1 {
		t.Errorf("NormalDispatched = %d, want 1", stats.NormalDispatched)
	}
	if stats.TotalCompleted != 2 {
		t.Errorf("TotalCompleted = %d, want 2", stats.TotalCompleted)
	}
	if stats.PendingFirsts != 1 {
		t.Errorf("PendingFirsts = %d, want 1", stats.PendingFirsts)
	}
}
