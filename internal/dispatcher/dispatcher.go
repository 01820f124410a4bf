// Package dispatcher fans out per-segment results to observers as soon as
// they finish, tracks them for later lookup, and evicts old entries.
//
// First segments are dispatched before the rest of a batch, strictly
// sequentially within one Dispatch call. The Python source dispatched firsts
// and the remainder concurrently via asyncio.gather, which does not actually
// guarantee the ordering its own comments claimed; dispatching sequentially
// here is what makes the ordering real.
package dispatcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamxcribe/pipeline/internal/executor"
)

// Result is one segment's terminal outcome, as seen by an Observer or a
// lookup call.
type Result struct {
	SegmentID  string
	AudioID    string
	Index      int
	IsFirst    bool
	BatchID    string
	Ok         bool
	Text       string
	Confidence float64
	Err        string
	FinishedAt time.Time
}

// Observer receives segment results as they are dispatched.
type Observer interface {
	// OnFirst is called once per audio, for its first segment (IsFirst)
	// when that segment is dispatched.
	OnFirst(Result)
	// OnAny is called for every segment, including the first.
	OnAny(Result)
}

// Stats is a snapshot of the dispatcher's running counters.
type Stats struct {
	TotalDispatched  int64
	FirstDispatched  int64
	NormalDispatched int64
	PendingFirsts    int
	TotalCompleted   int
}

// Dispatcher tracks dispatched results and notifies observers.
type Dispatcher struct {
	mu           sync.RWMutex
	results      map[string]Result   // segmentID -> result
	firstByAudio map[string]string   // audioID -> segmentID of its first result
	byAudio      map[string][]string // audioID -> segmentIDs seen, in dispatch order

	totalDispatched  int64
	firstDispatched  int64
	normalDispatched int64

	observers []Observer
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{
		results:      make(map[string]Result),
		firstByAudio: make(map[string]string),
		byAudio:      make(map[string][]string),
	}
}

// AddObserver registers o to receive future dispatches. Not safe to call
// concurrently with Dispatch.
func (d *Dispatcher) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// Dispatch records every result in results and notifies observers: first
// segments before the rest, sequentially, within this single call.
func (d *Dispatcher) Dispatch(batchID string, results []executor.SegmentResult) {
	var firsts, rest []executor.SegmentResult
	for _, r := range results {
		if r.Segment.IsFirst {
			firsts = append(firsts, r)
		} else {
			rest = append(rest, r)
		}
	}

	for _, r := range firsts {
		d.dispatchOne(batchID, r)
	}
	for _, r := range rest {
		d.dispatchOne(batchID, r)
	}

	d.mu.Lock()
	d.totalDispatched += int64(len(results))
	d.firstDispatched += int64(len(firsts))
	d.normalDispatched += int64(len(rest))
	d.mu.Unlock()
}

func (d *Dispatcher) dispatchOne(batchID string, r executor.SegmentResult) {
	result := toResult(batchID, r)

	d.mu.Lock()
	d.results[result.SegmentID] = result
	d.byAudio[result.AudioID] = append(d.byAudio[result.AudioID], result.SegmentID)
	_, hasFirst := d.firstByAudio[result.AudioID]
	if !hasFirst && result.IsFirst {
		d.firstByAudio[result.AudioID] = result.SegmentID
	}
	d.mu.Unlock()

	notify := func(call func(Result)) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("dispatcher: observer panicked", "segment_id", result.SegmentID, "panic", rec)
			}
		}()
		call(result)
	}
	if !hasFirst && result.IsFirst {
		for _, o := range d.observers {
			notify(o.OnFirst)
		}
	}
	for _, o := range d.observers {
		notify(o.OnAny)
	}
}

func toResult(batchID string, r executor.SegmentResult) Result {
	out := Result{
		SegmentID:  r.Segment.SegmentID,
		AudioID:    r.Segment.AudioID,
		Index:      r.Segment.Index,
		IsFirst:    r.Segment.IsFirst,
		BatchID:    batchID,
		Ok:         r.Item.Ok,
		FinishedAt: r.FinishedAt,
	}
	if r.Item.Ok {
		out.Text = r.Item.Success.Text
		out.Confidence = r.Item.Success.Confidence
	} else if r.Item.Failure.Err != nil {
		out.Err = r.Item.Failure.Err.Error()
	}
	return out
}

// Get returns the result for one segment, if it has been dispatched.
func (d *Dispatcher) Get(segmentID string) (Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.results[segmentID]
	return r, ok
}

// GetFirst returns the result of one audio's first segment (IsFirst), if it
// has been dispatched yet.
func (d *Dispatcher) GetFirst(audioID string) (Result, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.firstByAudio[audioID]
	if !ok {
		return Result{}, false
	}
	r, ok := d.results[id]
	return r, ok
}

// ListByAudio returns every dispatched result for one audio, sorted by
// segment index.
func (d *Dispatcher) ListByAudio(audioID string) []Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.byAudio[audioID]
	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		if r, ok := d.results[id]; ok {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Stats returns a snapshot of the dispatcher's running counters.
// PendingFirsts and TotalCompleted are named after the original source's
// get_statistics() output, which counts first_segment_results and
// completed_results map sizes under those keys — point-in-time counts of
// what the dispatcher currently holds, not cumulative totals.
func (d *Dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{
		TotalDispatched:  d.totalDispatched,
		FirstDispatched:  d.firstDispatched,
		NormalDispatched: d.normalDispatched,
		PendingFirsts:    len(d.firstByAudio),
		TotalCompleted:   len(d.results),
	}
}

// EvictOlderThan removes every result whose FinishedAt is before cutoff,
// along with its audio-level bookkeeping once an audio has no surviving
// results left. Unlike the eviction check the Python source used
// (which compared against a "created_at" attribute no Python result object
// actually defined, so it never fired), FinishedAt is a real, always-set
// timestamp.
func (d *Dispatcher) EvictOlderThan(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	for audioID, ids := range d.byAudio {
		kept := ids[:0:0]
		for _, id := range ids {
			r, ok := d.results[id]
			if !ok {
				continue
			}
			if r.FinishedAt.Before(cutoff) {
				delete(d.results, id)
				evicted++
				if d.firstByAudio[audioID] == id {
					delete(d.firstByAudio, audioID)
				}
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(d.byAudio, audioID)
		} else {
			d.byAudio[audioID] = kept
		}
	}
	return evicted
}
