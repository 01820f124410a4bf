// Package taskstore holds the in-memory state for audio tasks and their
// constituent segments: status, timestamps, and terminal results. It is the
// single source of truth the dispatcher writes into and the HTTP surface
// reads from.
package taskstore

import (
	"errors"
	"sync"
	"time"

	"github.com/streamxcribe/pipeline/pkg/segment"
)

// SegmentStatus is the lifecycle state of one segment.
type SegmentStatus int

const (
	SegmentCreated SegmentStatus = iota
	SegmentQueued
	SegmentProcessing
	SegmentCompleted
	SegmentFailed
)

func (s SegmentStatus) String() string {
	switch s {
	case SegmentCreated:
		return "CREATED"
	case SegmentQueued:
		return "QUEUED"
	case SegmentProcessing:
		return "PROCESSING"
	case SegmentCompleted:
		return "COMPLETED"
	case SegmentFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// AudioStatus is the lifecycle state of one audio task, derived from the
// status of its segments.
type AudioStatus int

const (
	AudioUploaded AudioStatus = iota
	AudioSlicing
	AudioReady
	AudioProcessing
	AudioCompleted
	AudioFailed
)

func (s AudioStatus) String() string {
	switch s {
	case AudioUploaded:
		return "UPLOADED"
	case AudioSlicing:
		return "SLICING"
	case AudioReady:
		return "READY"
	case AudioProcessing:
		return "PROCESSING"
	case AudioCompleted:
		return "COMPLETED"
	case AudioFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrNotFound is returned when a segment or audio id is unknown to the store.
var ErrNotFound = errors.New("taskstore: not found")

// SegmentState is the mutable state of one segment, owned by the store.
type SegmentState struct {
	Segment segment.Segment
	Status  SegmentStatus

	QueuedAt    time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	BatchID     string

	Text            string
	Confidence      float64
	ProcessingTimeS float64
	Error           string
}

// AudioTask tracks the segments belonging to one audio file and the rolled
// up progress across them.
type AudioTask struct {
	AudioID         string
	Status          AudioStatus
	SegmentIDs      []string // ordered by index
	DurationS       float64
	ProgressPercent float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Store is a thread-safe in-memory task store. The zero value is not ready
// to use; construct with New.
type Store struct {
	mu           sync.RWMutex
	audioTasks   map[string]*AudioTask
	segmentTasks map[string]*SegmentState
}

// New returns an initialized Store.
func New() *Store {
	return &Store{
		audioTasks:   make(map[string]*AudioTask),
		segmentTasks: make(map[string]*SegmentState),
	}
}

// CreateAudioTask registers a new audio task in UPLOADED status. If the
// audio id already exists, its existing state is returned unchanged.
func (s *Store) CreateAudioTask(audioID string, durationS float64) *AudioTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.audioTasks[audioID]; ok {
		return existing
	}
	now := time.Now()
	task := &AudioTask{
		AudioID:   audioID,
		Status:    AudioUploaded,
		DurationS: durationS,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.audioTasks[audioID] = task
	return task
}

// RegisterSegments attaches the given segments (already ordered by index) to
// their parent audio task, creating per-segment state in CREATED status, and
// advances the audio task to READY.
func (s *Store) RegisterSegments(audioID string, segments []segment.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.audioTasks[audioID]
	if !ok {
		task = &AudioTask{AudioID: audioID, CreatedAt: time.Now()}
		s.audioTasks[audioID] = task
	}

	ids := make([]string, 0, len(segments))
	for _, seg := range segments {
		s.segmentTasks[seg.SegmentID] = &SegmentState{
			Segment: seg,
			Status:  SegmentCreated,
		}
		ids = append(ids, seg.SegmentID)
	}
	task.SegmentIDs = ids
	task.Status = AudioReady
	task.UpdatedAt = time.Now()
}

// MarkQueued transitions a segment from CREATED to QUEUED, recording
// QueuedAt. Called by Pipeline.SubmitSegment after successful admission.
func (s *Store) MarkQueued(segmentID string, queuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.segmentTasks[segmentID]
	if !ok {
		return ErrNotFound
	}
	st.Status = SegmentQueued
	st.QueuedAt = queuedAt

	if task, ok := s.audioTasks[st.Segment.AudioID]; ok {
		task.Status = AudioProcessing
		task.UpdatedAt = queuedAt
	}
	return nil
}

// MarkProcessing transitions a segment to PROCESSING, recording StartedAt
// and the owning batch id. Called by an executor worker before invoking the
// model adapter.
func (s *Store) MarkProcessing(segmentID, batchID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.segmentTasks[segmentID]
	if !ok {
		return ErrNotFound
	}
	st.Status = SegmentProcessing
	st.BatchID = batchID
	st.StartedAt = startedAt
	return nil
}

// CompleteSegment transitions a segment to COMPLETED with its result, then
// rolls up the parent audio task's status and progress. Returns ErrNotFound
// if segmentID is unknown.
func (s *Store) CompleteSegment(segmentID, text string, confidence, processingTimeS float64, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.segmentTasks[segmentID]
	if !ok {
		return ErrNotFound
	}
	st.Status = SegmentCompleted
	st.Text = text
	st.Confidence = confidence
	st.ProcessingTimeS = processingTimeS
	st.FinishedAt = finishedAt

	s.rollupLocked(st.Segment.AudioID)
	return nil
}

// FailSegment transitions a segment to FAILED with the given error, then
// rolls up the parent audio task.
func (s *Store) FailSegment(segmentID, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.segmentTasks[segmentID]
	if !ok {
		return ErrNotFound
	}
	st.Status = SegmentFailed
	st.Error = errMsg
	st.FinishedAt = finishedAt

	s.rollupLocked(st.Segment.AudioID)
	return nil
}

// rollupLocked recomputes an audio task's progress and, once every segment
// is terminal, its final status. Must be called with s.mu held.
//
// The parent audio becomes COMPLETED once every segment has reached a
// terminal state (COMPLETED or FAILED); it becomes FAILED only if every
// segment FAILED. A mix of COMPLETED and FAILED siblings still rolls up to
// COMPLETED — partial failure is not audio-level failure.
func (s *Store) rollupLocked(audioID string) {
	task, ok := s.audioTasks[audioID]
	if !ok {
		return
	}

	var completed, failed, terminal int
	for _, id := range task.SegmentIDs {
		st, ok := s.segmentTasks[id]
		if !ok {
			continue
		}
		switch st.Status {
		case SegmentCompleted:
			completed++
			terminal++
		case SegmentFailed:
			failed++
			terminal++
		}
	}

	total := len(task.SegmentIDs)
	if total > 0 {
		task.ProgressPercent = 100 * float64(completed) / float64(total)
	}
	task.UpdatedAt = time.Now()

	if total > 0 && terminal == total {
		if failed == total {
			task.Status = AudioFailed
		} else {
			task.Status = AudioCompleted
		}
	}
}

// AudioTask returns a copy of the audio task's current state.
func (s *Store) AudioTask(audioID string) (AudioTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.audioTasks[audioID]
	if !ok {
		return AudioTask{}, false
	}
	return *task, true
}

// SegmentState returns a copy of a segment's current state.
func (s *Store) SegmentState(segmentID string) (SegmentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.segmentTasks[segmentID]
	if !ok {
		return SegmentState{}, false
	}
	return *st, true
}
