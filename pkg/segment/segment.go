// Package segment defines the shared descriptor types that flow between the
// slicer, the queue, the scheduler, the executor, and the dispatcher. These
// are intentionally minimal data carriers so that none of those packages
// need to import one another.
package segment

// FirstPriority is the priority assigned to a segment whose Index is 0.
const FirstPriority = 10

// NormalPriority is the priority assigned to every other segment.
const NormalPriority = 1

// Segment is an immutable descriptor of one slice of an audio file, produced
// by the slicer collaborator. Once constructed, a Segment's fields never
// change; all mutable state (status, timestamps, results) lives in the task
// store's SegmentState.
type Segment struct {
	// SegmentID uniquely identifies this segment.
	SegmentID string

	// AudioID identifies the parent audio task.
	AudioID string

	// Index is the 0-based position of this segment within its audio,
	// unique within AudioID.
	Index int

	// StartS and EndS are the segment's boundaries in seconds of the
	// source audio. EndS must be strictly greater than StartS.
	StartS float64
	EndS   float64

	// DurationS is EndS - StartS, carried as a field so callers don't
	// need to recompute it.
	DurationS float64

	// FilePath is the on-disk location of this segment's audio, owned and
	// cleaned up by the slicer/task-store collaborators.
	FilePath string

	// Priority is FirstPriority when IsFirst, NormalPriority otherwise.
	Priority int

	// IsFirst is true iff Index == 0.
	IsFirst bool
}

// New constructs a Segment, deriving Priority and IsFirst from index.
func New(segmentID, audioID string, index int, startS, endS float64, filePath string) Segment {
	isFirst := index == 0
	priority := NormalPriority
	if isFirst {
		priority = FirstPriority
	}
	return Segment{
		SegmentID: segmentID,
		AudioID:   audioID,
		Index:     index,
		StartS:    startS,
		EndS:      endS,
		DurationS: endS - startS,
		FilePath:  filePath,
		Priority:  priority,
		IsFirst:   isFirst,
	}
}
