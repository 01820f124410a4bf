// Package slicer provides a minimal stand-in for the real audio slicing
// collaborator: given an audio file and its duration, it produces an
// ordered list of fixed-length Segment descriptors.
//
// The real slicing algorithm — silence/VAD-aware boundary detection,
// on-disk segment file extraction — is an explicit out-of-scope
// collaborator concern. This stub exists only so the demo HTTP surface has
// something to call; it never decodes audio and always points every
// Segment's FilePath at the original file.
package slicer

import (
	"fmt"

	"github.com/streamxcribe/pipeline/pkg/segment"
)

// DefaultWindowS is the fixed segment length used when none is specified.
const DefaultWindowS = 5.0

// Slice splits an audio file of durationS seconds into fixed-length windows
// of windowS seconds (the last window may be shorter) and returns them as
// ordered Segment descriptors. filePath is carried through unchanged on
// every segment — this stub does not extract per-segment audio files.
func Slice(audioID, filePath string, durationS, windowS float64) []segment.Segment {
	if windowS <= 0 {
		windowS = DefaultWindowS
	}
	if durationS <= 0 {
		return nil
	}

	segments := make([]segment.Segment, 0, int(durationS/windowS)+1)
	idx := 0
	for start := 0.0; start < durationS; start += windowS {
		end := start + windowS
		if end > durationS {
			end = durationS
		}
		segmentID := fmt.Sprintf("%s-seg-%d", audioID, idx)
		segments = append(segments, segment.New(segmentID, audioID, idx, start, end, filePath))
		idx++
	}
	return segments
}
