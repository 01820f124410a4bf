// Package modeladapter defines the capability the executor pool drives: a
// thin wrapper over whatever speech-to-text runtime actually does the
// inference. Concrete implementations (native CGO, HTTP, websocket, mock)
// live in subpackages.
package modeladapter

import "context"

// ItemResult is the outcome of transcribing one file within a batch. Exactly
// one of Success or Failure is meaningful, selected by Ok.
//
// This replaces the loosely-typed dict the original model service returned
// per item with a tagged variant, per the redesign of dynamic result typing.
type ItemResult struct {
	Ok bool

	Success SuccessResult
	Failure FailureResult
}

// SuccessResult carries the transcription output for one file.
type SuccessResult struct {
	Text            string
	Confidence      float64
	ProcessingTimeS float64

	// AudioQualityScore and HasSpeech are informational extras an adapter
	// may populate when its underlying model reports them; they carry no
	// invariant and default to 1.0 / true when the adapter has no opinion.
	AudioQualityScore float64
	HasSpeech         bool
}

// FailureResult carries the reason one file failed to transcribe.
type FailureResult struct {
	Err error
}

// NewSuccess builds an ItemResult in the success state with sensible
// defaults for the informational extras.
func NewSuccess(text string, confidence, processingTimeS float64) ItemResult {
	return ItemResult{
		Ok: true,
		Success: SuccessResult{
			Text:              text,
			Confidence:        confidence,
			ProcessingTimeS:   processingTimeS,
			AudioQualityScore: 1.0,
			HasSpeech:         true,
		},
	}
}

// NewFailure builds an ItemResult in the failure state.
func NewFailure(err error) ItemResult {
	return ItemResult{Failure: FailureResult{Err: err}}
}

// Adapter is the capability the executor pool drives. TranscribeBatch must
// return a slice the same length and order as paths: implementations may
// batch internally or loop per-file, callers must not depend on which.
// Paths that don't exist on disk are reported as a Failure item, not a
// returned error.
type Adapter interface {
	// TranscribeBatch transcribes every file in paths. A returned error
	// indicates the whole batch failed (the model raised); a nil error
	// with per-item Failure entries indicates only those items failed.
	TranscribeBatch(ctx context.Context, paths []string) ([]ItemResult, error)

	// IsReady reports whether the adapter is ready to accept work. The
	// pipeline's Ready check and the health handler call it; neither the
	// scheduler nor the executor pool calls it before TranscribeBatch.
	IsReady(ctx context.Context) bool
}
