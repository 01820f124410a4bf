// Package mock provides an in-memory mock of [modeladapter.Adapter] for use
// in unit and integration tests.
//
// The mock is safe for concurrent use, records every call, and exposes
// exported fields for configuring return values.
package mock

import (
	"context"
	"sync"

	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

// TranscribeBatchCall records the arguments of a single TranscribeBatch
// invocation.
type TranscribeBatchCall struct {
	Paths []string
}

// Adapter is a mock implementation of [modeladapter.Adapter].
type Adapter struct {
	mu sync.Mutex

	// ReadyResult is returned by IsReady. Defaults to true.
	ReadyResult bool

	// TranscribeFunc, when set, is invoked instead of the default behavior
	// (returning one NewSuccess item per path with DefaultText).
	TranscribeFunc func(paths []string) ([]modeladapter.ItemResult, error)

	// DefaultText is used to build a success item when TranscribeFunc is nil.
	DefaultText string

	// TranscribeBatchCalls records every TranscribeBatch invocation.
	TranscribeBatchCalls []TranscribeBatchCall
}

// New returns a ready-to-use mock adapter that reports success for every
// path with DefaultText as the transcription.
func New() *Adapter {
	return &Adapter{ReadyResult: true, DefaultText: "mock transcription"}
}

// IsReady implements modeladapter.Adapter.
func (a *Adapter) IsReady(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ReadyResult
}

// TranscribeBatch implements modeladapter.Adapter.
func (a *Adapter) TranscribeBatch(_ context.Context, paths []string) ([]modeladapter.ItemResult, error) {
	a.mu.Lock()
	a.TranscribeBatchCalls = append(a.TranscribeBatchCalls, TranscribeBatchCall{Paths: paths})
	fn := a.TranscribeFunc
	defaultText := a.DefaultText
	a.mu.Unlock()

	if fn != nil {
		return fn(paths)
	}

	results := make([]modeladapter.ItemResult, len(paths))
	for i := range paths {
		results[i] = modeladapter.NewSuccess(defaultText, 0.99, 0.001)
	}
	return results, nil
}

// CallCount returns how many times TranscribeBatch has been called.
func (a *Adapter) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.TranscribeBatchCalls)
}
