package resilience

import (
	"context"

	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

// ModelAdapterFallback implements [modeladapter.Adapter] with automatic
// failover across multiple backing adapters. Each entry has its own circuit
// breaker; when the primary's breaker opens (or a call fails), the next
// healthy adapter is tried. Useful when a deployment runs a fast native
// adapter as primary and an HTTP or websocket adapter as a fallback during a
// native-library outage.
type ModelAdapterFallback struct {
	group *FallbackGroup[modeladapter.Adapter]
}

// Compile-time interface assertion.
var _ modeladapter.Adapter = (*ModelAdapterFallback)(nil)

// NewModelAdapterFallback creates a [ModelAdapterFallback] with primary as the
// preferred adapter.
func NewModelAdapterFallback(primary modeladapter.Adapter, primaryName string, cfg FallbackConfig) *ModelAdapterFallback {
	return &ModelAdapterFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional adapter as a fallback.
func (f *ModelAdapterFallback) AddFallback(name string, adapter modeladapter.Adapter) {
	f.group.AddFallback(name, adapter)
}

// TranscribeBatch dispatches to the first healthy adapter. If the primary's
// circuit is open or its call fails, the next fallback is tried with the
// same paths slice.
func (f *ModelAdapterFallback) TranscribeBatch(ctx context.Context, paths []string) ([]modeladapter.ItemResult, error) {
	return ExecuteWithResult(f.group, func(a modeladapter.Adapter) ([]modeladapter.ItemResult, error) {
		return a.TranscribeBatch(ctx, paths)
	})
}

// IsReady reports whether any entry in the group is ready. A fallback group
// can still accept work as long as one adapter is usable.
func (f *ModelAdapterFallback) IsReady(ctx context.Context) bool {
	for i := range f.group.entries {
		if f.group.entries[i].value.IsReady(ctx) {
			return true
		}
	}
	return false
}

// PrimaryBreakerState returns the circuit breaker state of the primary
// (first-registered) entry, so a health check can report "degraded" — the
// primary's breaker is open and traffic is being served by a fallback —
// distinctly from "down".
func (f *ModelAdapterFallback) PrimaryBreakerState() State {
	return f.group.entries[0].breaker.State()
}
