package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/streamxcribe/pipeline/pkg/modeladapter"
)

// ErrAdapterNotRegistered is returned by Create when no factory has been
// registered under the requested adapter kind.
var ErrAdapterNotRegistered = errors.New("config: adapter kind not registered")

// Registry maps model adapter kind names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]func(ModelAdapterConfig) (modeladapter.Adapter, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]func(ModelAdapterConfig) (modeladapter.Adapter, error)),
	}
}

// Register registers an adapter factory under kind. Subsequent calls with
// the same kind overwrite the previous registration.
func (r *Registry) Register(kind string, factory func(ModelAdapterConfig) (modeladapter.Adapter, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[kind] = factory
}

// Create instantiates a model adapter using the factory registered under
// entry.Kind. Returns [ErrAdapterNotRegistered] if no factory was
// registered for that kind.
func (r *Registry) Create(entry ModelAdapterConfig) (modeladapter.Adapter, error) {
	r.mu.RLock()
	factory, ok := r.adapters[entry.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAdapterNotRegistered, entry.Kind)
	}
	return factory(entry)
}
