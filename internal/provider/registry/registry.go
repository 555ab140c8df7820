package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/switchboard/internal/domain"
	"github.com/davidbz/switchboard/internal/observability"
)

// Factory constructs the adapter for one provider id.
type Factory func() (domain.Adapter, error)

// slot holds the lazily built adapter of one provider id.
type slot struct {
	once    sync.Once
	factory Factory
	adapter domain.Adapter
	err     error
}

// Registry implements the AdapterRegistry interface. Each adapter is built
// at most once, on first use, and then shared by every later call.
type Registry struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:    sync.RWMutex{},
		slots: make(map[string]*slot),
	}
}

// Register associates a provider id with the factory of its adapter.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if factory == nil {
		return errors.New("factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slots[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.slots[name] = &slot{factory: factory}
	return nil
}

// Get returns the adapter for a provider id, constructing it on first use.
// A failed construction is cached like a successful one.
func (r *Registry) Get(ctx context.Context, name string) (domain.Adapter, error) {
	r.mu.RLock()
	s, exists := r.slots[name]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.UnsupportedProviderError(name)
	}

	s.once.Do(func() {
		observability.FromContext(ctx).Debug("constructing adapter", observability.String("provider", name))
		s.adapter, s.err = s.factory()
		if s.err == nil && s.adapter == nil {
			s.err = fmt.Errorf("factory for provider %s returned no adapter", name)
		}
	})

	return s.adapter, s.err
}

// List returns the registered provider ids in sorted order.
func (r *Registry) List(_ context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.slots))
	for name := range r.slots {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
