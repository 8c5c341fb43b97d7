// ABOUTME: Ordered adapter registry: registration order is detection priority.
// ABOUTME: Each resolution builds a fresh adapter bound to the caller's batch id.
package adapter

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harperreed/vitals/internal/models"
)

// Factory creates an adapter instance for one ingestion batch.
type Factory func(batchID uuid.UUID) Adapter

// SourceInfo describes a registered adapter for listings.
type SourceInfo struct {
	Name        models.Source `json:"name"`
	Description string        `json:"description"`
}

type entry struct {
	info    SourceInfo
	factory Factory
}

// Registry holds adapters in registration order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an adapter factory. Names must be unique.
func (r *Registry) Register(name models.Source, description string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.info.Name == name {
			return fmt.Errorf("adapter %q already registered", name)
		}
	}
	r.entries = append(r.entries, entry{
		info:    SourceInfo{Name: name, Description: description},
		factory: factory,
	})
	return nil
}

// ResolveFor returns the first adapter, in registration order, whose
// detector accepts path.
func (r *Registry) ResolveFor(path string, batchID uuid.UUID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		a := e.factory(batchID)
		if a.Detect(path) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoAdapter, path)
}

// ResolveByName returns the adapter registered under name.
func (r *Registry) ResolveByName(name string, batchID uuid.UUID) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if string(e.info.Name) == name {
			return e.factory(batchID), nil
		}
	}
	return nil, fmt.Errorf("%w named %q", ErrNoAdapter, name)
}

// Names lists registered adapters in priority order.
func (r *Registry) Names() []models.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.Source, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.info.Name
	}
	return names
}

// Sources describes registered adapters in priority order.
func (r *Registry) Sources() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceInfo, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.info
	}
	return out
}

// DefaultRegistry registers the built-in adapters. Fitbit comes first since
// its detector is the most specific about folder layout.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	_ = r.Register(models.SourceFitbit,
		"Fitbit data from Google Takeout (Global Export Data, Sleep Score, AZM, HRV, SpO2, readiness)",
		func(id uuid.UUID) Adapter { return NewFitbit(id, opts) })
	_ = r.Register(models.SourceAppleHealth,
		"Apple Health via Health Auto Export .hae files",
		func(id uuid.UUID) Adapter { return NewAppleHealth(id, opts) })
	_ = r.Register(models.SourceCronometer,
		"Cronometer CSV exports (dailysummary.csv, biometrics.csv)",
		func(id uuid.UUID) Adapter { return NewCronometer(id, opts) })
	return r
}
