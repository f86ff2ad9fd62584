// Package registry holds the ordered catalog of signal sources.
package registry

import (
	"fmt"
	"maps"
	"sync"

	"github.com/xkilldash9x/dialtone/api/schemas"
)

// Registry is an ordered, lookup-only catalog of SourceSpecs. Registration
// order is preserved so tier selection is reproducible.
type Registry struct {
	mu    sync.RWMutex
	specs []schemas.SourceSpec
	index map[string]int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// NewWithSpecs registers specs in order.
func NewWithSpecs(specs ...schemas.SourceSpec) (*Registry, error) {
	r := New()
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends spec. Duplicate IDs and malformed specs are rejected.
func (r *Registry) Register(spec schemas.SourceSpec) error {
	if err := Validate(spec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[spec.ID]; exists {
		return fmt.Errorf("source %q is already registered", spec.ID)
	}
	r.index[spec.ID] = len(r.specs)
	r.specs = append(r.specs, clone(spec))
	return nil
}

// Replace swaps the source with the same ID in place, keeping its position.
func (r *Registry) Replace(spec schemas.SourceSpec) error {
	if err := Validate(spec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, exists := r.index[spec.ID]
	if !exists {
		return fmt.Errorf("source %q is not registered", spec.ID)
	}
	r.specs[i] = clone(spec)
	return nil
}

// Remove drops a source, preserving the order of the rest.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, exists := r.index[id]
	if !exists {
		return false
	}
	r.specs = append(r.specs[:i], r.specs[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.specs); j++ {
		r.index[r.specs[j].ID] = j
	}
	return true
}

// ForTier returns every spec with spec.Tier <= t, in registration order.
func (r *Registry) ForTier(t schemas.Tier) []schemas.SourceSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.SourceSpec, 0, len(r.specs))
	for _, s := range r.specs {
		if t.Includes(s.Tier) {
			out = append(out, clone(s))
		}
	}
	return out
}

// Get looks up a spec by ID.
func (r *Registry) Get(id string) (schemas.SourceSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return schemas.SourceSpec{}, false
	}
	return clone(r.specs[i]), true
}

// All returns every spec in registration order.
func (r *Registry) All() []schemas.SourceSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schemas.SourceSpec, len(r.specs))
	for i, s := range r.specs {
		out[i] = clone(s)
	}
	return out
}

// Trust maps source ID to its declared trust weight.
func (r *Registry) Trust() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.specs))
	for _, s := range r.specs {
		out[s.ID] = s.Trust
	}
	return out
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// Validate checks a spec for structural problems.
func Validate(spec schemas.SourceSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if !spec.Category.Valid() {
		return fmt.Errorf("source %q: unknown category %q", spec.ID, spec.Category)
	}
	if !spec.Tier.Valid() {
		return fmt.Errorf("source %q: invalid tier %d", spec.ID, int(spec.Tier))
	}
	if spec.Trust < 0 || spec.Trust > 1 {
		return fmt.Errorf("source %q: trust %.2f outside [0,1]", spec.ID, spec.Trust)
	}
	if spec.RateLimit < 0 {
		return fmt.Errorf("source %q: rate limit must not be negative", spec.ID)
	}
	return nil
}

func clone(s schemas.SourceSpec) schemas.SourceSpec {
	s.Fields = maps.Clone(s.Fields)
	s.Headers = maps.Clone(s.Headers)
	s.Params = maps.Clone(s.Params)
	return s
}
