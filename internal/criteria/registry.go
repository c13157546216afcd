package criteria

import (
	"fmt"
	"sync"

	"overseer/internal/types"
)

// =============================================================================
// CRITERIA REGISTRY
// =============================================================================

// Registry owns the per-category criterion specs. Reads go through immutable
// snapshots so a weight adjustment never affects an in-progress validation.
type Registry struct {
	mu      sync.RWMutex
	specs   map[types.TaskCategory]*CategorySpec
	version int
}

// NewRegistry builds a registry from the built-in category tables and
// validates every spec. A violated sum-to-1.0 invariant fails here, at load
// time, never at request time.
func NewRegistry() (*Registry, error) {
	specs := defaultSpecs()
	for cat, spec := range specs {
		if err := validateSpec(cat, spec); err != nil {
			return nil, err
		}
	}
	return &Registry{specs: specs, version: 1}, nil
}

// SetThresholds overrides the pass/enhance boundaries for a category.
// Intended for startup configuration only.
func (r *Registry) SetThresholds(category types.TaskCategory, th Thresholds) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[category]
	if !ok {
		return &ConfigError{Category: category, Reason: "unknown category"}
	}
	updated := copySpec(spec)
	updated.Thresholds = th
	if err := validateSpec(category, updated); err != nil {
		return err
	}
	r.specs[category] = updated
	r.version++
	return nil
}

// SetPhaseWeights overrides the top-level phase weighting for a category.
// The weights must still sum to 1.0 within epsilon.
func (r *Registry) SetPhaseWeights(category types.TaskCategory, weights map[types.Phase]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[category]
	if !ok {
		return &ConfigError{Category: category, Reason: "unknown category"}
	}
	updated := copySpec(spec)
	updated.PhaseWeights = make(map[types.Phase]float64, len(weights))
	for k, v := range weights {
		updated.PhaseWeights[k] = v
	}
	if err := validateSpec(category, updated); err != nil {
		return err
	}
	r.specs[category] = updated
	r.version++
	return nil
}

// AdjustWeight nudges one criterion's weight by a relative factor (e.g. 0.10
// for +10%) and renormalizes its phase so the sum-to-1.0 invariant holds.
// Must only be called between requests; in-flight validations keep their
// snapshot.
func (r *Registry) AdjustWeight(category types.TaskCategory, criterionName string, relative float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[category]
	if !ok {
		return &ConfigError{Category: category, Reason: "unknown category"}
	}

	updated := copySpec(spec)
	var phase types.Phase
	found := false
	for i := range updated.Criteria {
		if updated.Criteria[i].Name == criterionName {
			updated.Criteria[i].Weight *= 1 + relative
			phase = updated.Criteria[i].Phase
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("criterion %q not registered for category %q", criterionName, category)
	}

	// Renormalize the affected phase.
	var sum float64
	for i := range updated.Criteria {
		if updated.Criteria[i].Phase == phase {
			sum += updated.Criteria[i].Weight
		}
	}
	for i := range updated.Criteria {
		if updated.Criteria[i].Phase == phase {
			updated.Criteria[i].Weight /= sum
		}
	}

	if err := validateSpec(category, updated); err != nil {
		return err
	}
	r.specs[category] = updated
	r.version++
	return nil
}

// Snapshot returns an immutable copy of the current registry state for one
// request's lifetime.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make(map[types.TaskCategory]*CategorySpec, len(r.specs))
	for cat, spec := range r.specs {
		specs[cat] = copySpec(spec)
	}
	return &Snapshot{specs: specs, version: r.version}
}

// Version returns the current mutation counter.
func (r *Registry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a frozen view of the registry. Safe for concurrent readers.
type Snapshot struct {
	specs   map[types.TaskCategory]*CategorySpec
	version int
}

// CriteriaFor returns the spec for a category, falling back to generic for
// unknown categories.
func (s *Snapshot) CriteriaFor(category types.TaskCategory) *CategorySpec {
	if spec, ok := s.specs[category]; ok {
		return spec
	}
	return s.specs[types.CategoryGeneric]
}

// ThresholdsFor returns the pass/enhance boundaries for a category.
func (s *Snapshot) ThresholdsFor(category types.TaskCategory) Thresholds {
	return s.CriteriaFor(category).Thresholds
}

// Version identifies which registry state this snapshot was taken from.
func (s *Snapshot) Version() int {
	return s.version
}
