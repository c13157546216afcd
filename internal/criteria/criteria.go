// Package criteria holds the per-category weighted checklists the validation
// engine scores artifacts against, plus the pass/enhance thresholds. The
// registry is read-mostly: requests validate against immutable snapshots, and
// the only mutation path is the bounded weight nudge applied between runs.
package criteria

import (
	"fmt"
	"math"

	"overseer/internal/types"
)

// WeightEpsilon is the tolerance for weight-sum validation.
const WeightEpsilon = 1e-6

// EvaluatorFunc scores one criterion against an artifact. Implementations
// must be pure: no I/O, no wall clock, no randomness. The returned value is
// clamped to [0,1] by the engine.
type EvaluatorFunc func(artifact string, req types.Request) float64

// Criterion is one weighted check within a phase. Critical criteria force
// REGENERATE on failure regardless of the aggregate score.
type Criterion struct {
	Name     string
	Phase    types.Phase
	Weight   float64 // (0,1]; weights within a phase sum to 1.0
	Critical bool
	Evaluate EvaluatorFunc
}

// Thresholds are the score boundaries for a category. Scores >= Pass are
// PASS eligible, [Enhance, Pass) maps to ENHANCE, below Enhance REGENERATE.
type Thresholds struct {
	Pass    float64
	Enhance float64
}

// CategorySpec bundles everything the validation engine needs for one
// category: phase weights, the ordered criterion list, and thresholds.
type CategorySpec struct {
	PhaseWeights map[types.Phase]float64
	Criteria     []Criterion
	Thresholds   Thresholds
}

// ConfigError is a fatal configuration problem detected at load time. It is
// never recoverable at request time.
type ConfigError struct {
	Category types.TaskCategory
	Phase    types.Phase
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("criteria config: category %q phase %q: %s", e.Category, e.Phase, e.Reason)
	}
	return fmt.Sprintf("criteria config: category %q: %s", e.Category, e.Reason)
}

// DefaultPhaseWeights are the top-level phase weights shared by all
// categories unless overridden: completeness 30%, correctness 35%,
// quality 20%, format 15%.
func DefaultPhaseWeights() map[types.Phase]float64 {
	return map[types.Phase]float64{
		types.PhaseCompleteness: 0.30,
		types.PhaseCorrectness:  0.35,
		types.PhaseQuality:      0.20,
		types.PhaseFormat:       0.15,
	}
}

// validateSpec enforces the sum-to-1.0 invariants for one category.
func validateSpec(category types.TaskCategory, spec *CategorySpec) error {
	var phaseSum float64
	for _, phase := range types.OrderedPhases() {
		w, ok := spec.PhaseWeights[phase]
		if !ok {
			return &ConfigError{Category: category, Phase: phase, Reason: "missing phase weight"}
		}
		if w <= 0 || w > 1 {
			return &ConfigError{Category: category, Phase: phase, Reason: fmt.Sprintf("phase weight %v out of (0,1]", w)}
		}
		phaseSum += w
	}
	if math.Abs(phaseSum-1.0) > WeightEpsilon {
		return &ConfigError{Category: category, Reason: fmt.Sprintf("phase weights sum to %v, want 1.0", phaseSum)}
	}

	sums := map[types.Phase]float64{}
	counts := map[types.Phase]int{}
	for _, c := range spec.Criteria {
		if c.Weight <= 0 || c.Weight > 1 {
			return &ConfigError{Category: category, Phase: c.Phase, Reason: fmt.Sprintf("criterion %q weight %v out of (0,1]", c.Name, c.Weight)}
		}
		if c.Evaluate == nil {
			return &ConfigError{Category: category, Phase: c.Phase, Reason: fmt.Sprintf("criterion %q has no evaluator", c.Name)}
		}
		sums[c.Phase] += c.Weight
		counts[c.Phase]++
	}
	for _, phase := range types.OrderedPhases() {
		if counts[phase] == 0 {
			return &ConfigError{Category: category, Phase: phase, Reason: "no criteria registered"}
		}
		if math.Abs(sums[phase]-1.0) > WeightEpsilon {
			return &ConfigError{Category: category, Phase: phase, Reason: fmt.Sprintf("criterion weights sum to %v, want 1.0", sums[phase])}
		}
	}

	th := spec.Thresholds
	if th.Pass <= 0 || th.Pass > 1 || th.Enhance <= 0 || th.Enhance >= th.Pass {
		return &ConfigError{Category: category, Reason: fmt.Sprintf("invalid thresholds pass=%v enhance=%v", th.Pass, th.Enhance)}
	}
	return nil
}

func copySpec(spec *CategorySpec) *CategorySpec {
	out := &CategorySpec{
		PhaseWeights: make(map[types.Phase]float64, len(spec.PhaseWeights)),
		Criteria:     make([]Criterion, len(spec.Criteria)),
		Thresholds:   spec.Thresholds,
	}
	for k, v := range spec.PhaseWeights {
		out.PhaseWeights[k] = v
	}
	copy(out.Criteria, spec.Criteria)
	return out
}
