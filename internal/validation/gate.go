package validation

import (
	"overseer/internal/criteria"
	"overseer/internal/types"
)

// =============================================================================
// QUALITY GATE
// =============================================================================

// Decide maps a validation result to a disposition. Total and deterministic:
//   - a failed critical criterion forces REGENERATE regardless of aggregate
//   - aggregate >= pass            -> PASS
//   - aggregate in [enhance, pass) -> ENHANCE
//   - otherwise                    -> REGENERATE
func Decide(result *types.ValidationResult, th criteria.Thresholds) types.Disposition {
	if result.Critical {
		return types.DispositionRegenerate
	}
	switch {
	case result.Aggregate >= th.Pass:
		return types.DispositionPass
	case result.Aggregate >= th.Enhance:
		return types.DispositionEnhance
	default:
		return types.DispositionRegenerate
	}
}
