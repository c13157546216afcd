package validation

import (
	"testing"

	"overseer/internal/criteria"
	"overseer/internal/types"
)

var gateThresholds = criteria.Thresholds{Pass: 0.80, Enhance: 0.60}

func TestDecideThresholdBands(t *testing.T) {
	cases := []struct {
		name      string
		aggregate float64
		want      types.Disposition
	}{
		{"well above pass", 0.95, types.DispositionPass},
		{"exactly pass", 0.80, types.DispositionPass},
		{"just below pass", 0.799, types.DispositionEnhance},
		{"mid band", 0.70, types.DispositionEnhance},
		{"exactly enhance", 0.60, types.DispositionEnhance},
		{"just below enhance", 0.599, types.DispositionRegenerate},
		{"floor", 0.0, types.DispositionRegenerate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &types.ValidationResult{Aggregate: tc.aggregate}
			if got := Decide(result, gateThresholds); got != tc.want {
				t.Errorf("Decide(%.3f) = %s, want %s", tc.aggregate, got, tc.want)
			}
		})
	}
}

// A failed critical criterion forces REGENERATE even when the aggregate is
// far above the pass threshold.
func TestDecideCriticalNeverPasses(t *testing.T) {
	for _, aggregate := range []float64{0.9, 0.99, 1.0} {
		result := &types.ValidationResult{
			Aggregate: aggregate,
			Critical:  true,
			Issues: []types.Issue{
				{Criterion: criteria.CritCitationPlausib, Phase: types.PhaseCorrectness, Score: 0, Critical: true},
			},
		}
		if got := Decide(result, gateThresholds); got != types.DispositionRegenerate {
			t.Errorf("critical result at %.2f decided %s, want REGENERATE", aggregate, got)
		}
	}
}

// Raising the aggregate with the thresholds fixed never downgrades the
// disposition.
func TestDecideMonotonic(t *testing.T) {
	rank := map[types.Disposition]int{
		types.DispositionRegenerate: 0,
		types.DispositionEnhance:    1,
		types.DispositionPass:       2,
	}
	prev := -1
	for a := 0.0; a <= 1.0; a += 0.01 {
		got := Decide(&types.ValidationResult{Aggregate: a}, gateThresholds)
		if rank[got] < prev {
			t.Fatalf("disposition downgraded at aggregate %.2f: %s", a, got)
		}
		prev = rank[got]
	}
}
