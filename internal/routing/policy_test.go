package routing

import (
	"strings"
	"testing"

	"overseer/internal/types"
)

func TestEstimateCostEmpty(t *testing.T) {
	if got := EstimateCost("", nil); got != 0 {
		t.Errorf("EstimateCost(\"\") = %d, want 0", got)
	}
	if got := EstimateCost("   ", map[string]string{}); got != 0 {
		t.Errorf("EstimateCost(whitespace) = %d, want 0", got)
	}
}

func TestEstimateCostMonotonic(t *testing.T) {
	small := EstimateCost("short request", nil)
	large := EstimateCost("short request", map[string]string{"file": strings.Repeat("x", 4000)})
	if large <= small {
		t.Errorf("cost should grow with context: small=%d large=%d", small, large)
	}
}

func TestEstimateCostCompoundBonus(t *testing.T) {
	plain := EstimateCost("do the thing please ok", nil)
	compound := EstimateCost("do this and that and more.", nil)
	// Lengths are close; the repeated-and bonus must dominate.
	if compound <= plain {
		t.Errorf("compound request should cost more: plain=%d compound=%d", plain, compound)
	}
}

func TestEstimateCostDeterministic(t *testing.T) {
	ctx := map[string]string{"a": "alpha", "b": "beta"}
	first := EstimateCost("list one, two, and three and four", ctx)
	for i := 0; i < 5; i++ {
		if got := EstimateCost("list one, two, and three and four", ctx); got != first {
			t.Fatalf("EstimateCost not deterministic: %d != %d", got, first)
		}
	}
}

// Zero cost and empty trigger set must never delegate.
func TestDecideZeroCostNeverDelegates(t *testing.T) {
	p := NewPolicy(nil, nil)
	d := p.Decide("", nil)
	if d.ShouldDelegate {
		t.Error("empty request must not delegate")
	}
	if d.Category != types.CategoryGeneric {
		t.Errorf("category = %s, want generic", d.Category)
	}
	if d.EstimatedCost != 0 {
		t.Errorf("cost = %d, want 0", d.EstimatedCost)
	}
}

// Scenario: a short factual question stays local.
func TestDecideSimpleQuestionStaysLocal(t *testing.T) {
	p := NewPolicy(nil, nil)
	d := p.Decide("What's the difference between BFS and DFS?", nil)
	if d.ShouldDelegate {
		t.Errorf("simple question should not delegate: %+v", d)
	}
	if d.Category != types.CategoryGeneric {
		t.Errorf("category = %s, want generic", d.Category)
	}
	if d.EstimatedCost >= 500 {
		t.Errorf("cost = %d, expected small", d.EstimatedCost)
	}
}

// Scenario: a research request with large attached context delegates.
func TestDecideResearchWithContextDelegates(t *testing.T) {
	p := NewPolicy(nil, nil)
	ctx := map[string]string{"notes.md": strings.Repeat("background material ", 240)} // ~4800 chars
	d := p.Decide("Survey recent papers on approximate nearest neighbor search", ctx)

	if !d.ShouldDelegate {
		t.Fatalf("expected delegation: %+v", d)
	}
	if d.Category != types.CategoryResearch {
		t.Errorf("category = %s, want research", d.Category)
	}
	if d.EstimatedCost <= 1000 {
		t.Errorf("cost = %d, want > 1000", d.EstimatedCost)
	}
	if !hasFactor(d, FactorHighCost) {
		t.Errorf("expected high_cost factor, got %v", d.TriggeredFactors)
	}
}

// A strong category match alone is one weak factor; it must not delegate
// without a second factor.
func TestDecideSingleWeakFactorStaysLocal(t *testing.T) {
	p := NewPolicy(nil, nil)
	d := p.Decide("refactor this", nil)
	if d.Category != types.CategoryCode {
		t.Fatalf("category = %s, want code", d.Category)
	}
	if d.ShouldDelegate {
		t.Errorf("single weak factor must not delegate: %+v", d)
	}
}

// Two weak factors together delegate even below the cost threshold.
func TestDecideTwoWeakFactorsDelegate(t *testing.T) {
	p := NewPolicy(nil, nil)
	d := p.Decide("refactor the session store and add tests for the cache and the pool", nil)
	if d.Category != types.CategoryCode {
		t.Fatalf("category = %s, want code", d.Category)
	}
	if !d.ShouldDelegate {
		t.Errorf("strong_match + compound should delegate: %+v", d)
	}
	if !hasFactor(d, FactorStrongMatch) || !hasFactor(d, FactorCompound) {
		t.Errorf("factors = %v", d.TriggeredFactors)
	}
}

func TestThresholdFallback(t *testing.T) {
	p := NewPolicy(map[types.TaskCategory]int{types.CategoryGeneric: 250}, nil)
	if got := p.Threshold(types.CategoryResearch); got != 250 {
		t.Errorf("missing category should fall back to generic threshold, got %d", got)
	}
}

func hasFactor(d types.DelegationDecision, name string) bool {
	for _, f := range d.TriggeredFactors {
		if f == name {
			return true
		}
	}
	return false
}
