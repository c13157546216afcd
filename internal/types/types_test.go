package types

import (
	"testing"
)

func TestCategoryPriorityOrder(t *testing.T) {
	// code > debugging > research > reporting > generic
	order := []TaskCategory{CategoryCode, CategoryDebug, CategoryResearch, CategoryReport, CategoryGeneric}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() <= order[i].Priority() {
			t.Errorf("%s priority %d should exceed %s priority %d",
				order[i-1], order[i-1].Priority(), order[i], order[i].Priority())
		}
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range AllCategories() {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if TaskCategory("bogus").Valid() {
		t.Error("bogus category should be invalid")
	}
}

func TestValidationResultHelpers(t *testing.T) {
	r := &ValidationResult{
		Phases: []PhaseScore{
			{Phase: PhaseCompleteness, Score: 0.4, FailingCriteria: []string{"has_references_section"}},
			{Phase: PhaseCorrectness, Score: 1.0},
		},
		Issues: []Issue{
			{Criterion: "has_references_section", Phase: PhaseCompleteness, Score: 0.0},
		},
	}

	ps, ok := r.PhaseScoreFor(PhaseCompleteness)
	if !ok || ps.Score != 0.4 {
		t.Errorf("PhaseScoreFor(completeness) = %+v, %v", ps, ok)
	}
	if _, ok := r.PhaseScoreFor(PhaseFormat); ok {
		t.Error("PhaseScoreFor(format) should report missing")
	}

	names := r.FailingNames()
	if len(names) != 1 || names[0] != "has_references_section" {
		t.Errorf("FailingNames = %v", names)
	}
}

func TestOrderedPhases(t *testing.T) {
	phases := OrderedPhases()
	if len(phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(phases))
	}
	if phases[0] != PhaseCompleteness || phases[3] != PhaseFormat {
		t.Errorf("unexpected phase order: %v", phases)
	}
}
