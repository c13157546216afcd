// Package types defines the shared data model for the overseer pipeline:
// task categories, delegation decisions, validation scores, dispositions,
// attempts, and the final pipeline result contract.
package types

import (
	"time"
)

// =============================================================================
// TASK CLASSIFICATION
// =============================================================================

// TaskCategory identifies which criteria set and prompt template apply to a
// request. Assigned once per request; immutable afterwards.
type TaskCategory string

const (
	CategoryCode     TaskCategory = "code"
	CategoryDebug    TaskCategory = "debugging"
	CategoryResearch TaskCategory = "research"
	CategoryReport   TaskCategory = "reporting"
	CategoryGeneric  TaskCategory = "generic"
)

// AllCategories returns every known category in priority order.
func AllCategories() []TaskCategory {
	return []TaskCategory{
		CategoryCode,
		CategoryDebug,
		CategoryResearch,
		CategoryReport,
		CategoryGeneric,
	}
}

// Priority returns the tie-break rank for a category. Higher wins when a
// request matches multiple categories.
func (c TaskCategory) Priority() int {
	switch c {
	case CategoryCode:
		return 5
	case CategoryDebug:
		return 4
	case CategoryResearch:
		return 3
	case CategoryReport:
		return 2
	default:
		return 1
	}
}

// Valid reports whether the category is one of the known variants.
func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryCode, CategoryDebug, CategoryResearch, CategoryReport, CategoryGeneric:
		return true
	}
	return false
}

// Request is a free-text instruction plus optional named context blobs
// (attached file contents, prior output, etc.). Immutable once classified.
type Request struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

// DelegationDecision is the routing verdict for a request.
type DelegationDecision struct {
	ShouldDelegate   bool         `json:"should_delegate"`
	Category         TaskCategory `json:"category"`
	EstimatedCost    int          `json:"estimated_cost"`
	TriggeredFactors []string     `json:"triggered_factors,omitempty"`
}

// =============================================================================
// VALIDATION SCORING
// =============================================================================

// Phase names one of the four validation passes run against an artifact.
type Phase string

const (
	PhaseCompleteness Phase = "completeness"
	PhaseCorrectness  Phase = "correctness"
	PhaseQuality      Phase = "quality"
	PhaseFormat       Phase = "format"
)

// OrderedPhases returns the four phases in evaluation order.
func OrderedPhases() []Phase {
	return []Phase{PhaseCompleteness, PhaseCorrectness, PhaseQuality, PhaseFormat}
}

// PhaseScore is the weighted result of one validation phase.
type PhaseScore struct {
	Phase           Phase    `json:"phase"`
	Score           float64  `json:"score"` // 0.0 - 1.0
	FailingCriteria []string `json:"failing_criteria,omitempty"`
}

// Issue describes a single criterion that scored below its floor.
type Issue struct {
	Criterion string  `json:"criterion"`
	Phase     Phase   `json:"phase"`
	Score     float64 `json:"score"`
	Critical  bool    `json:"critical"`
}

// ValidationResult is the full output of validating one artifact.
type ValidationResult struct {
	Phases    []PhaseScore `json:"phases"`
	Aggregate float64      `json:"aggregate"` // weighted sum of phase scores
	Critical  bool         `json:"critical"`  // any critical criterion failed
	Issues    []Issue      `json:"issues,omitempty"`
}

// PhaseScoreFor returns the score entry for the given phase, if present.
func (r *ValidationResult) PhaseScoreFor(phase Phase) (PhaseScore, bool) {
	for _, ps := range r.Phases {
		if ps.Phase == phase {
			return ps, true
		}
	}
	return PhaseScore{}, false
}

// FailingNames flattens the issue list to criterion names.
func (r *ValidationResult) FailingNames() []string {
	names := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		names = append(names, issue.Criterion)
	}
	return names
}

// =============================================================================
// DISPOSITIONS AND ATTEMPTS
// =============================================================================

// Disposition is the gate's verdict on an artifact. FAILED is terminal and
// only produced by the retry coordinator after exhausting attempts.
type Disposition string

const (
	DispositionPass       Disposition = "PASS"
	DispositionEnhance    Disposition = "ENHANCE"
	DispositionRegenerate Disposition = "REGENERATE"
	DispositionFailed     Disposition = "FAILED"
)

// AttemptKind distinguishes why an attempt ended the way it did.
type AttemptKind string

const (
	AttemptQuality       AttemptKind = "quality"        // scored by the validation engine
	AttemptWorkerFailure AttemptKind = "worker_failure" // worker error or timeout
	AttemptCancelled     AttemptKind = "cancelled"      // request cancelled mid-flight
)

// Attempt records one worker invocation and its verdict. A request owns an
// ordered, append-only sequence of attempts bounded by maxRetries+1.
type Attempt struct {
	Index       int               `json:"index"` // 1-based
	Artifact    string            `json:"artifact,omitempty"`
	Result      *ValidationResult `json:"result,omitempty"`
	Disposition Disposition       `json:"disposition"`
	Kind        AttemptKind       `json:"kind"`
	ErrorDetail string            `json:"error_detail,omitempty"`
}

// =============================================================================
// PIPELINE OUTPUT CONTRACT
// =============================================================================

// PipelineResult is the supervisor's output contract to its caller. The
// caller owns all rendering. FAILED results carry no artifact, only the
// diagnostic history.
type PipelineResult struct {
	RequestID      string             `json:"request_id"`
	Category       TaskCategory       `json:"category"`
	Decision       DelegationDecision `json:"decision"`
	Delegated      bool               `json:"delegated"`
	FinalArtifact  string             `json:"final_artifact,omitempty"`
	Disposition    Disposition        `json:"disposition"` // PASS, ENHANCE, or FAILED
	AggregateScore float64            `json:"aggregate_score"`
	Issues         []Issue            `json:"issues,omitempty"`
	AttemptCount   int                `json:"attempt_count"`
	Attempts       []Attempt          `json:"attempts,omitempty"`
}

// =============================================================================
// LEDGER RECORDS
// =============================================================================

// EntryKind tags what a ledger entry records.
type EntryKind string

const (
	EntryAttempt    EntryKind = "attempt"    // one validated (or failed) attempt
	EntryAdjustment EntryKind = "adjustment" // a criterion weight nudge
)

// LedgerEntry is the durable, append-only record of one decision or outcome.
// Never mutated after append, only aggregated for statistics.
type LedgerEntry struct {
	ID          int64        `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	RequestID   string       `json:"request_id"`
	Attempt     int          `json:"attempt"`
	Category    TaskCategory `json:"category"`
	Score       float64      `json:"score"`
	Disposition Disposition  `json:"disposition"`
	Kind        EntryKind    `json:"kind"`
	AttemptKind AttemptKind  `json:"attempt_kind,omitempty"`
	Issues      []string     `json:"issues,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}
