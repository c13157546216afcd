// Package validation runs the four-phase check sequence against a produced
// artifact and maps the resulting scores to a disposition. Both the engine
// and the gate are pure functions over their inputs and a frozen criteria
// snapshot.
package validation

import (
	"go.uber.org/zap"

	"overseer/internal/criteria"
	"overseer/internal/types"
)

// criterionFloor is the per-criterion sub-score below which a criterion is
// reported in failingCriteria.
const criterionFloor = 0.5

// minArtifactLength is the near-empty floor. Artifacts shorter than this
// short-circuit with aggregate 0 and the critical flag set; emptiness cannot
// be meaningfully scored.
const minArtifactLength = 20

// emptyArtifactIssue names the synthetic issue attached to short-circuited
// validations.
const emptyArtifactIssue = "artifact_empty"

// Engine evaluates artifacts against a registry snapshot.
type Engine struct {
	snapshot *criteria.Snapshot
	logger   *zap.Logger
}

// NewEngine builds an engine bound to one snapshot. A request keeps a single
// engine for its whole lifetime so mid-flight registry adjustments never
// change its scores.
func NewEngine(snapshot *criteria.Snapshot, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{snapshot: snapshot, logger: logger}
}

// Validate scores an artifact for a category. Deterministic: identical
// (artifact, category, snapshot version) always yields identical scores.
func (e *Engine) Validate(artifact string, category types.TaskCategory, req types.Request) *types.ValidationResult {
	spec := e.snapshot.CriteriaFor(category)

	if isNearEmpty(artifact) {
		return emptyResult()
	}

	result := &types.ValidationResult{}
	for _, phase := range types.OrderedPhases() {
		ps := types.PhaseScore{Phase: phase}
		for _, c := range spec.Criteria {
			if c.Phase != phase {
				continue
			}
			score := clamp01(c.Evaluate(artifact, req))
			ps.Score += c.Weight * score
			if score < criterionFloor {
				ps.FailingCriteria = append(ps.FailingCriteria, c.Name)
				result.Issues = append(result.Issues, types.Issue{
					Criterion: c.Name,
					Phase:     phase,
					Score:     score,
					Critical:  c.Critical,
				})
				if c.Critical {
					result.Critical = true
				}
			}
		}
		ps.Score = clamp01(ps.Score)
		result.Phases = append(result.Phases, ps)
		result.Aggregate += spec.PhaseWeights[phase] * ps.Score
	}
	result.Aggregate = clamp01(result.Aggregate)

	e.logger.Debug("validated artifact",
		zap.String("category", string(category)),
		zap.Float64("aggregate", result.Aggregate),
		zap.Bool("critical", result.Critical),
		zap.Int("issues", len(result.Issues)))

	return result
}

// SnapshotVersion reports the registry version this engine scores against.
func (e *Engine) SnapshotVersion() int {
	return e.snapshot.Version()
}

// Thresholds exposes the category thresholds from the bound snapshot.
func (e *Engine) Thresholds(category types.TaskCategory) criteria.Thresholds {
	return e.snapshot.ThresholdsFor(category)
}

func isNearEmpty(artifact string) bool {
	n := 0
	for _, r := range artifact {
		if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
			n++
			if n >= minArtifactLength {
				return false
			}
		}
	}
	return true
}

func emptyResult() *types.ValidationResult {
	result := &types.ValidationResult{
		Aggregate: 0,
		Critical:  true,
		Issues: []types.Issue{
			{Criterion: emptyArtifactIssue, Phase: types.PhaseCompleteness, Score: 0, Critical: true},
		},
	}
	for _, phase := range types.OrderedPhases() {
		result.Phases = append(result.Phases, types.PhaseScore{
			Phase:           phase,
			Score:           0,
			FailingCriteria: []string{emptyArtifactIssue},
		})
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
