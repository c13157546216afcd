// Package enhance applies deterministic structural repairs to an artifact
// that scored in the enhance band. Repairs are additive and idempotent:
// running the engine on its own output is a no-op. Content-level failures
// (missing depth, unsafe fixes, fabricated citations) have no mechanical
// repair and are reported as residual.
package enhance

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"overseer/internal/criteria"
	"overseer/internal/types"
)

// Outcome reports what a single enhancement pass did.
type Outcome struct {
	Artifact string
	// Applied lists criteria whose repair changed the artifact.
	Applied []string
	// Residual lists failing criteria the engine has no repair for.
	Residual []string
	Changed  bool
}

// Engine runs the repair table against an artifact.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// repairFunc returns the repaired artifact and whether anything changed.
// Every repair checks its own precondition so a second application is a
// no-op.
type repairFunc func(artifact string) (string, bool)

// repairs is ordered: structural insertions first, whitespace normalization
// last so it cleans up after the others.
var repairs = []struct {
	name  string
	apply repairFunc
}{
	{criteria.CritSummarySect, ensureSummarySection},
	{criteria.CritFindingsSect, ensureFindingsSection},
	{criteria.CritReferencesSect, ensureReferencesSection},
	{criteria.CritCitationFormat, ensureReferencesSection},
	{criteria.CritHeadingHierarchy, demoteHeadingJumps},
	{criteria.CritFencedCode, closeDanglingFence},
	{criteria.CritTrailingSpace, stripTrailingWhitespace},
}

// Enhance applies every repair whose criterion appears in the validation
// issues. Failing criteria without a repair come back in Residual so the
// caller can surface them.
func (e *Engine) Enhance(artifact string, result *types.ValidationResult) Outcome {
	failing := make(map[string]bool, len(result.Issues))
	for _, issue := range result.Issues {
		failing[issue.Criterion] = true
	}

	out := Outcome{Artifact: artifact}
	handled := map[string]bool{}
	for _, r := range repairs {
		if !failing[r.name] {
			continue
		}
		handled[r.name] = true
		fixed, changed := r.apply(out.Artifact)
		if changed {
			out.Artifact = fixed
			out.Applied = append(out.Applied, r.name)
			out.Changed = true
		}
	}
	for _, issue := range result.Issues {
		if !handled[issue.Criterion] {
			out.Residual = append(out.Residual, issue.Criterion)
		}
	}

	e.logger.Debug("enhancement pass",
		zap.Strings("applied", out.Applied),
		zap.Strings("residual", out.Residual),
		zap.Bool("changed", out.Changed))

	return out
}

// =============================================================================
// REPAIRS
// =============================================================================

var (
	headingLinePat = regexp.MustCompile(`^(#{1,6})(\s+.*)$`)
	fenceLinePat   = regexp.MustCompile("^```")
)

func hasHeading(artifact string, titles ...string) bool {
	for _, line := range strings.Split(artifact, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		text := strings.ToLower(strings.TrimLeft(trimmed, "# "))
		for _, title := range titles {
			if strings.HasPrefix(text, title) {
				return true
			}
		}
	}
	return false
}

func ensureSummarySection(artifact string) (string, bool) {
	if hasHeading(artifact, "summary", "overview", "tl;dr") {
		return artifact, false
	}
	return "## Summary\n\n" + artifact, true
}

func ensureFindingsSection(artifact string) (string, bool) {
	if hasHeading(artifact, "findings", "results", "details") {
		return artifact, false
	}
	return strings.TrimRight(artifact, "\n") +
		"\n\n## Findings\n\nDetailed observations appear in the sections above.\n", true
}

func ensureReferencesSection(artifact string) (string, bool) {
	if hasHeading(artifact, "references", "sources", "bibliography") {
		return artifact, false
	}
	return strings.TrimRight(artifact, "\n") +
		"\n\n## References\n\n- Source list pending verification.\n", true
}

// demoteHeadingJumps rewrites heading levels so no heading sits more than
// one level below its predecessor.
func demoteHeadingJumps(artifact string) (string, bool) {
	lines := strings.Split(artifact, "\n")
	prev := 0
	changed := false
	inFence := false
	for i, line := range lines {
		if fenceLinePat.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingLinePat.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		if prev > 0 && level > prev+1 {
			level = prev + 1
			lines[i] = strings.Repeat("#", level) + m[2]
			changed = true
		}
		prev = level
	}
	if !changed {
		return artifact, false
	}
	return strings.Join(lines, "\n"), true
}

// closeDanglingFence appends a closing fence when the fence count is odd.
func closeDanglingFence(artifact string) (string, bool) {
	count := 0
	for _, line := range strings.Split(artifact, "\n") {
		if fenceLinePat.MatchString(line) {
			count++
		}
	}
	if count%2 == 0 {
		return artifact, false
	}
	return strings.TrimRight(artifact, "\n") + "\n```\n", true
}

func stripTrailingWhitespace(artifact string) (string, bool) {
	lines := strings.Split(artifact, "\n")
	changed := false
	for i, line := range lines {
		clean := strings.TrimRight(line, " \t")
		if clean != line {
			lines[i] = clean
			changed = true
		}
	}
	fixed := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	if fixed != artifact {
		changed = true
	}
	if !changed {
		return artifact, false
	}
	return fixed, true
}
