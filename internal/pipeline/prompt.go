package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"overseer/internal/types"
)

// =============================================================================
// PROMPT CONSTRUCTION
// =============================================================================

// categoryInstructions prefix the delegated prompt so the worker produces an
// artifact shaped for that category's criteria.
var categoryInstructions = map[types.TaskCategory]string{
	types.CategoryCode: "Produce working code in fenced code blocks with brief usage notes. " +
		"Handle errors explicitly and avoid placeholder stubs.",
	types.CategoryDebug: "Diagnose the problem. State the root cause, how to reproduce it, " +
		"and a concrete fix. Never propose destructive commands.",
	types.CategoryResearch: "Write a structured markdown survey with headings, substantive " +
		"paragraphs, and a References section listing real sources with plausible years.",
	types.CategoryReport: "Write a structured markdown report with a Summary section and a " +
		"Findings section. Keep paragraphs substantive.",
	types.CategoryGeneric: "Answer directly and completely in markdown.",
}

// BuildPrompt renders the first-attempt prompt: category instructions, the
// request text, and any attached context blobs in stable order.
func BuildPrompt(req types.Request, category types.TaskCategory) string {
	var sb strings.Builder
	sb.WriteString(categoryInstructions[category])
	sb.WriteString("\n\n[Request]\n")
	sb.WriteString(req.Text)

	if len(req.Context) > 0 {
		names := make([]string, 0, len(req.Context))
		for name := range req.Context {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "\n\n[Context: %s]\n%s", name, req.Context[name])
		}
	}
	return sb.String()
}

// BuildRetryPrompt augments the base prompt with the full validation report
// of the rejected attempt so the worker can target the exact failures rather
// than regenerate blind.
func BuildRetryPrompt(req types.Request, category types.TaskCategory, attempt int, result *types.ValidationResult) string {
	var sb strings.Builder
	sb.WriteString(BuildPrompt(req, category))

	fmt.Fprintf(&sb, "\n\n[Previous Attempt %d Rejected]\n", attempt)
	if result == nil {
		sb.WriteString("The previous attempt failed before it could be scored. Produce a complete answer.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Aggregate score: %.2f\n", result.Aggregate)
	for _, ps := range result.Phases {
		fmt.Fprintf(&sb, "- %s: %.2f", ps.Phase, ps.Score)
		if len(ps.FailingCriteria) > 0 {
			fmt.Fprintf(&sb, " (failing: %s)", strings.Join(ps.FailingCriteria, ", "))
		}
		sb.WriteString("\n")
	}
	for _, issue := range result.Issues {
		if issue.Critical {
			fmt.Fprintf(&sb, "CRITICAL: %s scored %.2f and must be fixed.\n", issue.Criterion, issue.Score)
		}
	}
	sb.WriteString("Regenerate the full answer and address every failing criterion above.\n")
	return sb.String()
}
