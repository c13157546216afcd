package criteria

import (
	"regexp"
	"strings"

	"overseer/internal/types"
)

// =============================================================================
// DEFAULT CATEGORY TABLES
// =============================================================================
// Every criterion evaluator here is a pure function of the artifact text and
// the originating request. Scores are 0..1 sub-scores; the engine applies
// weights and the 0.5 failing floor.

// Criterion names. The enhancement engine keys its repairs off these, so
// they are constants rather than inline literals.
const (
	CritCoversRequest    = "covers_request_terms"
	CritReferencesSect   = "has_references_section"
	CritSufficientDepth  = "sufficient_depth"
	CritCitationPlausib  = "citation_plausibility"
	CritReferencesResolv = "references_resolved"
	CritHeadingStructure = "heading_structure"
	CritProseDensity     = "prose_density"
	CritHeadingHierarchy = "heading_hierarchy"
	CritCitationFormat   = "citation_format"

	CritHasCodeBlock    = "has_code_block"
	CritExplainsUsage   = "explains_usage"
	CritBalancedDelims  = "balanced_delimiters"
	CritNoPlaceholders  = "no_placeholders"
	CritErrorHandling   = "error_handling"
	CritHasComments     = "has_comments"
	CritFencedCode      = "fenced_code"
	CritTrailingSpace   = "trailing_whitespace"

	CritRootCauseSect  = "root_cause_section"
	CritFixProposal    = "fix_proposal"
	CritReproSteps     = "reproduction_steps"
	CritSafeFix        = "safe_fix"
	CritAddressesError = "addresses_error_terms"

	CritSummarySect   = "summary_section"
	CritFindingsSect  = "findings_section"
	CritNoErrorMarker = "no_error_markers"
)

func defaultSpecs() map[types.TaskCategory]*CategorySpec {
	return map[types.TaskCategory]*CategorySpec{
		types.CategoryResearch: {
			PhaseWeights: DefaultPhaseWeights(),
			Thresholds:   Thresholds{Pass: 0.80, Enhance: 0.60},
			Criteria: []Criterion{
				{Name: CritCoversRequest, Phase: types.PhaseCompleteness, Weight: 0.30, Evaluate: coversRequestTerms},
				{Name: CritReferencesSect, Phase: types.PhaseCompleteness, Weight: 0.40, Evaluate: hasSection("references", "sources", "bibliography")},
				{Name: CritSufficientDepth, Phase: types.PhaseCompleteness, Weight: 0.30, Evaluate: minLength(600)},
				{Name: CritCitationPlausib, Phase: types.PhaseCorrectness, Weight: 0.50, Critical: true, Evaluate: citationPlausibility},
				{Name: CritReferencesResolv, Phase: types.PhaseCorrectness, Weight: 0.50, Evaluate: referencesResolved},
				{Name: CritHeadingStructure, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: headingStructure},
				{Name: CritProseDensity, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: proseDensity},
				{Name: CritHeadingHierarchy, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: headingHierarchy},
				{Name: CritCitationFormat, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: citationFormat},
			},
		},
		types.CategoryCode: {
			PhaseWeights: DefaultPhaseWeights(),
			Thresholds:   Thresholds{Pass: 0.85, Enhance: 0.65},
			Criteria: []Criterion{
				{Name: CritHasCodeBlock, Phase: types.PhaseCompleteness, Weight: 0.50, Evaluate: hasCodeBlock},
				{Name: CritCoversRequest, Phase: types.PhaseCompleteness, Weight: 0.30, Evaluate: coversRequestTerms},
				{Name: CritExplainsUsage, Phase: types.PhaseCompleteness, Weight: 0.20, Evaluate: explainsUsage},
				{Name: CritBalancedDelims, Phase: types.PhaseCorrectness, Weight: 0.40, Critical: true, Evaluate: balancedDelimiters},
				{Name: CritNoPlaceholders, Phase: types.PhaseCorrectness, Weight: 0.40, Evaluate: noPlaceholders},
				{Name: CritErrorHandling, Phase: types.PhaseCorrectness, Weight: 0.20, Evaluate: errorHandling},
				{Name: CritHasComments, Phase: types.PhaseQuality, Weight: 0.40, Evaluate: hasComments},
				{Name: CritSufficientDepth, Phase: types.PhaseQuality, Weight: 0.60, Evaluate: minLength(200)},
				{Name: CritFencedCode, Phase: types.PhaseFormat, Weight: 0.60, Evaluate: fencedCode},
				{Name: CritTrailingSpace, Phase: types.PhaseFormat, Weight: 0.40, Evaluate: trailingWhitespaceClean},
			},
		},
		types.CategoryDebug: {
			PhaseWeights: DefaultPhaseWeights(),
			Thresholds:   Thresholds{Pass: 0.80, Enhance: 0.60},
			Criteria: []Criterion{
				{Name: CritRootCauseSect, Phase: types.PhaseCompleteness, Weight: 0.40, Evaluate: mentionsAny("root cause", "caused by", "because")},
				{Name: CritFixProposal, Phase: types.PhaseCompleteness, Weight: 0.40, Evaluate: mentionsAny("fix", "solution", "patch", "resolve")},
				{Name: CritReproSteps, Phase: types.PhaseCompleteness, Weight: 0.20, Evaluate: mentionsAny("reproduce", "steps", "trigger")},
				{Name: CritSafeFix, Phase: types.PhaseCorrectness, Weight: 0.50, Critical: true, Evaluate: safeFix},
				{Name: CritAddressesError, Phase: types.PhaseCorrectness, Weight: 0.50, Evaluate: coversRequestTerms},
				{Name: CritSufficientDepth, Phase: types.PhaseQuality, Weight: 0.60, Evaluate: minLength(300)},
				{Name: CritHeadingStructure, Phase: types.PhaseQuality, Weight: 0.40, Evaluate: headingStructure},
				{Name: CritHeadingHierarchy, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: headingHierarchy},
				{Name: CritTrailingSpace, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: trailingWhitespaceClean},
			},
		},
		types.CategoryReport: {
			PhaseWeights: DefaultPhaseWeights(),
			Thresholds:   Thresholds{Pass: 0.75, Enhance: 0.55},
			Criteria: []Criterion{
				{Name: CritSummarySect, Phase: types.PhaseCompleteness, Weight: 0.40, Evaluate: hasSection("summary", "overview", "tl;dr")},
				{Name: CritFindingsSect, Phase: types.PhaseCompleteness, Weight: 0.30, Evaluate: hasSection("findings", "results", "details")},
				{Name: CritCoversRequest, Phase: types.PhaseCompleteness, Weight: 0.30, Evaluate: coversRequestTerms},
				{Name: CritNoPlaceholders, Phase: types.PhaseCorrectness, Weight: 0.50, Evaluate: noPlaceholders},
				{Name: CritNoErrorMarker, Phase: types.PhaseCorrectness, Weight: 0.50, Evaluate: noErrorMarkers},
				{Name: CritHeadingStructure, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: headingStructure},
				{Name: CritProseDensity, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: proseDensity},
				{Name: CritHeadingHierarchy, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: headingHierarchy},
				{Name: CritTrailingSpace, Phase: types.PhaseFormat, Weight: 0.50, Evaluate: trailingWhitespaceClean},
			},
		},
		types.CategoryGeneric: {
			PhaseWeights: DefaultPhaseWeights(),
			Thresholds:   Thresholds{Pass: 0.70, Enhance: 0.50},
			Criteria: []Criterion{
				{Name: CritCoversRequest, Phase: types.PhaseCompleteness, Weight: 0.60, Evaluate: coversRequestTerms},
				{Name: CritSufficientDepth, Phase: types.PhaseCompleteness, Weight: 0.40, Evaluate: minLength(80)},
				{Name: CritNoPlaceholders, Phase: types.PhaseCorrectness, Weight: 1.00, Evaluate: noPlaceholders},
				{Name: CritHeadingStructure, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: headingStructure},
				{Name: CritProseDensity, Phase: types.PhaseQuality, Weight: 0.50, Evaluate: proseDensity},
				{Name: CritTrailingSpace, Phase: types.PhaseFormat, Weight: 1.00, Evaluate: trailingWhitespaceClean},
			},
		},
	}
}

// =============================================================================
// EVALUATORS
// =============================================================================

var (
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6})\s+\S`)
	fencePattern     = regexp.MustCompile("(?m)^```")
	yearPattern      = regexp.MustCompile(`\((\d{4})\)`)
	inlineRefPattern = regexp.MustCompile(`\[(\d+)\]`)
	refEntryPattern  = regexp.MustCompile(`(?m)^\s*(\[\d+\]|[-*])\s+\S`)
	placeholderPat   = regexp.MustCompile(`(?i)\b(todo|fixme|xxx|placeholder|not implemented|lorem ipsum|fill (?:this|in))\b`)
	errorMarkerPat   = regexp.MustCompile(`(?i)\b(traceback|exception|fatal error|panic:|internal error)\b`)
	dangerousPat     = regexp.MustCompile(`(?i)(rm\s+-rf\s+/|drop\s+table|truncate\s+table|push\s+--force|chmod\s+777|curl[^\n]*\|\s*(?:ba)?sh|:\(\)\s*\{)`)
	errHandlingPat   = regexp.MustCompile(`(?i)(if err != nil|try\s*[:{]|except\s|catch\s*[({]|\.catch\(|rescue\b)`)
	commentPat       = regexp.MustCompile(`(?m)^\s*(//|#|/\*|--)\s*\S`)
	stopWords        = map[string]bool{
		"about": true, "after": true, "before": true, "between": true, "could": true,
		"every": true, "might": true, "other": true, "please": true, "recent": true,
		"should": true, "their": true, "there": true, "these": true, "those": true,
		"using": true, "what's": true, "where": true, "which": true, "while": true,
		"would": true, "write": true,
	}
)

// coversRequestTerms scores the fraction of significant request words (five
// letters or more, stop words excluded) that appear in the artifact.
func coversRequestTerms(artifact string, req types.Request) float64 {
	lowerArtifact := strings.ToLower(artifact)
	var total, covered int
	for _, word := range strings.Fields(strings.ToLower(req.Text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) < 5 || stopWords[word] {
			continue
		}
		total++
		if strings.Contains(lowerArtifact, word) {
			covered++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(covered) / float64(total)
}

// hasSection returns 1.0 when a markdown heading matching any of the given
// titles exists.
func hasSection(titles ...string) EvaluatorFunc {
	return func(artifact string, _ types.Request) float64 {
		for _, line := range strings.Split(artifact, "\n") {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "#") {
				continue
			}
			headingText := strings.ToLower(strings.TrimLeft(trimmed, "# "))
			for _, title := range titles {
				if strings.HasPrefix(headingText, title) {
					return 1.0
				}
			}
		}
		return 0.0
	}
}

// minLength scales linearly up to the target character count.
func minLength(target int) EvaluatorFunc {
	return func(artifact string, _ types.Request) float64 {
		n := len(strings.TrimSpace(artifact))
		if n >= target {
			return 1.0
		}
		return float64(n) / float64(target)
	}
}

// citationPlausibility fails when a parenthesized citation year falls
// outside a sane publication range. Tagged critical: a fabricated citation
// must never pass.
func citationPlausibility(artifact string, _ types.Request) float64 {
	for _, m := range yearPattern.FindAllStringSubmatch(artifact, -1) {
		year := m[1]
		if year < "1900" || year > "2029" {
			return 0.0
		}
	}
	return 1.0
}

// referencesResolved scores the fraction of inline [n] markers that have a
// matching [n] entry later in the document.
func referencesResolved(artifact string, _ types.Request) float64 {
	inline := map[string]bool{}
	for _, m := range inlineRefPattern.FindAllStringSubmatch(artifact, -1) {
		inline[m[1]] = true
	}
	if len(inline) == 0 {
		return 1.0
	}
	resolved := 0
	for n := range inline {
		entry := regexp.MustCompile(`(?m)^\s*\[` + n + `\][:.]?\s+\S`)
		if entry.MatchString(artifact) {
			resolved++
		}
	}
	return float64(resolved) / float64(len(inline))
}

func headingStructure(artifact string, _ types.Request) float64 {
	switch n := len(headingPattern.FindAllString(artifact, -1)); {
	case n >= 2:
		return 1.0
	case n == 1:
		return 0.6
	default:
		return 0.2
	}
}

// proseDensity checks that the document is mostly substantive paragraphs
// rather than fragments.
func proseDensity(artifact string, _ types.Request) float64 {
	paragraphs := 0
	for _, block := range strings.Split(artifact, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, "#") || strings.HasPrefix(block, "```") {
			continue
		}
		if len(strings.Fields(block)) >= 15 {
			paragraphs++
		}
	}
	switch {
	case paragraphs >= 3:
		return 1.0
	case paragraphs == 2:
		return 0.8
	case paragraphs == 1:
		return 0.6
	default:
		return 0.2
	}
}

// headingHierarchy penalizes level jumps of more than one (e.g. # followed
// directly by ###).
func headingHierarchy(artifact string, _ types.Request) float64 {
	prev := 0
	jumps := 0
	for _, m := range headingPattern.FindAllStringSubmatch(artifact, -1) {
		level := len(m[1])
		if prev > 0 && level > prev+1 {
			jumps++
		}
		prev = level
	}
	switch {
	case jumps == 0:
		return 1.0
	case jumps == 1:
		return 0.5
	default:
		return 0.0
	}
}

// citationFormat checks that the references section exists and its entries
// follow a recognizable list format.
func citationFormat(artifact string, req types.Request) float64 {
	if hasSection("references", "sources", "bibliography")(artifact, req) == 0 {
		return 0.0
	}
	section := referencesSection(artifact)
	lines := 0
	formatted := 0
	for _, line := range strings.Split(section, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines++
		if refEntryPattern.MatchString(line) {
			formatted++
		}
	}
	if lines == 0 {
		return 0.5 // header present but empty
	}
	return float64(formatted) / float64(lines)
}

// referencesSection returns the text from the references heading to the next
// heading of the same or shallower level (or EOF).
func referencesSection(artifact string) string {
	lines := strings.Split(artifact, "\n")
	start := -1
	level := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		text := strings.ToLower(strings.TrimLeft(trimmed, "# "))
		if start == -1 && (strings.HasPrefix(text, "references") || strings.HasPrefix(text, "sources") || strings.HasPrefix(text, "bibliography")) {
			start = i
			level = len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			continue
		}
		if start != -1 {
			l := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			if l <= level {
				return strings.Join(lines[start+1:i], "\n")
			}
		}
	}
	if start == -1 {
		return ""
	}
	return strings.Join(lines[start+1:], "\n")
}

func hasCodeBlock(artifact string, _ types.Request) float64 {
	if len(fencePattern.FindAllString(artifact, -1)) >= 2 {
		return 1.0
	}
	return 0.0
}

// explainsUsage wants some prose around the code, not a bare dump.
func explainsUsage(artifact string, _ types.Request) float64 {
	prose := 0
	inFence := false
	for _, line := range strings.Split(artifact, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			prose += len(strings.TrimSpace(line))
		}
	}
	if prose >= 100 {
		return 1.0
	}
	return float64(prose) / 100.0
}

// balancedDelimiters verifies brace/bracket/paren balance inside code
// fences. Tagged critical: an unbalanced snippet is a syntax failure.
func balancedDelimiters(artifact string, _ types.Request) float64 {
	var round, square, curly int
	inFence := false
	for _, line := range strings.Split(artifact, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			continue
		}
		for _, r := range line {
			switch r {
			case '(':
				round++
			case ')':
				round--
			case '[':
				square++
			case ']':
				square--
			case '{':
				curly++
			case '}':
				curly--
			}
		}
	}
	if round == 0 && square == 0 && curly == 0 {
		return 1.0
	}
	return 0.0
}

func noPlaceholders(artifact string, _ types.Request) float64 {
	if placeholderPat.MatchString(artifact) {
		return 0.2
	}
	return 1.0
}

func noErrorMarkers(artifact string, _ types.Request) float64 {
	if errorMarkerPat.MatchString(artifact) {
		return 0.3
	}
	return 1.0
}

func errorHandling(artifact string, _ types.Request) float64 {
	if errHandlingPat.MatchString(artifact) {
		return 1.0
	}
	return 0.4
}

func hasComments(artifact string, _ types.Request) float64 {
	inFence := false
	for _, line := range strings.Split(artifact, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence && commentPat.MatchString(line) {
			return 1.0
		}
	}
	return 0.5
}

// fencedCode checks fences are balanced and present.
func fencedCode(artifact string, _ types.Request) float64 {
	n := len(fencePattern.FindAllString(artifact, -1))
	if n == 0 {
		return 0.0
	}
	if n%2 != 0 {
		return 0.3
	}
	return 1.0
}

func trailingWhitespaceClean(artifact string, _ types.Request) float64 {
	lines := strings.Split(artifact, "\n")
	if len(lines) == 0 {
		return 1.0
	}
	dirty := 0
	for _, line := range lines {
		if line != strings.TrimRight(line, " \t") {
			dirty++
		}
	}
	return 1.0 - float64(dirty)/float64(len(lines))
}

// safeFix fails on destructive commands in a proposed fix. Tagged critical.
func safeFix(artifact string, _ types.Request) float64 {
	if dangerousPat.MatchString(artifact) {
		return 0.0
	}
	return 1.0
}

// mentionsAny returns 1.0 when any keyword appears (case-insensitive).
func mentionsAny(keywords ...string) EvaluatorFunc {
	return func(artifact string, _ types.Request) float64 {
		lower := strings.ToLower(artifact)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return 1.0
			}
		}
		return 0.0
	}
}
