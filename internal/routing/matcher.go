// Package routing decides whether a request should be delegated to the
// worker and which task category it belongs to. It combines pattern-based
// classification with a deterministic cost estimate; no learned models.
package routing

import (
	"regexp"
	"sort"
	"strings"

	"overseer/internal/types"
)

// =============================================================================
// TRIGGER MATCHER
// =============================================================================
// Evaluates a request against categorized pattern tables. Matching is
// case-insensitive and order-independent; a request may match multiple
// categories. Ties are broken by category priority.

// Match pairs a category with the pattern text that triggered it.
type Match struct {
	Category types.TaskCategory
	Pattern  string
}

// Matcher classifies request text against fixed per-category pattern sets.
type Matcher struct {
	table []categoryPatterns
}

type categoryPatterns struct {
	category types.TaskCategory
	patterns []*regexp.Regexp
	keywords []string
}

// Category pattern tables. Structural patterns catch phrasing; keywords catch
// bare topic mentions. All matching is done on the lowercased input.
var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)implement\s+(a\s+)?(full|complete|entire|whole|new)?\s*(feature|function|module|service|endpoint|parser|client|server)`),
		regexp.MustCompile(`(?i)(write|create|build|generate)\s+(a\s+)?(program|script|function|class|api|cli|library|tool)`),
		regexp.MustCompile(`(?i)refactor\s+`),
		regexp.MustCompile(`(?i)add\s+(unit\s+)?tests?\s+for`),
	}
	codeKeywords = []string{"implement complete", "write code", "code up", "scaffold"}

	debugPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)debug\s+.*\b(error|failure|crash|panic|bug)\b`),
		regexp.MustCompile(`(?i)(fix|diagnose|troubleshoot)\s+(the\s+|this\s+)?(bug|error|failure|crash|issue|exception)`),
		regexp.MustCompile(`(?i)why\s+(is|does|do)\s+.*(fail|crash|hang|error)`),
		regexp.MustCompile(`(?i)(stack\s*trace|segfault|race\s+condition|deadlock)`),
	}
	debugKeywords = []string{"root cause", "stacktrace"}

	researchPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)survey\s+`),
		regexp.MustCompile(`(?i)(research|investigate|review)\s+(recent\s+)?(papers?|literature|approaches|techniques|libraries)`),
		regexp.MustCompile(`(?i)compare\s+.+\s+(approaches|frameworks|algorithms|databases|options)`),
		regexp.MustCompile(`(?i)state\s+of\s+the\s+art`),
		regexp.MustCompile(`(?i)comprehensive\s+(analysis|overview|study)`),
	}
	researchKeywords = []string{"literature review", "deep dive"}

	reportPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(write|produce|prepare|draft)\s+(a\s+)?(report|summary|postmortem|changelog|release\s+notes)`),
		regexp.MustCompile(`(?i)document\s+(the|this|our)\s+`),
		regexp.MustCompile(`(?i)summari[sz]e\s+`),
	}
	reportKeywords = []string{"status report", "write up"}
)

// NewMatcher builds the matcher with the fixed category tables.
func NewMatcher() *Matcher {
	return &Matcher{
		table: []categoryPatterns{
			{category: types.CategoryCode, patterns: codePatterns, keywords: codeKeywords},
			{category: types.CategoryDebug, patterns: debugPatterns, keywords: debugKeywords},
			{category: types.CategoryResearch, patterns: researchPatterns, keywords: researchKeywords},
			{category: types.CategoryReport, patterns: reportPatterns, keywords: reportKeywords},
		},
	}
}

// Classify evaluates text against every category table and returns all
// matches, ordered by category priority. An empty result means the caller
// must treat the request as generic. No side effects.
func (m *Matcher) Classify(text string) []Match {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	var matches []Match
	for _, entry := range m.table {
		if pat, ok := firstMatch(lower, entry); ok {
			matches = append(matches, Match{Category: entry.category, Pattern: pat})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Category.Priority() > matches[j].Category.Priority()
	})
	return matches
}

// Primary returns the highest-priority matched category, or generic when
// nothing matched.
func Primary(matches []Match) types.TaskCategory {
	if len(matches) == 0 {
		return types.CategoryGeneric
	}
	return matches[0].Category
}

func firstMatch(lower string, entry categoryPatterns) (string, bool) {
	for _, kw := range entry.keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	for _, p := range entry.patterns {
		if p.MatchString(lower) {
			return p.String(), true
		}
	}
	return "", false
}
