package routing

import (
	"regexp"
	"strings"
)

// =============================================================================
// COMPLEXITY ESTIMATOR
// =============================================================================
// Estimates a token-count style cost signal for a request plus its attached
// context. Pure and deterministic: cost = ceil(chars/4) plus a fixed bonus
// per detected multiple-items pattern, penalizing compound requests.

// multiItemBonus is added once per compound-request indicator found.
const multiItemBonus = 10

// Compound-request indicators: repeated conjunctions, enumerated lists,
// chained clauses.
var multiItemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\band\b.+\band\b`),
	regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+\S`),
	regexp.MustCompile(`(?i)\b(also|additionally|then|as well as)\b`),
	regexp.MustCompile(`;\s*\S`),
}

// EstimateCost returns the cost signal for a request. Empty input costs 0.
func EstimateCost(text string, context map[string]string) int {
	total := len(strings.TrimSpace(text))
	for _, blob := range context {
		total += len(blob)
	}
	if total == 0 {
		return 0
	}

	cost := (total + 3) / 4 // chars/4, rounded up

	for _, p := range multiItemPatterns {
		if p.MatchString(text) {
			cost += multiItemBonus
		}
	}
	return cost
}

// IsCompound reports whether the request text carries any multiple-items
// indicator. Used as a weak delegation factor.
func IsCompound(text string) bool {
	for _, p := range multiItemPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
