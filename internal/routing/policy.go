package routing

import (
	"regexp"

	"go.uber.org/zap"

	"overseer/internal/types"
)

// =============================================================================
// DELEGATION POLICY
// =============================================================================
// Combines the trigger matcher and the cost estimate into a delegate /
// do-not-delegate decision plus a task category. The rule is deliberately
// simple: delegate when any strong factor fires, or when at least two
// independent weak factors fire. Decide cannot fail: malformed or empty text
// classifies as generic with cost 0 and no delegation.

// Factor names recorded in DelegationDecision.TriggeredFactors.
const (
	FactorHighCost      = "high_cost"      // strong: cost exceeds the category threshold
	FactorStrongMatch   = "strong_match"   // weak: a non-generic category matched
	FactorCompound      = "compound"       // weak: multiple-items pattern present
	FactorComprehensive = "comprehensive"  // weak: explicit comprehensive-analysis phrasing
	FactorLargeContext  = "large_context"  // weak: attached context blobs present
)

// DefaultThresholds are the per-category cost thresholds above which a
// request is considered expensive enough to delegate on cost alone.
func DefaultThresholds() map[types.TaskCategory]int {
	return map[types.TaskCategory]int{
		types.CategoryResearch: 1000,
		types.CategoryCode:     500,
		types.CategoryReport:   800,
		types.CategoryDebug:    600,
		types.CategoryGeneric:  500,
	}
}

var comprehensivePattern = regexp.MustCompile(`(?i)\bcomprehensive\b|\bin[- ]depth\b|\bexhaustive\b`)

// Policy is the delegation decision engine.
type Policy struct {
	matcher    *Matcher
	thresholds map[types.TaskCategory]int
	logger     *zap.Logger
}

// NewPolicy builds a policy with the given per-category thresholds. Missing
// categories fall back to the generic threshold; a nil map uses defaults.
func NewPolicy(thresholds map[types.TaskCategory]int, logger *zap.Logger) *Policy {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		matcher:    NewMatcher(),
		thresholds: thresholds,
		logger:     logger,
	}
}

// Threshold returns the cost threshold for a category.
func (p *Policy) Threshold(category types.TaskCategory) int {
	if t, ok := p.thresholds[category]; ok {
		return t
	}
	return p.thresholds[types.CategoryGeneric]
}

// Decide classifies the request and produces the delegation decision.
func (p *Policy) Decide(text string, context map[string]string) types.DelegationDecision {
	matches := p.matcher.Classify(text)
	category := Primary(matches)
	cost := EstimateCost(text, context)

	var strong, weak []string

	if cost > p.Threshold(category) {
		strong = append(strong, FactorHighCost)
	}
	if category != types.CategoryGeneric {
		weak = append(weak, FactorStrongMatch)
	}
	if IsCompound(text) {
		weak = append(weak, FactorCompound)
	}
	if comprehensivePattern.MatchString(text) {
		weak = append(weak, FactorComprehensive)
	}
	if len(context) > 0 {
		weak = append(weak, FactorLargeContext)
	}

	delegate := len(strong) > 0 || len(weak) >= 2

	decision := types.DelegationDecision{
		ShouldDelegate:   delegate,
		Category:         category,
		EstimatedCost:    cost,
		TriggeredFactors: append(strong, weak...),
	}

	p.logger.Debug("delegation decision",
		zap.String("category", string(category)),
		zap.Int("cost", cost),
		zap.Bool("delegate", delegate),
		zap.Strings("factors", decision.TriggeredFactors))

	return decision
}
