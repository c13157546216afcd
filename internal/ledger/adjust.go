package ledger

import (
	"context"

	"go.uber.org/zap"

	"overseer/internal/criteria"
	"overseer/internal/types"
)

// =============================================================================
// FEEDBACK-DRIVEN WEIGHT ADJUSTMENT
// =============================================================================

const (
	// DefaultRecurrenceThreshold is how many occurrences of one failing
	// criterion inside the window trigger a weight nudge.
	DefaultRecurrenceThreshold = 3
	// DefaultNudge is the relative weight increase applied per trigger. The
	// registry renormalizes the phase afterwards.
	DefaultNudge = 0.10
	// DefaultWindow is how many recent attempt entries per category a sweep
	// inspects.
	DefaultWindow = 50
)

// Adjuster turns recurring ledger issues into criterion weight nudges.
// Adjustments never apply mid-request; the supervisor sweeps between
// requests so in-flight snapshots stay stable.
type Adjuster struct {
	ledger    *Ledger
	registry  *criteria.Registry
	threshold int
	nudge     float64
	window    int
	logger    *zap.Logger
}

func NewAdjuster(l *Ledger, registry *criteria.Registry, logger *zap.Logger) *Adjuster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adjuster{
		ledger:    l,
		registry:  registry,
		threshold: DefaultRecurrenceThreshold,
		nudge:     DefaultNudge,
		window:    DefaultWindow,
		logger:    logger,
	}
}

// Sweep inspects every category's recent window and nudges criteria whose
// failure count reached the threshold. Each nudge is itself recorded in the
// ledger, which also stops the same window from triggering twice. Returns
// the number of adjustments applied.
func (a *Adjuster) Sweep(ctx context.Context) (int, error) {
	applied := 0
	for _, category := range types.AllCategories() {
		ranked, minID, err := a.ledger.RecurringIssues(ctx, category, a.window)
		if err != nil {
			return applied, err
		}
		if len(ranked) == 0 {
			continue
		}
		already, err := a.ledger.AdjustedSince(ctx, category, minID)
		if err != nil {
			return applied, err
		}

		for _, issue := range ranked {
			if issue.Count < a.threshold {
				break
			}
			if already[issue.Criterion] {
				continue
			}
			if err := a.registry.AdjustWeight(category, issue.Criterion, a.nudge); err != nil {
				// Synthetic issues (e.g. empty-artifact) have no registry
				// entry to nudge.
				a.logger.Debug("skipping unadjustable criterion",
					zap.String("category", string(category)),
					zap.String("criterion", issue.Criterion),
					zap.Error(err))
				continue
			}

			entry := &types.LedgerEntry{
				Category: category,
				Score:    a.nudge,
				Kind:     types.EntryAdjustment,
				Detail:   issue.Criterion,
			}
			if err := a.ledger.Record(ctx, entry); err != nil {
				return applied, err
			}
			applied++
			a.logger.Info("criterion weight nudged",
				zap.String("category", string(category)),
				zap.String("criterion", issue.Criterion),
				zap.Int("occurrences", issue.Count),
				zap.Float64("relative_nudge", a.nudge))
		}
	}
	return applied, nil
}
