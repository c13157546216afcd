package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"overseer/internal/criteria"
	"overseer/internal/types"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func attemptEntry(requestID string, attempt int, score float64, issues ...string) *types.LedgerEntry {
	return &types.LedgerEntry{
		RequestID:   requestID,
		Attempt:     attempt,
		Category:    types.CategoryResearch,
		Score:       score,
		Disposition: types.DispositionEnhance,
		Kind:        types.EntryAttempt,
		AttemptKind: types.AttemptQuality,
		Issues:      issues,
	}
}

func TestRecordAssignsIDsInAppendOrder(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	var last int64
	for i := 1; i <= 5; i++ {
		e := attemptEntry("req-1", i, 0.7)
		require.NoError(t, l.Record(ctx, e))
		assert.Greater(t, e.ID, last, "ids must be strictly increasing")
		assert.False(t, e.Timestamp.IsZero())
		last = e.ID
	}

	entries, err := l.ForRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Attempt)
		assert.Equal(t, types.CategoryResearch, e.Category)
		assert.Equal(t, types.AttemptQuality, e.AttemptKind)
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, l.Record(ctx, attemptEntry(fmt.Sprintf("req-%d", i), 1, 0.5)))
	}
	entries, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-4", entries[0].RequestID)
	assert.Equal(t, "req-3", entries[1].RequestID)
}

func TestRecurringIssuesRankedAndWindowed(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	// Old entry outside the window.
	require.NoError(t, l.Record(ctx, attemptEntry("old", 1, 0.4, criteria.CritProseDensity)))

	require.NoError(t, l.Record(ctx, attemptEntry("a", 1, 0.5, criteria.CritReferencesSect, criteria.CritSufficientDepth)))
	require.NoError(t, l.Record(ctx, attemptEntry("b", 1, 0.5, criteria.CritReferencesSect)))
	require.NoError(t, l.Record(ctx, attemptEntry("c", 1, 0.5, criteria.CritReferencesSect)))

	ranked, minID, err := l.RecurringIssues(ctx, types.CategoryResearch, 3)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, criteria.CritReferencesSect, ranked[0].Criterion)
	assert.Equal(t, 3, ranked[0].Count)
	assert.Positive(t, minID)

	// The windowed query must not see the old prose_density entry.
	for _, ic := range ranked {
		assert.NotEqual(t, criteria.CritProseDensity, ic.Criterion)
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("req-%d", i)
		g.Go(func() error {
			return l.Record(ctx, attemptEntry(id, 1, 0.6, criteria.CritProseDensity))
		})
	}
	require.NoError(t, g.Wait())

	stats, err := l.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.TotalEntries)
	assert.InDelta(t, 0.6, stats.AverageScore, 1e-9)
}

func TestAdjusterSweepNudgesRecurringCriterion(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	registry, err := criteria.NewRegistry()
	require.NoError(t, err)
	before := registry.Snapshot()

	for i := 0; i < DefaultRecurrenceThreshold; i++ {
		require.NoError(t, l.Record(ctx, attemptEntry(fmt.Sprintf("req-%d", i), 1, 0.55, criteria.CritReferencesSect)))
	}

	adjuster := NewAdjuster(l, registry, nil)
	applied, err := adjuster.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	after := registry.Snapshot()
	assert.Greater(t, after.Version(), before.Version())
	assert.Greater(t,
		weightOf(t, after, criteria.CritReferencesSect),
		weightOf(t, before, criteria.CritReferencesSect))

	// The same window must not trigger a second nudge.
	applied, err = adjuster.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	// The adjustment itself was recorded.
	stats, err := l.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AdjustmentRows)
}

func TestAdjusterIgnoresBelowThreshold(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	registry, err := criteria.NewRegistry()
	require.NoError(t, err)

	for i := 0; i < DefaultRecurrenceThreshold-1; i++ {
		require.NoError(t, l.Record(ctx, attemptEntry(fmt.Sprintf("req-%d", i), 1, 0.55, criteria.CritReferencesSect)))
	}

	applied, err := NewAdjuster(l, registry, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func weightOf(t *testing.T, snap *criteria.Snapshot, name string) float64 {
	t.Helper()
	for _, c := range snap.CriteriaFor(types.CategoryResearch).Criteria {
		if c.Name == name {
			return c.Weight
		}
	}
	t.Fatalf("criterion %s not found", name)
	return 0
}
