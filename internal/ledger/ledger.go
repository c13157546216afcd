// Package ledger persists the append-only feedback record backing the
// pipeline: one row per attempt outcome and one per criterion weight
// adjustment. SQLite keeps it durable across runs; all aggregation happens
// over the stored rows, never by mutating them.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"overseer/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ts           TEXT NOT NULL,
	request_id   TEXT NOT NULL,
	attempt      INTEGER NOT NULL,
	category     TEXT NOT NULL,
	score        REAL NOT NULL,
	disposition  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	attempt_kind TEXT NOT NULL DEFAULT '',
	issues       TEXT NOT NULL DEFAULT '[]',
	detail       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ledger_category ON ledger_entries(category, kind, id);
CREATE INDEX IF NOT EXISTS idx_ledger_request ON ledger_entries(request_id);
`

// Ledger is the durable feedback store. Safe for concurrent use; writes
// serialize on the single SQLite connection.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open initializes the SQLite database at the given path, creating the
// parent directory and schema as needed.
func Open(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}

	logger.Debug("ledger opened", zap.String("path", path))
	return &Ledger{db: db, logger: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one entry. The entry's ID and, if zero, Timestamp are
// assigned here.
func (l *Ledger) Record(ctx context.Context, entry *types.LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	issues, err := json.Marshal(entry.Issues)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(ts, request_id, attempt, category, score, disposition, kind, attempt_kind, issues, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.RequestID,
		entry.Attempt,
		string(entry.Category),
		entry.Score,
		string(entry.Disposition),
		string(entry.Kind),
		string(entry.AttemptKind),
		string(issues),
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns the newest entries, most recent first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]types.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, request_id, attempt, category, score, disposition, kind, attempt_kind, issues, detail
		FROM ledger_entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ForRequest returns every entry recorded for one request, in append order.
func (l *Ledger) ForRequest(ctx context.Context, requestID string) ([]types.LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, request_id, attempt, category, score, disposition, kind, attempt_kind, issues, detail
		FROM ledger_entries WHERE request_id = ? ORDER BY id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query request entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// IssueCount is one criterion's occurrence count within a window.
type IssueCount struct {
	Criterion string
	Count     int
}

// RecurringIssues aggregates failing criteria over the newest `window`
// attempt entries for a category, ranked by count descending (name ascending
// on ties). Also returns the smallest row id inside the window so callers
// can scope follow-up queries to it.
func (l *Ledger) RecurringIssues(ctx context.Context, category types.TaskCategory, window int) ([]IssueCount, int64, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, issues FROM ledger_entries
		WHERE category = ? AND kind = ?
		ORDER BY id DESC LIMIT ?`,
		string(category), string(types.EntryAttempt), window)
	if err != nil {
		return nil, 0, fmt.Errorf("query recurring issues: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	var minID int64
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, 0, fmt.Errorf("scan issue row: %w", err)
		}
		if minID == 0 || id < minID {
			minID = id
		}
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err != nil {
			l.logger.Warn("malformed issues column", zap.Int64("id", id), zap.Error(err))
			continue
		}
		for _, name := range names {
			counts[name]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ranked := make([]IssueCount, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, IssueCount{Criterion: name, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Criterion < ranked[j].Criterion
	})
	return ranked, minID, nil
}

// AdjustedSince reports the criteria already nudged for a category at or
// after the given row id. Used to avoid re-nudging on every sweep over the
// same window.
func (l *Ledger) AdjustedSince(ctx context.Context, category types.TaskCategory, sinceID int64) (map[string]bool, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT detail FROM ledger_entries
		WHERE category = ? AND kind = ? AND id >= ?`,
		string(category), string(types.EntryAdjustment), sinceID)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	adjusted := map[string]bool{}
	for rows.Next() {
		var criterion string
		if err := rows.Scan(&criterion); err != nil {
			return nil, err
		}
		adjusted[criterion] = true
	}
	return adjusted, rows.Err()
}

// Stats summarizes the ledger for the stats command.
type Stats struct {
	TotalEntries   int64
	ByDisposition  map[types.Disposition]int64
	ByCategory     map[types.TaskCategory]int64
	AverageScore   float64
	AdjustmentRows int64
}

// Summarize aggregates attempt entries across the whole ledger.
func (l *Ledger) Summarize(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByDisposition: map[types.Disposition]int64{},
		ByCategory:    map[types.TaskCategory]int64{},
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT disposition, category, COUNT(*), AVG(score)
		FROM ledger_entries WHERE kind = ?
		GROUP BY disposition, category`, string(types.EntryAttempt))
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var weightedSum float64
	for rows.Next() {
		var disposition, category string
		var count int64
		var avg sql.NullFloat64
		if err := rows.Scan(&disposition, &category, &count, &avg); err != nil {
			return nil, err
		}
		stats.TotalEntries += count
		stats.ByDisposition[types.Disposition(disposition)] += count
		stats.ByCategory[types.TaskCategory(category)] += count
		if avg.Valid {
			weightedSum += avg.Float64 * float64(count)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalEntries > 0 {
		stats.AverageScore = weightedSum / float64(stats.TotalEntries)
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE kind = ?`,
		string(types.EntryAdjustment)).Scan(&stats.AdjustmentRows)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]types.LedgerEntry, error) {
	var entries []types.LedgerEntry
	for rows.Next() {
		var e types.LedgerEntry
		var ts, category, disposition, kind, attemptKind, issues string
		if err := rows.Scan(&e.ID, &ts, &e.RequestID, &e.Attempt, &category,
			&e.Score, &disposition, &kind, &attemptKind, &issues, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Category = types.TaskCategory(category)
		e.Disposition = types.Disposition(disposition)
		e.Kind = types.EntryKind(kind)
		e.AttemptKind = types.AttemptKind(attemptKind)
		if err := json.Unmarshal([]byte(issues), &e.Issues); err != nil {
			e.Issues = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
