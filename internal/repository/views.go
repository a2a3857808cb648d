package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/viewtally/viewtally/internal/model"
)

// MaxBulkRows caps the rows bound into a single bulk upsert statement.
// Batches beyond this are flushed in slices; roughly equivalent to the legacy
// importer's ~25k-character statement cap.
const MaxBulkRows = 500

// upsertViewSQL is the one hard correctness requirement of the store: a
// single-statement insert-or-add, never read-then-write, so concurrent
// writers to the same (content_id, bucket_type, period_key) cannot lose
// updates.
const upsertViewSQL = `
	INSERT INTO views (content_id, bucket_type, period_key, count)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (content_id, bucket_type, period_key)
	DO UPDATE SET count = views.count + EXCLUDED.count
`

// IncrementView atomically adds amount to one counter row, creating it with
// count = amount if absent.
func (r *Repository) IncrementView(ctx context.Context, contentID int64, bucket model.BucketType, periodKey string, amount int64) error {
	_, err := r.pool.Exec(ctx, upsertViewSQL, contentID, bucket, periodKey, amount)
	if err != nil {
		return fmt.Errorf("failed to increment view %d/%s/%s: %w", contentID, bucket, periodKey, err)
	}
	return nil
}

// IncrementAllBuckets upserts the five bucket rows for one counted view in a
// single transaction. Used when all-or-nothing counting is configured; the
// default path lets the orchestrator issue independent best-effort upserts.
func (r *Repository) IncrementAllBuckets(ctx context.Context, contentID int64, keys [5]string, amount int64) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		for _, bucket := range model.AllBuckets {
			if _, err := tx.Exec(ctx, upsertViewSQL, contentID, bucket, keys[bucket], amount); err != nil {
				return fmt.Errorf("upsert bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// BulkIncrementViews replays many increments as multi-row upserts.
// Duplicate keys are merged in memory first: ON CONFLICT cannot touch the
// same row twice within one statement. Partial failure of a slice is
// reported as a single error with no per-row retry.
func (r *Repository) BulkIncrementViews(ctx context.Context, records []model.ViewRecord) error {
	merged := mergeViewRecords(records)

	for start := 0; start < len(merged); start += MaxBulkRows {
		end := start + MaxBulkRows
		if end > len(merged) {
			end = len(merged)
		}
		if err := r.bulkUpsertViews(ctx, merged[start:end]); err != nil {
			return fmt.Errorf("bulk upsert rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (r *Repository) bulkUpsertViews(ctx context.Context, records []model.ViewRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO views (content_id, bucket_type, period_key, count) VALUES ")

	args := make([]any, 0, len(records)*4)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, rec.ContentID, rec.Bucket, rec.PeriodKey, rec.Count)
	}

	sb.WriteString(`
		ON CONFLICT (content_id, bucket_type, period_key)
		DO UPDATE SET count = views.count + EXCLUDED.count
	`)

	_, err := r.pool.Exec(ctx, sb.String(), args...)
	return err
}

// mergeViewRecords collapses duplicate (content, bucket, period) keys by
// summing their counts, preserving first-seen order for determinism.
func mergeViewRecords(records []model.ViewRecord) []model.ViewRecord {
	type key struct {
		id     int64
		bucket model.BucketType
		period string
	}

	index := make(map[key]int, len(records))
	merged := make([]model.ViewRecord, 0, len(records))

	for _, rec := range records {
		if rec.Count <= 0 {
			continue
		}
		k := key{rec.ContentID, rec.Bucket, rec.PeriodKey}
		if i, ok := index[k]; ok {
			merged[i].Count += rec.Count
			continue
		}
		index[k] = len(merged)
		merged = append(merged, rec)
	}
	return merged
}

// PeriodMatch selects period keys within one bucket. Exact and Suffix are
// mutually exclusive; After/Before bound a range on the zero-padded keys,
// where string comparison agrees with chronological order.
type PeriodMatch struct {
	Exact  string // full period key, e.g. "20240315"
	Suffix string // right-anchored sub-component without year, e.g. "0315"

	After           string
	AfterInclusive  bool
	Before          string
	BeforeInclusive bool
}

// appendSQL adds the match conditions to conds/args, returning both.
// A zero PeriodMatch adds nothing and matches every period in the bucket.
func (m PeriodMatch) appendSQL(column string, conds []string, args []any) ([]string, []any) {
	if m.Exact != "" {
		args = append(args, m.Exact)
		return append(conds, fmt.Sprintf("%s = $%d", column, len(args))), args
	}
	if m.Suffix != "" {
		args = append(args, "%"+m.Suffix)
		conds = append(conds, fmt.Sprintf("%s LIKE $%d", column, len(args)))
		return conds, args
	}
	if m.After != "" {
		op := ">"
		if m.AfterInclusive {
			op = ">="
		}
		args = append(args, m.After)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}
	if m.Before != "" {
		op := "<"
		if m.BeforeInclusive {
			op = "<="
		}
		args = append(args, m.Before)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}
	return conds, args
}

// GetTotal returns the all-time view count summed across the given content
// ids. Unknown ids contribute zero.
func (r *Repository) GetTotal(ctx context.Context, contentIDs ...int64) (int64, error) {
	if len(contentIDs) == 0 {
		return 0, nil
	}

	query := `
		SELECT COALESCE(SUM(count), 0)
		FROM views
		WHERE bucket_type = $1 AND period_key = $2 AND content_id = ANY($3)
	`

	var total int64
	err := r.pool.QueryRow(ctx, query, model.BucketTotal, model.TotalPeriodKey, contentIDs).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total views: %w", err)
	}
	return total, nil
}

// GetSeries returns period_key -> summed count for one bucket type, optionally
// restricted to content types and a period match. Periods with no views are
// absent from the result.
func (r *Repository) GetSeries(ctx context.Context, contentTypes []string, bucket model.BucketType, match PeriodMatch) (map[string]int64, error) {
	conds := []string{"v.bucket_type = $1"}
	args := []any{bucket}

	join := ""
	if len(contentTypes) > 0 {
		join = "JOIN content c ON c.id = v.content_id"
		args = append(args, pq.Array(contentTypes))
		conds = append(conds, fmt.Sprintf("c.content_type = ANY($%d)", len(args)))
		conds = append(conds, "c.deleted_at IS NULL")
	}
	conds, args = match.appendSQL("v.period_key", conds, args)

	query := fmt.Sprintf(`
		SELECT v.period_key, SUM(v.count)
		FROM views v
		%s
		WHERE %s
		GROUP BY v.period_key
		ORDER BY v.period_key
	`, join, strings.Join(conds, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query view series: %w", err)
	}
	defer rows.Close()

	series := make(map[string]int64)
	for rows.Next() {
		var period string
		var count int64
		if err := rows.Scan(&period, &count); err != nil {
			return nil, fmt.Errorf("failed to scan series row: %w", err)
		}
		series[period] = count
	}
	return series, rows.Err()
}

// DeleteAllViewsFor removes every bucket/period row for a content id.
// Invoked when the owning content item is deleted upstream.
func (r *Repository) DeleteAllViewsFor(ctx context.Context, contentID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM views WHERE content_id = $1`, contentID)
	if err != nil {
		return fmt.Errorf("failed to delete views for content %d: %w", contentID, err)
	}
	return nil
}

// PruneViewsOlderThan deletes rows of one bucket type whose period key sorts
// below cutoff. Day keys are zero-padded YYYYMMDD, so string comparison and
// numeric comparison agree. The all-time bucket is never pruned.
func (r *Repository) PruneViewsOlderThan(ctx context.Context, bucket model.BucketType, cutoffPeriodKey string) (int64, error) {
	if bucket == model.BucketTotal {
		return 0, errors.New("refusing to prune the all-time bucket")
	}

	result, err := r.pool.Exec(ctx,
		`DELETE FROM views WHERE bucket_type = $1 AND period_key < $2`,
		bucket, cutoffPeriodKey,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s views before %s: %w", bucket, cutoffPeriodKey, err)
	}
	return result.RowsAffected(), nil
}
