// Package query builds view-augmented content listing SQL. It is the piece
// that lets any content listing be filtered by a view period or ordered by
// aggregated view count. Every user-influenced value is bound as a parameter;
// the builder never interpolates values into the statement text.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/viewtally/viewtally/internal/model"
)

// Direction orders listing results.
type Direction string

// Sort directions.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Join is a pre-existing join contributed by another query extension (a
// taxonomy or metadata join, for example). GroupBy names the columns that
// join requires in the GROUP BY clause; the builder merges them with its own
// grouping instead of assuming a fixed join order.
type Join struct {
	SQL     string
	Alias   string
	GroupBy []string
}

// Bound is one edge of a period range filter.
type Bound struct {
	Year      int
	Month     int
	Day       int
	Week      int
	Inclusive bool
}

// Period filters the views join by date. Components left at zero are
// unspecified; the combination of set components determines both the bucket
// type joined against and the period key predicate. A sub-component given
// without a year (a bare month-day, month, week, or day) matches across all
// years via a right-anchored comparison on the zero-padded key.
type Period struct {
	Year  int
	Month int
	Day   int
	Week  int

	After  *Bound
	Before *Bound
}

// Listing describes a content listing to be augmented with view data.
type Listing struct {
	ContentTypes   []string
	Period         *Period
	OrderByViews   bool
	Direction      Direction
	IncludeZero    bool
	IncludeDeleted bool
	Limit          int
	Offset         int
	Joins          []Join
}

// viewsExpr is the derived views column. Repeated verbatim in HAVING because
// Postgres does not allow the select alias there.
const viewsExpr = "SUM(COALESCE(v.count, 0))"

// Build produces the augmented listing statement and its bound arguments.
// The result selects content columns plus a trailing `views` column; callers
// scan rows and sum the views column for the query-level total.
func Build(l Listing) (string, []any) {
	dir := l.Direction
	if dir != Asc {
		dir = Desc
	}

	var args []any

	bucket, periodConds, periodArgs := resolvePeriod(l.Period)
	args = append(args, bucket)
	joinConds := []string{
		"v.content_id = c.id",
		fmt.Sprintf("v.bucket_type = $%d", len(args)),
	}
	for _, cond := range periodConds {
		args = append(args, periodArgs[0])
		periodArgs = periodArgs[1:]
		joinConds = append(joinConds, fmt.Sprintf(cond, len(args)))
	}

	var where []string
	if !l.IncludeDeleted {
		where = append(where, "c.deleted_at IS NULL")
	}
	if len(l.ContentTypes) > 0 {
		args = append(args, pq.Array(l.ContentTypes))
		where = append(where, fmt.Sprintf("c.content_type = ANY($%d)", len(args)))
	}

	// The views join fans content rows out per period row, so the listing is
	// grouped on the content primary key plus whatever grouping the extra
	// joins contribute, and DISTINCT guards the selected columns.
	groupCols := []string{"c.id"}
	for _, j := range l.Joins {
		groupCols = append(groupCols, j.GroupBy...)
	}

	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT c.id, c.content_type, c.title, c.published_at, c.created_at, c.updated_at, ")
	sb.WriteString(viewsExpr)
	sb.WriteString(" AS views\nFROM content c\n")
	for _, j := range l.Joins {
		sb.WriteString(j.SQL)
		sb.WriteString("\n")
	}
	sb.WriteString("LEFT JOIN views v ON ")
	sb.WriteString(strings.Join(joinConds, " AND "))
	sb.WriteString("\n")
	if len(where) > 0 {
		sb.WriteString("WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
		sb.WriteString("\n")
	}
	sb.WriteString("GROUP BY ")
	sb.WriteString(strings.Join(groupCols, ", "))
	sb.WriteString("\n")
	if !l.IncludeZero {
		sb.WriteString("HAVING ")
		sb.WriteString(viewsExpr)
		sb.WriteString(" > 0\n")
	}
	if l.OrderByViews {
		// Secondary sort on the primary key keeps tied view counts in a
		// deterministic order across invocations, which pagination relies on.
		fmt.Fprintf(&sb, "ORDER BY views %s, c.id %s\n", dir, dir)
	} else {
		fmt.Fprintf(&sb, "ORDER BY c.published_at %s, c.id %s\n", dir, dir)
	}
	if l.Limit > 0 {
		args = append(args, l.Limit)
		fmt.Fprintf(&sb, "LIMIT $%d\n", len(args))
	}
	if l.Offset > 0 {
		args = append(args, l.Offset)
		fmt.Fprintf(&sb, "OFFSET $%d\n", len(args))
	}

	return sb.String(), args
}

// resolvePeriod turns a period filter into the bucket type to join against
// plus period-key conditions. Conditions are fmt strings with one %d verb for
// the parameter index; values are returned alongside in order. An absent or
// invalid filter degrades silently to the all-time bucket with no date
// constraint.
func resolvePeriod(p *Period) (model.BucketType, []string, []any) {
	total := func() (model.BucketType, []string, []any) {
		return model.BucketTotal, []string{"v.period_key = $%d"}, []any{model.TotalPeriodKey}
	}

	if p == nil {
		return total()
	}

	if p.After != nil || p.Before != nil {
		return resolveRange(p)
	}

	switch {
	case p.Year != 0 && p.Month != 0 && p.Day != 0:
		if !validDate(p.Year, p.Month, p.Day) {
			return total()
		}
		return model.BucketDay, []string{"v.period_key = $%d"},
			[]any{fmt.Sprintf("%04d%02d%02d", p.Year, p.Month, p.Day)}

	case p.Year != 0 && p.Week != 0:
		if !validWeek(p.Week) {
			return total()
		}
		return model.BucketWeek, []string{"v.period_key = $%d"},
			[]any{fmt.Sprintf("%04d%02d", p.Year, p.Week)}

	case p.Year != 0 && p.Month != 0:
		if !validMonth(p.Month) {
			return total()
		}
		return model.BucketMonth, []string{"v.period_key = $%d"},
			[]any{fmt.Sprintf("%04d%02d", p.Year, p.Month)}

	case p.Year != 0:
		return model.BucketYear, []string{"v.period_key = $%d"},
			[]any{fmt.Sprintf("%04d", p.Year)}

	case p.Month != 0 && p.Day != 0:
		// Month-day across all years, e.g. every March 15th.
		if !validMonth(p.Month) || !validDay(p.Day) {
			return total()
		}
		return model.BucketDay, []string{"v.period_key LIKE $%d"},
			[]any{fmt.Sprintf("%%%02d%02d", p.Month, p.Day)}

	case p.Month != 0:
		if !validMonth(p.Month) {
			return total()
		}
		return model.BucketMonth, []string{"v.period_key LIKE $%d"},
			[]any{fmt.Sprintf("%%%02d", p.Month)}

	case p.Week != 0:
		if !validWeek(p.Week) {
			return total()
		}
		return model.BucketWeek, []string{"v.period_key LIKE $%d"},
			[]any{fmt.Sprintf("%%%02d", p.Week)}

	case p.Day != 0:
		if !validDay(p.Day) {
			return total()
		}
		return model.BucketDay, []string{"v.period_key LIKE $%d"},
			[]any{fmt.Sprintf("%%%02d", p.Day)}

	default:
		return total()
	}
}

// resolveRange builds after/before conditions. Both bounds must resolve in
// the same bucket; a mismatch or an invalid bound key drops the filter.
func resolveRange(p *Period) (model.BucketType, []string, []any) {
	var (
		bucket model.BucketType
		conds  []string
		args   []any
	)

	resolveBound := func(b *Bound) (model.BucketType, string, bool) {
		switch {
		case b.Year != 0 && b.Month != 0 && b.Day != 0:
			if !validDate(b.Year, b.Month, b.Day) {
				return 0, "", false
			}
			return model.BucketDay, fmt.Sprintf("%04d%02d%02d", b.Year, b.Month, b.Day), true
		case b.Year != 0 && b.Week != 0:
			if !validWeek(b.Week) {
				return 0, "", false
			}
			return model.BucketWeek, fmt.Sprintf("%04d%02d", b.Year, b.Week), true
		case b.Year != 0 && b.Month != 0:
			if !validMonth(b.Month) {
				return 0, "", false
			}
			return model.BucketMonth, fmt.Sprintf("%04d%02d", b.Year, b.Month), true
		case b.Year != 0:
			return model.BucketYear, fmt.Sprintf("%04d", b.Year), true
		default:
			return 0, "", false
		}
	}

	addBound := func(b *Bound, inclusiveOp, exclusiveOp string) bool {
		if b == nil {
			return true
		}
		bk, key, ok := resolveBound(b)
		if !ok {
			return false
		}
		if len(conds) > 0 && bk != bucket {
			return false
		}
		bucket = bk
		op := exclusiveOp
		if b.Inclusive {
			op = inclusiveOp
		}
		args = append(args, key)
		conds = append(conds, "v.period_key "+op+" $%d")
		return true
	}

	if !addBound(p.After, ">=", ">") || !addBound(p.Before, "<=", "<") || len(conds) == 0 {
		return model.BucketTotal, []string{"v.period_key = $%d"}, []any{model.TotalPeriodKey}
	}
	return bucket, conds, args
}

func validDay(d int) bool   { return d >= 1 && d <= 31 }
func validWeek(w int) bool  { return w >= 0 && w <= 53 }
func validMonth(m int) bool { return m >= 1 && m <= 12 }

// validDate reports whether year/month/day is a real calendar date;
// time.Date normalizes overflow (April 31 becomes May 1), which is how the
// mismatch is detected.
func validDate(year, month, day int) bool {
	if !validMonth(month) || !validDay(day) || year <= 0 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
