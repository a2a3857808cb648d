package repository

import (
	"fmt"
	"time"

	"github.com/viewtally/viewtally/internal/model"
	"github.com/viewtally/viewtally/internal/query"
)

// MatchForPeriod converts a period filter into the bucket to aggregate over
// and the period-key match for GetSeries. It applies the same rules as the
// listing builder: the combination of set components picks the bucket, a
// sub-component without a year matches across all years, and an absent or
// invalid filter degrades silently to the all-time bucket unrestricted.
func MatchForPeriod(p *query.Period) (model.BucketType, PeriodMatch) {
	allTime := func() (model.BucketType, PeriodMatch) {
		return model.BucketTotal, PeriodMatch{Exact: model.TotalPeriodKey}
	}

	if p == nil {
		return allTime()
	}

	if p.After != nil || p.Before != nil {
		return rangeMatch(p)
	}

	switch {
	case p.Year != 0 && p.Month != 0 && p.Day != 0:
		if !validDate(p.Year, p.Month, p.Day) {
			return allTime()
		}
		return model.BucketDay, PeriodMatch{Exact: fmt.Sprintf("%04d%02d%02d", p.Year, p.Month, p.Day)}

	case p.Year != 0 && p.Week != 0:
		if !validWeek(p.Week) {
			return allTime()
		}
		return model.BucketWeek, PeriodMatch{Exact: fmt.Sprintf("%04d%02d", p.Year, p.Week)}

	case p.Year != 0 && p.Month != 0:
		if !validMonth(p.Month) {
			return allTime()
		}
		return model.BucketMonth, PeriodMatch{Exact: fmt.Sprintf("%04d%02d", p.Year, p.Month)}

	case p.Year != 0:
		return model.BucketYear, PeriodMatch{Exact: fmt.Sprintf("%04d", p.Year)}

	case p.Month != 0 && p.Day != 0:
		if !validMonth(p.Month) || !validDay(p.Day) {
			return allTime()
		}
		return model.BucketDay, PeriodMatch{Suffix: fmt.Sprintf("%02d%02d", p.Month, p.Day)}

	case p.Month != 0:
		if !validMonth(p.Month) {
			return allTime()
		}
		return model.BucketMonth, PeriodMatch{Suffix: fmt.Sprintf("%02d", p.Month)}

	case p.Week != 0:
		if !validWeek(p.Week) {
			return allTime()
		}
		return model.BucketWeek, PeriodMatch{Suffix: fmt.Sprintf("%02d", p.Week)}

	case p.Day != 0:
		if !validDay(p.Day) {
			return allTime()
		}
		return model.BucketDay, PeriodMatch{Suffix: fmt.Sprintf("%02d", p.Day)}

	default:
		return allTime()
	}
}

// rangeMatch resolves after/before bounds. Both must land in the same
// bucket; a mismatch or an invalid bound drops the filter.
func rangeMatch(p *query.Period) (model.BucketType, PeriodMatch) {
	resolveBound := func(b *query.Bound) (model.BucketType, string, bool) {
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

	var (
		bucket model.BucketType
		match  PeriodMatch
		bound  bool
	)
	if p.After != nil {
		bk, key, ok := resolveBound(p.After)
		if !ok {
			return model.BucketTotal, PeriodMatch{Exact: model.TotalPeriodKey}
		}
		bucket, bound = bk, true
		match.After, match.AfterInclusive = key, p.After.Inclusive
	}
	if p.Before != nil {
		bk, key, ok := resolveBound(p.Before)
		if !ok || (bound && bk != bucket) {
			return model.BucketTotal, PeriodMatch{Exact: model.TotalPeriodKey}
		}
		bucket, bound = bk, true
		match.Before, match.BeforeInclusive = key, p.Before.Inclusive
	}
	if !bound {
		return model.BucketTotal, PeriodMatch{Exact: model.TotalPeriodKey}
	}
	return bucket, match
}

func validDay(d int) bool   { return d >= 1 && d <= 31 }
func validWeek(w int) bool  { return w >= 0 && w <= 53 }
func validMonth(m int) bool { return m >= 1 && m <= 12 }

// validDate relies on time normalization to reject impossible calendar
// dates such as April 31.
func validDate(year, month, day int) bool {
	if !validMonth(month) || !validDay(day) || year <= 0 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}
