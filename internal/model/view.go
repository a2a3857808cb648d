// Package model defines domain entities for the application.
package model

import (
	"errors"
	"fmt"
	"time"
)

// BucketType identifies an aggregation granularity. The same counted view is
// rolled up into every bucket type simultaneously.
type BucketType uint8

// Bucket types, in ascending granularity order. The numeric values are
// persisted in the views table and must not be reordered.
const (
	BucketDay BucketType = iota
	BucketWeek
	BucketMonth
	BucketYear
	BucketTotal
)

// TotalPeriodKey is the period key of the all-time bucket.
const TotalPeriodKey = "total"

// ErrInvalidBucket indicates an unknown bucket type name or value.
var ErrInvalidBucket = errors.New("invalid bucket type")

// AllBuckets lists every bucket type a counted view fans out into.
var AllBuckets = [5]BucketType{BucketDay, BucketWeek, BucketMonth, BucketYear, BucketTotal}

// String returns the lowercase bucket name used in APIs and cache keys.
func (b BucketType) String() string {
	switch b {
	case BucketDay:
		return "day"
	case BucketWeek:
		return "week"
	case BucketMonth:
		return "month"
	case BucketYear:
		return "year"
	case BucketTotal:
		return "total"
	default:
		return fmt.Sprintf("bucket(%d)", uint8(b))
	}
}

// ParseBucketType converts an API bucket name to a BucketType.
func ParseBucketType(s string) (BucketType, error) {
	switch s {
	case "day":
		return BucketDay, nil
	case "week":
		return BucketWeek, nil
	case "month":
		return BucketMonth, nil
	case "year":
		return BucketYear, nil
	case "total":
		return BucketTotal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBucket, s)
	}
}

// ViewRecord is one aggregated counter row: content item x bucket x period.
// The triple (ContentID, Bucket, PeriodKey) is the upsert key.
type ViewRecord struct {
	ContentID int64      `json:"content_id"`
	Bucket    BucketType `json:"bucket"`
	PeriodKey string     `json:"period_key"`
	Count     int64      `json:"count"`
}

// PeriodKey returns the period key for a bucket at the given instant.
// Day keys are YYYYMMDD, month YYYYMM, year YYYY, total the literal "total".
// Week keys are YYYYWW with ISO-8601 week numbering, year first; the ISO week
// year can differ from the calendar year around January 1st.
func PeriodKey(b BucketType, t time.Time) string {
	switch b {
	case BucketDay:
		return t.Format("20060102")
	case BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d%02d", year, week)
	case BucketMonth:
		return t.Format("200601")
	case BucketYear:
		return t.Format("2006")
	default:
		return TotalPeriodKey
	}
}

// PeriodKeys returns the five keys a view at t touches, indexed by bucket type.
func PeriodKeys(t time.Time) [5]string {
	var keys [5]string
	for _, b := range AllBuckets {
		keys[b] = PeriodKey(b, t)
	}
	return keys
}
