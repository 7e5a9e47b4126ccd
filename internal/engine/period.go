package engine

import (
	"fmt"
	"strings"
	"time"

	"ledger/internal/core"
)

// Granularity is the bucket width of a time series.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// maxPeriods bounds the size of a single series request.
const maxPeriods = 3700

// ParseGranularity accepts "day", "week" or "month" (case-insensitive).
// An empty string selects Month.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return Month, nil
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%w: unknown granularity %q", core.ErrValidation, s)
	}
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BucketStart returns the start of the bucket containing t. Weeks start
// on Monday; months on the first calendar day.
func (g Granularity) BucketStart(t time.Time) time.Time {
	d := DayStart(t)
	switch g {
	case Week:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// Next advances a bucket start by one bucket.
func (g Granularity) Next(bucketStart time.Time) time.Time {
	switch g {
	case Week:
		return bucketStart.AddDate(0, 0, 7)
	case Month:
		return bucketStart.AddDate(0, 1, 0)
	default:
		return bucketStart.AddDate(0, 0, 1)
	}
}

// Label names the bucket starting at bucketStart.
func (g Granularity) Label(bucketStart time.Time) string {
	if g == Month {
		return bucketStart.Format("2006-01")
	}
	return bucketStart.Format("2006-01-02")
}

// Period is one half-open bucket [Start, End) clipped to the requested range.
type Period struct {
	Label string    `json:"period"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Periods splits the calendar range [start, end] (end inclusive) into
// consecutive buckets of granularity g.
func Periods(start, end time.Time, g Granularity) ([]Period, error) {
	from := DayStart(start)
	until := DayStart(end).AddDate(0, 0, 1)
	if !from.Before(until) {
		return nil, fmt.Errorf("%w: end date %s precedes start date %s",
			core.ErrValidation, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var periods []Period
	for b := g.BucketStart(from); b.Before(until); b = g.Next(b) {
		if len(periods) == maxPeriods {
			return nil, fmt.Errorf("%w: range too large for %s granularity", core.ErrValidation, g)
		}
		p := Period{Label: g.Label(b), Start: b, End: g.Next(b)}
		if p.Start.Before(from) {
			p.Start = from
		}
		if p.End.After(until) {
			p.End = until
		}
		periods = append(periods, p)
	}
	return periods, nil
}
