// Package analytics aggregates line items and order summaries into period,
// venue and product statistics. All day buckets are UTC midnights.
package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Period tokens
const (
	PeriodToday     = "today"
	PeriodYesterday = "yesterday"
	Period7Days     = "7days"
	Period30Days    = "30days"
	PeriodCustom    = "custom"
)

// DefaultPeriod is used when a request names no period
const DefaultPeriod = Period30Days

// DateLayout is the format of custom period bounds
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// ErrInvalidPeriod is returned for an unknown token or malformed bounds
var ErrInvalidPeriod = errors.New("invalid period")

// Range is a half-open time range [Start, End)
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in the range
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the length of the range
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Previous returns the range of equal length ending where r starts
func (r Range) Previous() Range {
	return Range{Start: r.Start.Add(-r.Duration()), End: r.Start}
}

// Days returns the UTC midnights covered by the range
func (r Range) Days() []time.Time {
	var days []time.Time
	for d := Midnight(r.Start); d.Before(r.End); d = d.Add(day) {
		days = append(days, d)
	}
	return days
}

// Midnight truncates t to its UTC day
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolvePeriod turns a period token into a range relative to now. Rolling
// periods include today. For custom, start and end are inclusive dates.
func ResolvePeriod(token string, now time.Time, start, end string) (Range, error) {
	today := Midnight(now)

	switch strings.ToLower(strings.TrimSpace(token)) {
	case PeriodToday:
		return Range{Start: today, End: today.Add(day)}, nil
	case PeriodYesterday:
		return Range{Start: today.Add(-day), End: today}, nil
	case Period7Days:
		return Range{Start: today.Add(-6 * day), End: today.Add(day)}, nil
	case Period30Days:
		return Range{Start: today.Add(-29 * day), End: today.Add(day)}, nil
	case PeriodCustom:
		return customRange(start, end)
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, token)
	}
}

func customRange(start, end string) (Range, error) {
	if start == "" || end == "" {
		return Range{}, fmt.Errorf("%w: custom period needs startDate and endDate", ErrInvalidPeriod)
	}
	from, err := time.Parse(DateLayout, start)
	if err != nil {
		return Range{}, fmt.Errorf("%w: start date %q", ErrInvalidPeriod, start)
	}
	to, err := time.Parse(DateLayout, end)
	if err != nil {
		return Range{}, fmt.Errorf("%w: end date %q", ErrInvalidPeriod, end)
	}
	if to.Before(from) {
		return Range{}, fmt.Errorf("%w: end date %s before start date %s", ErrInvalidPeriod, end, start)
	}
	return Range{Start: from, End: to.Add(day)}, nil
}
