package ohlcv

import (
	"fmt"
	"time"
)

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start Timestamp
	End   Timestamp
}

// NewTimeRange requires Start < End.
func NewTimeRange(start, end Timestamp) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, fmt.Errorf("time range start %s is not before end %s: %w",
			start, end, ErrDomainViolation)
	}
	return TimeRange{Start: start, End: end}, nil
}

// SingleDay returns the range covering one UTC trading date.
func SingleDay(date time.Time) TimeRange {
	var y, m, d = date.UTC().Date()
	var start = NewTimestamp(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return TimeRange{Start: start, End: start.Add(24 * time.Hour)}
}

// Contains reports whether ts falls inside [Start, End).
func (r TimeRange) Contains(ts Timestamp) bool {
	return !ts.Before(r.Start) && ts.Before(r.End)
}

// Overlaps reports whether r and o share any instant.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// DurationSeconds returns the range's length in whole seconds.
func (r TimeRange) DurationSeconds() int64 {
	return int64(r.End.Time().Sub(r.Start.Time()) / time.Second)
}

// Days enumerates the UTC trading dates touched by the range, in order.
func (r TimeRange) Days() []Timestamp {
	var days []Timestamp
	for day := r.Start.Day(); day.Before(r.End); day = day.Add(24 * time.Hour) {
		days = append(days, day)
	}
	return days
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
