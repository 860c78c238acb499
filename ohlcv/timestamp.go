package ohlcv

import "time"

// Timestamp is a UTC instant with nanosecond precision. A naive or
// zoned time.Time handed to the constructor is coerced to UTC.
type Timestamp struct {
	t time.Time
}

// NewTimestamp coerces t to UTC.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{t.UTC()} }

// TimestampFromNanos builds a Timestamp from nanoseconds since the epoch.
func TimestampFromNanos(ns int64) Timestamp {
	return Timestamp{time.Unix(0, ns).UTC()}
}

// UnixNanos returns nanoseconds since the epoch.
func (ts Timestamp) UnixNanos() int64 { return ts.t.UnixNano() }

// ISO8601 renders the instant as an ISO-8601 / RFC 3339 string.
func (ts Timestamp) ISO8601() string { return ts.t.Format(time.RFC3339Nano) }

// TradingDate returns the UTC calendar date, the dataset partition key.
func (ts Timestamp) TradingDate() string { return ts.t.Format("2006-01-02") }

// Day returns the UTC midnight instant that opens the trading date.
func (ts Timestamp) Day() Timestamp {
	var y, m, d = ts.t.Date()
	return Timestamp{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Before reports whether ts precedes o.
func (ts Timestamp) Before(o Timestamp) bool { return ts.t.Before(o.t) }

// After reports whether ts follows o.
func (ts Timestamp) After(o Timestamp) bool { return ts.t.After(o.t) }

// Equal reports instant equality.
func (ts Timestamp) Equal(o Timestamp) bool { return ts.t.Equal(o.t) }

// Add offsets the instant by d.
func (ts Timestamp) Add(d time.Duration) Timestamp { return Timestamp{ts.t.Add(d)} }

// Time exposes the underlying UTC time.Time.
func (ts Timestamp) Time() time.Time { return ts.t }

func (ts Timestamp) String() string { return ts.ISO8601() }
