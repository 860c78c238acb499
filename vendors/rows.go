// Package vendors implements the vendor-agnostic market-data HTTP
// client: auth injection, pagination, retry with backoff, rate-limit
// discipline and metric emission. Concrete vendors plug in through the
// Adapter surface and register themselves by provider name.
package vendors

import "fmt"

// SchemaVersion of the canonical row emitted downstream.
const SchemaVersion = 1

// Frame1m is the only frame vendors serve; higher frames are derived.
const Frame1m = "1m"

// Row is the canonical minute bar produced by every adapter. Vendor
// timestamp formats are converted to UTC nanoseconds before a Row
// leaves the client.
type Row struct {
	Symbol        string
	TimestampNs   int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        int64
	TradeCount    *int32
	VWAP          *float64
	SchemaVersion int
	Source        string
	Frame         string
}

// Validate checks the mandatory canonical fields.
func (r Row) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("canonical row missing symbol")
	}
	if r.TimestampNs <= 0 {
		return fmt.Errorf("canonical row for %s has non-positive timestamp %d", r.Symbol, r.TimestampNs)
	}
	return nil
}
