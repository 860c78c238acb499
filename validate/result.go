package validate

import "github.com/marketpipe/marketpipe/ohlcv"

// Severity grades a rule violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// BarError is one rule violation, addressed by the offending bar's
// timestamp.
type BarError struct {
	TsNs     int64
	Reason   string
	Severity Severity
}

// Result is the audit outcome for one symbol of a job.
type Result struct {
	Symbol    ohlcv.Symbol
	TotalBars int
	Errors    []BarError
	// ReportPath is where the CSV audit landed.
	ReportPath string
}

// IsValid reports whether the audit found no violations.
func (r Result) IsValid() bool { return len(r.Errors) == 0 }
