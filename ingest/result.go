package ingest

import "github.com/marketpipe/marketpipe/ohlcv"

// Result is the per-job aggregate outcome handed back to the caller.
type Result struct {
	JobID        string
	State        State
	SuccessCount int
	FailedCount  int
	RowsWritten  int64
	// Errors holds one line per failed unit, shaped
	// "Failed <symbol> <start>-<end>: <reason>".
	Errors []string
	// BarCounts tallies persisted bars per symbol.
	BarCounts map[ohlcv.Symbol]int
}

// Exit codes for the surrounding tool.
const (
	ExitSuccess        = 0
	ExitPartialFailure = 1
	ExitTotalFailure   = 2
)

// ExitCode maps the result onto the tool's exit-code contract:
// 0 all units succeeded, 1 partial failure, 2 total failure.
func (r *Result) ExitCode() int {
	switch {
	case r.State == StateCompleted && r.FailedCount == 0:
		return ExitSuccess
	case r.State == StateCompleted:
		return ExitPartialFailure
	default:
		return ExitTotalFailure
	}
}
