// Package validate audits a completed job's 1-minute bars against the
// OHLCV business rules and writes per-symbol CSV reports. Validation
// never aborts the pipeline: a report is produced even for clean data.
package validate

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/storage"
)

const minuteNs = 60_000_000_000

// extremeMoveThreshold bounds the open-to-previous-close move between
// consecutive bars.
const extremeMoveThreshold = 0.5

// Engine loads a job's written 1m partitions, applies the rules in
// order, and persists one CSV audit per symbol.
type Engine struct {
	Reader      *storage.Reader
	ReportsRoot string
	Provider    string
	Feed        string
	Bus         *events.Bus
}

// Subscribe wires the engine to run after every completed job. The
// event's symbol list covers failed and zero-row units, so every
// symbol of the job gets a report.
func (e *Engine) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.IngestionJobCompleted{}.Name(), func(ctx context.Context, ev events.Event) error {
		var completed, ok = ev.(events.IngestionJobCompleted)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", ev)
		}
		var _, err = e.ValidateJob(ctx, completed.JobID, completed.Symbols)
		return err
	})
}

// ValidateJob audits every symbol written under jobID, plus every
// listed symbol without partitions on disk. A symbol with nothing
// written (failed unit, weekend day) still gets a header-only report.
func (e *Engine) ValidateJob(ctx context.Context, jobID string, symbols []ohlcv.Symbol) ([]Result, error) {
	var parts, err = e.Reader.ScanJob("1m", jobID)
	if err != nil {
		return nil, err
	}

	// Concatenate each symbol's partitions in trading-date order;
	// ScanJob already sorts that way.
	var bySymbol = make(map[ohlcv.Symbol][]storage.Row)
	var order []ohlcv.Symbol
	for _, part := range parts {
		rows, err := e.Reader.ReadPartition(part)
		if err != nil {
			return nil, err
		}
		if _, seen := bySymbol[part.Symbol]; !seen {
			order = append(order, part.Symbol)
		}
		bySymbol[part.Symbol] = append(bySymbol[part.Symbol], rows...)
	}
	for _, symbol := range symbols {
		if _, seen := bySymbol[symbol]; !seen {
			bySymbol[symbol] = nil
			order = append(order, symbol)
		}
	}

	var results = make([]Result, 0, len(order))
	for _, symbol := range order {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var result = e.auditSymbol(symbol, bySymbol[symbol])
		path, err := e.writeReport(jobID, result)
		if err != nil {
			return results, err
		}
		result.ReportPath = path
		results = append(results, result)

		barsProcessed.WithLabelValues(e.Provider, e.Feed).Add(float64(result.TotalBars))
		errorsFound.WithLabelValues(e.Provider, e.Feed).Add(float64(len(result.Errors)))
		if result.IsValid() {
			validationSuccess.WithLabelValues(e.Provider, e.Feed).Inc()
		} else {
			validationFailure.WithLabelValues(e.Provider, e.Feed).Inc()
			if e.Bus != nil {
				e.Bus.Publish(ctx, events.ValidationFailed{
					Meta:       events.NewMeta(),
					JobID:      jobID,
					Symbol:     symbol,
					ErrorCount: len(result.Errors),
					Report:     path,
				})
			}
		}

		log.WithFields(log.Fields{
			"job":    jobID,
			"symbol": symbol,
			"bars":   result.TotalBars,
			"errors": len(result.Errors),
		}).Info("validated symbol")
	}
	return results, nil
}

// auditSymbol applies rules 1 through 6, in order, over the symbol's
// bar sequence. Indexes in reasons are zero-based positions within
// that sequence.
func (e *Engine) auditSymbol(symbol ohlcv.Symbol, rows []storage.Row) Result {
	var result = Result{Symbol: symbol, TotalBars: len(rows)}
	var add = func(tsNs int64, reason string) {
		result.Errors = append(result.Errors, BarError{TsNs: tsNs, Reason: reason, Severity: SeverityError})
	}

	var prevTs int64
	var prevClose float64
	for i, row := range rows {
		if row.High < row.Open || row.High < row.Close || row.High < row.Low {
			add(row.TsNs, fmt.Sprintf("ohlc inconsistency at index %d: high below open/close/low", i))
		} else if row.Low > row.Open || row.Low > row.Close {
			add(row.TsNs, fmt.Sprintf("ohlc inconsistency at index %d: low above open/close", i))
		}
		if row.Open <= 0 || row.High <= 0 || row.Low <= 0 || row.Close <= 0 {
			add(row.TsNs, fmt.Sprintf("non-positive price at index %d", i))
		}
		if row.Volume < 0 {
			add(row.TsNs, fmt.Sprintf("negative volume at index %d", i))
		}
		if i > 0 && row.TsNs <= prevTs {
			add(row.TsNs, fmt.Sprintf("non-monotonic timestamp at index %d", i))
		}
		if row.TsNs%minuteNs != 0 {
			add(row.TsNs, fmt.Sprintf("timestamp not minute-aligned at index %d", i))
		}
		if i > 0 && prevClose > 0 {
			var move = math.Abs(row.Open-prevClose) / prevClose
			if move > extremeMoveThreshold {
				add(row.TsNs, fmt.Sprintf("extreme price movement at index %d: %.1f%%", i, move*100))
			}
		}
		prevTs = row.TsNs
		prevClose = row.Close
	}
	return result
}

// writeReport persists the audit CSV. Clean audits get the header row
// only.
func (e *Engine) writeReport(jobID string, result Result) (string, error) {
	var dir = filepath.Join(e.ReportsRoot, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	var path = filepath.Join(dir, fmt.Sprintf("%s_%s.csv", jobID, result.Symbol))

	var file, err = os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report %s: %w", path, err)
	}
	defer file.Close()

	var w = csv.NewWriter(file)
	if err := w.Write([]string{"symbol", "ts_ns", "reason"}); err != nil {
		return "", fmt.Errorf("writing report header: %w", err)
	}
	for _, barErr := range result.Errors {
		if err := w.Write([]string{
			result.Symbol.String(),
			strconv.FormatInt(barErr.TsNs, 10),
			barErr.Reason,
		}); err != nil {
			return "", fmt.Errorf("writing report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing report %s: %w", path, err)
	}
	return path, nil
}
