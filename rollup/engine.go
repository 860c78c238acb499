// Package rollup derives 5m/15m/1h/1d bars from a job's 1-minute
// partitions. Buckets are UTC-aligned; a bucket's bar opens with its
// first constituent and closes with its last, takes the extreme
// high/low, and sums volume. Reruns over identical input produce
// byte-identical output.
package rollup

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/storage"
)

// Frames derived from the 1-minute dataset, in write order.
var Frames = []Frame{
	{Name: "5m", Width: 5 * time.Minute},
	{Name: "15m", Width: 15 * time.Minute},
	{Name: "1h", Width: time.Hour},
	{Name: "1d", Width: 24 * time.Hour},
}

// Frame is one output timeframe.
type Frame struct {
	Name  string
	Width time.Duration
}

// Engine reads a job's 1m partitions and writes its roll-up frames.
type Engine struct {
	Reader *storage.Reader
	Writer *storage.Writer
	Bus    *events.Bus
}

// Subscribe wires the engine to run after every completed job.
func (e *Engine) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.IngestionJobCompleted{}.Name(), func(ctx context.Context, ev events.Event) error {
		var completed, ok = ev.(events.IngestionJobCompleted)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", ev)
		}
		return e.AggregateJob(ctx, completed.JobID)
	})
}

// AggregateJob derives every output frame for jobID. Roll-up files are
// written with overwrite so that reruns are idempotent.
func (e *Engine) AggregateJob(ctx context.Context, jobID string) error {
	var parts, err = e.Reader.ScanJob("1m", jobID)
	if err != nil {
		return err
	}

	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := e.Reader.ReadPartition(part)
		if err != nil {
			return err
		}
		for _, frame := range Frames {
			if err := e.writeFrame(ctx, part, frame, rows); err != nil {
				return fmt.Errorf("aggregating %s into %s: %w", part, frame.Name, err)
			}
		}
	}

	if e.Bus != nil {
		var names = make([]string, len(Frames))
		for i, frame := range Frames {
			names[i] = frame.Name
		}
		e.Bus.Publish(ctx, events.AggregationCompleted{
			Meta:   events.NewMeta(),
			JobID:  jobID,
			Frames: names,
		})
	}
	return nil
}

func (e *Engine) writeFrame(ctx context.Context, part storage.Partition, frame Frame, rows []storage.Row) error {
	var buckets = Bucket(rows, frame.Width)
	if len(buckets) == 0 {
		return nil
	}

	// Roll-up bars within one 1m partition share its trading date;
	// bucket starts are aligned inside the partition's UTC day.
	var _, err = e.Writer.Write(ctx, buckets, frame.Name, part.Symbol, part.TradingDate, part.JobID, true)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"partition": part.String(),
		"frame":     frame.Name,
		"buckets":   len(buckets),
	}).Debug("wrote roll-up frame")
	return nil
}

// Bucket partitions sorted 1m rows into UTC-aligned windows of width
// and emits one bar per non-empty bucket, ordered by bucket start.
// Partial head/tail buckets are emitted; empty buckets are omitted.
func Bucket(rows []storage.Row, width time.Duration) []storage.Row {
	if len(rows) == 0 {
		return nil
	}
	var widthNs = width.Nanoseconds()

	var sorted = make([]storage.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TsNs < sorted[j].TsNs })

	var out []storage.Row
	var current *storage.Row
	var currentStart int64 = -1

	for _, row := range sorted {
		var start = row.TsNs - row.TsNs%widthNs
		if current == nil || start != currentStart {
			if current != nil {
				out = append(out, *current)
			}
			var bar = storage.Row{
				Symbol: row.Symbol,
				TsNs:   start,
				Open:   row.Open,
				High:   row.High,
				Low:    row.Low,
				Close:  row.Close,
				Volume: row.Volume,
			}
			current = &bar
			currentStart = start
			continue
		}
		if row.High > current.High {
			current.High = row.High
		}
		if row.Low < current.Low {
			current.Low = row.Low
		}
		current.Close = row.Close
		current.Volume += row.Volume
	}
	out = append(out, *current)
	return out
}

// TradingDateOf returns the UTC trading date of a bucket start.
func TradingDateOf(tsNs int64) string {
	return ohlcv.TimestampFromNanos(tsNs).TradingDate()
}
