package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marketpipe/marketpipe/checkpoints"
	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/storage"
	"github.com/marketpipe/marketpipe/vendors"
)

// Coordinator owns one ingestion job end to end: it plans the
// (symbol, trading-day) units, skips those covered by checkpoints,
// supervises a bounded worker pool, and emits the job's lifecycle
// events and metrics.
type Coordinator struct {
	Config      *Config
	Client      *vendors.Client
	Writer      *storage.Writer
	Checkpoints *checkpoints.Store
	Bus         *events.Bus
}

// unit is one (symbol, trading-day) work item.
type unit struct {
	symbol ohlcv.Symbol
	date   string
	window ohlcv.TimeRange
	// cp is the pre-existing checkpoint, if any; its last timestamp
	// floors the rows a rerun may write.
	cp *checkpoints.Checkpoint
}

// Run drives the job to a terminal state and returns its result. The
// returned error is non-nil only for fatal failures (state-machine
// misuse, cancellation); per-unit failures are reported in the result.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	var job = NewJob(c.Config)
	var result = &Result{JobID: job.ID}

	var units, err = c.plan(ctx, job)
	if err != nil {
		return nil, err
	}

	// Backlog gauge: pending units per symbol, decremented as units
	// finish.
	var backlog = make(map[ohlcv.Symbol]int)
	for _, u := range units {
		backlog[u.symbol]++
	}
	for symbol, n := range backlog {
		backlogGauge.WithLabelValues(symbol.String()).Set(float64(n))
	}

	job.SetPlannedUnits(len(units))
	if err := job.Start(); err != nil {
		return nil, err
	}
	c.persistJob(ctx, job)
	c.publishPending(ctx, job)

	var started = time.Now()
	var outcomes = c.dispatch(ctx, job, units)

	var allErrors []string
	var success, failed int
	var rowsWritten int64
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failed++
			allErrors = append(allErrors, fmt.Sprintf("Failed %s %s-%s: %v",
				outcome.unit.symbol,
				outcome.unit.window.Start, outcome.unit.window.End,
				outcome.err))
			continue
		}
		success++
		rowsWritten += int64(outcome.rows)
	}

	result.SuccessCount = success
	result.FailedCount = failed
	result.RowsWritten = rowsWritten
	result.Errors = allErrors

	jobDuration.WithLabelValues(c.Config.Provider, c.Config.FeedType).
		Observe(time.Since(started).Seconds())

	if ctx.Err() != nil {
		if err := job.Cancel(); err != nil {
			return result, err
		}
		result.State = job.State()
		c.persistJob(ctx, job)
		return result, ctx.Err()
	}

	// Partial-failure policy: Completed when at least one unit
	// succeeded (or nothing was pending); Failed when zero did.
	if success > 0 || len(units) == 0 {
		if err := job.Complete(failed == 0); err != nil {
			return result, err
		}
	} else {
		if err := job.Fail(fmt.Sprintf("all %d units failed", failed)); err != nil {
			return result, err
		}
	}
	result.State = job.State()
	result.BarCounts = job.BarCounts()
	c.persistJob(ctx, job)
	// IngestionJobCompleted is the job's last event; validation and
	// aggregation subscribers run here, synchronously.
	c.publishPending(ctx, job)

	log.WithFields(log.Fields{
		"job":     job.ID,
		"state":   result.State,
		"success": success,
		"failed":  failed,
		"rows":    rowsWritten,
	}).Info("ingestion job finished")
	return result, nil
}

// plan enumerates the job's units, skipping those whose checkpoint
// already covers the unit window. Weekends are not filtered here; the
// vendor's empty response is a valid zero-row outcome.
func (c *Coordinator) plan(ctx context.Context, job *Job) ([]unit, error) {
	var units []unit
	for _, symbol := range job.Symbols {
		for _, day := range job.Window.Days() {
			var window = ohlcv.SingleDay(day.Time())
			if window.Start.Before(job.Window.Start) {
				window.Start = job.Window.Start
			}
			if job.Window.End.Before(window.End) {
				window.End = job.Window.End
			}

			var cp *checkpoints.Checkpoint
			if c.Checkpoints != nil {
				var err error
				if cp, err = c.Checkpoints.Load(ctx, symbol, day.TradingDate()); err != nil {
					return nil, err
				}
				if cp != nil && cp.Covers(window.End.UnixNanos()) {
					log.WithFields(log.Fields{
						"symbol": symbol,
						"date":   day.TradingDate(),
					}).Debug("unit covered by checkpoint; skipping")
					continue
				}
			}
			units = append(units, unit{
				symbol: symbol,
				date:   day.TradingDate(),
				window: window,
				cp:     cp,
			})
		}
	}
	return units, nil
}

type outcome struct {
	unit unit
	rows int
	err  error
}

// dispatch runs units over a pool of Config.Workers workers and
// gathers their outcomes. Units that have not started when ctx is
// cancelled never start.
func (c *Coordinator) dispatch(ctx context.Context, job *Job, units []unit) []outcome {
	var (
		group, groupCtx = errgroup.WithContext(ctx)
		mu              sync.Mutex
		outcomes        []outcome
	)
	group.SetLimit(c.Config.Workers)

	for _, u := range units {
		var u = u
		group.Go(func() error {
			defer backlogGauge.WithLabelValues(u.symbol.String()).Dec()

			if groupCtx.Err() != nil {
				return nil // Aborted before starting.
			}
			var rows, partition, err = c.runUnit(groupCtx, job, u)

			mu.Lock()
			outcomes = append(outcomes, outcome{unit: u, rows: rows, err: err})
			mu.Unlock()

			if err != nil {
				return job.MarkUnitFailed(u.symbol)
			}
			if markErr := job.MarkSymbolProcessed(u.symbol, u.date, rows, partition); markErr != nil {
				return markErr
			}
			c.publishPending(ctx, job)
			return nil // Unit errors never abort sibling units.
		})
	}
	// The only error surfaced through the group is state-machine
	// misuse, which Complete/Fail will also reject downstream.
	if err := group.Wait(); err != nil {
		log.WithField("error", err).Error("job bookkeeping failed")
	}
	return outcomes
}

// runUnit executes the per-unit pipeline: fetch, construct bars,
// collect into the aggregate, persist, checkpoint. It returns the row
// count and the written partition path (empty for zero-row days).
func (c *Coordinator) runUnit(ctx context.Context, job *Job, u unit) (int, string, error) {
	var fetched, err = c.Client.FetchBatch(ctx, vendors.Request{
		Symbol: u.symbol,
		Start:  u.window.Start,
		End:    u.window.End,
	})
	if err != nil {
		return 0, "", err
	}

	// Checkpoint monotonicity: a rerun never writes rows at or below
	// the recorded high-water mark.
	if u.cp != nil {
		var kept = fetched[:0]
		for _, row := range fetched {
			if row.TimestampNs >= u.cp.LastTsNs {
				kept = append(kept, row)
			}
		}
		fetched = kept
	}

	if len(fetched) == 0 {
		// Weekend, holiday, or vendor-empty day: a valid zero-row
		// outcome. Checkpoint so reruns skip the unit.
		if err := c.saveCheckpoint(ctx, u); err != nil {
			return 0, "", err
		}
		return 0, "", nil
	}

	var agg = NewSymbolBars(u.symbol, u.date)
	var accepted = make([]storage.Row, 0, len(fetched))
	var dropped int
	for _, row := range fetched {
		var bar, issue, barErr = barFromRow(row)
		if barErr != nil {
			if errors.Is(barErr, ohlcv.ErrDomainViolation) {
				dataQualityTotal.WithLabelValues(u.symbol.String(), issue).Inc()
				log.WithFields(log.Fields{
					"symbol": u.symbol,
					"tsNs":   row.TimestampNs,
					"error":  barErr,
				}).Warn("dropping row with domain violation")
				dropped++
				continue
			}
			return 0, "", barErr
		}

		var before = agg.Len()
		if addErr := agg.AddBar(bar); addErr != nil {
			if errors.Is(addErr, ErrDuplicateBar) {
				dataQualityTotal.WithLabelValues(u.symbol.String(), "duplicate_timestamp").Inc()
			}
			return 0, "", addErr
		}
		if agg.Len() > before {
			accepted = append(accepted, storage.FromCanonical(row))
		}
	}

	if frac := float64(dropped) / float64(len(fetched)); frac > c.Config.MaxRowErrorFrac {
		return 0, "", fmt.Errorf("dropped %d of %d rows (%.0f%% > %.0f%% budget): %w",
			dropped, len(fetched), frac*100, c.Config.MaxRowErrorFrac*100,
			ohlcv.ErrDomainViolation)
	}

	// Optimistic completion; one retry against the reloaded version.
	if err := agg.CompleteCollection(agg.Version()); errors.Is(err, ErrVersionConflict) {
		if err = agg.CompleteCollection(agg.Version()); err != nil {
			return 0, "", err
		}
	} else if err != nil {
		return 0, "", err
	}

	var partition string
	if len(accepted) > 0 {
		var path, writeErr = c.Writer.Write(ctx, accepted, "1m", u.symbol, u.date, job.ID, false)
		if writeErr != nil {
			return 0, "", writeErr
		}
		partition = path
	}
	if err := c.saveCheckpoint(ctx, u); err != nil {
		return 0, "", err
	}

	if c.Bus != nil {
		for _, event := range agg.TakeEvents() {
			c.Bus.Publish(ctx, event)
		}
	}
	return len(accepted), partition, nil
}

// saveCheckpoint records the unit's window end as the durable
// high-water mark, after (not before) the write succeeded.
func (c *Coordinator) saveCheckpoint(ctx context.Context, u unit) error {
	if c.Checkpoints == nil {
		return nil
	}
	return c.Checkpoints.Save(ctx, u.symbol, u.date, checkpoints.Checkpoint{
		LastTsNs: u.window.End.UnixNanos(),
	})
}

func (c *Coordinator) persistJob(ctx context.Context, job *Job) {
	if c.Checkpoints == nil {
		return
	}
	var err = c.Checkpoints.SaveJob(ctx, checkpoints.JobRecord{
		JobID:    job.ID,
		State:    string(job.State()),
		Provider: job.Provider,
		Feed:     job.Feed,
	})
	if err != nil {
		log.WithFields(log.Fields{"job": job.ID, "error": err}).Warn("persisting job record failed")
	}
}

func (c *Coordinator) publishPending(ctx context.Context, job *Job) {
	if c.Bus == nil {
		job.TakeEvents()
		return
	}
	for _, event := range job.TakeEvents() {
		c.Bus.Publish(ctx, event)
	}
}

// barFromRow constructs a validated domain bar from a canonical row.
// On a domain violation the second return names the violated rule, as
// recorded in the data-quality counter's issue_type label.
func barFromRow(row vendors.Row) (*ohlcv.Bar, string, error) {
	var symbol, err = ohlcv.NewSymbol(row.Symbol)
	if err != nil {
		return nil, "bad_symbol", err
	}
	open, err := ohlcv.NewPriceFromFloat(row.Open)
	if err != nil {
		return nil, "non_positive_price", err
	}
	high, err := ohlcv.NewPriceFromFloat(row.High)
	if err != nil {
		return nil, "non_positive_price", err
	}
	low, err := ohlcv.NewPriceFromFloat(row.Low)
	if err != nil {
		return nil, "non_positive_price", err
	}
	closePrice, err := ohlcv.NewPriceFromFloat(row.Close)
	if err != nil {
		return nil, "non_positive_price", err
	}
	volume, err := ohlcv.NewVolume(row.Volume)
	if err != nil {
		return nil, "negative_volume", err
	}
	bar, err := ohlcv.NewBar(symbol, ohlcv.TimestampFromNanos(row.TimestampNs),
		open, high, low, closePrice, volume)
	if err != nil {
		// Zero prices survive construction and are rejected here.
		if row.Open <= 0 || row.High <= 0 || row.Low <= 0 || row.Close <= 0 {
			return nil, "non_positive_price", err
		}
		return nil, "ohlc_inconsistency", err
	}
	return bar, "", nil
}
