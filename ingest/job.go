package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ohlcv"
)

// State is an IngestionJob lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrTransition marks a state-machine misuse: transitions out of a
// terminal state, or completing a job with unprocessed symbols. These
// are programmer errors and abort the job.
var ErrTransition = errors.New("invalid job transition")

// Job is the top-level ingestion work descriptor. All mutators are
// safe for concurrent use; domain events accumulate on the job and
// are drained by the coordinator via TakeEvents.
type Job struct {
	ID       string
	Provider string
	Feed     string
	Symbols  []ohlcv.Symbol
	Window   ohlcv.TimeRange

	mu         sync.Mutex
	state      State
	version    int
	barCounts  map[ohlcv.Symbol]int
	planned    int
	resolved   int
	pending    []events.Event
	startedAt  time.Time
	finishedAt time.Time
}

// NewJob builds a Pending job from its configuration.
func NewJob(cfg *Config) *Job {
	return &Job{
		ID:        cfg.JobID(),
		Provider:  cfg.Provider,
		Feed:      cfg.FeedType,
		Symbols:   cfg.ParsedSymbols(),
		Window:    cfg.Window(),
		state:     StatePending,
		barCounts: make(map[ohlcv.Symbol]int),
	}
}

// SetPlannedUnits records how many work units the coordinator will
// dispatch; Complete is rejected until every one is resolved.
func (j *Job) SetPlannedUnits(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.planned = n
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Version returns the monotone mutation counter.
func (j *Job) Version() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.version
}

// Start transitions Pending -> InProgress.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StatePending {
		return fmt.Errorf("start from %s: %w", j.state, ErrTransition)
	}
	j.state = StateInProgress
	j.startedAt = time.Now().UTC()
	j.version++
	j.pending = append(j.pending, events.IngestionJobStarted{
		Meta:     events.NewMeta(),
		JobID:    j.ID,
		Provider: j.Provider,
		Symbols:  j.Symbols,
	})
	return nil
}

// MarkSymbolProcessed records a finished (symbol, day) unit. Zero-bar
// units (weekends, vendor-empty days) count as processed.
func (j *Job) MarkSymbolProcessed(symbol ohlcv.Symbol, tradingDate string, bars int, partition string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateInProgress {
		return fmt.Errorf("mark symbol processed from %s: %w", j.state, ErrTransition)
	}
	j.barCounts[symbol] += bars
	j.resolved++
	j.version++
	j.pending = append(j.pending, events.IngestionBatchProcessed{
		Meta:        events.NewMeta(),
		JobID:       j.ID,
		Symbol:      symbol,
		TradingDate: tradingDate,
		BarCount:    bars,
		Partition:   partition,
	})
	return nil
}

// MarkUnitFailed resolves one unit as cleanly failed. No event is
// emitted; the failure is carried by the job result.
func (j *Job) MarkUnitFailed(symbol ohlcv.Symbol) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateInProgress {
		return fmt.Errorf("mark unit failed from %s: %w", j.state, ErrTransition)
	}
	j.resolved++
	j.version++
	return nil
}

// Complete transitions InProgress -> Completed. Every planned unit must
// have resolved (processed, including zero-bar days, or cleanly
// failed); success reports whether all units succeeded.
func (j *Job) Complete(success bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateInProgress {
		return fmt.Errorf("complete from %s: %w", j.state, ErrTransition)
	}
	if j.resolved < j.planned {
		return fmt.Errorf("complete with %d of %d units outstanding: %w",
			j.planned-j.resolved, j.planned, ErrTransition)
	}
	j.state = StateCompleted
	j.finishedAt = time.Now().UTC()
	j.version++

	var counts = make(map[ohlcv.Symbol]int, len(j.barCounts))
	for symbol, count := range j.barCounts {
		counts[symbol] = count
	}
	j.pending = append(j.pending, events.IngestionJobCompleted{
		Meta:      events.NewMeta(),
		JobID:     j.ID,
		Provider:  j.Provider,
		Feed:      j.Feed,
		Success:   success,
		Symbols:   j.Symbols,
		BarCounts: counts,
	})
	return nil
}

// Fail transitions Pending or InProgress -> Failed.
func (j *Job) Fail(reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.terminal() {
		return fmt.Errorf("fail from %s: %w", j.state, ErrTransition)
	}
	j.state = StateFailed
	j.finishedAt = time.Now().UTC()
	j.version++
	_ = reason // Carried in the job result; the state machine only records the transition.
	return nil
}

// Cancel transitions Pending or InProgress -> Cancelled.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.terminal() {
		return fmt.Errorf("cancel from %s: %w", j.state, ErrTransition)
	}
	j.state = StateCancelled
	j.finishedAt = time.Now().UTC()
	j.version++
	return nil
}

// TakeEvents drains and returns the pending domain events in order.
func (j *Job) TakeEvents() []events.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var drained = j.pending
	j.pending = nil
	return drained
}

// BarCounts returns a copy of the per-symbol bar tallies.
func (j *Job) BarCounts() map[ohlcv.Symbol]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	var counts = make(map[ohlcv.Symbol]int, len(j.barCounts))
	for symbol, count := range j.barCounts {
		counts[symbol] = count
	}
	return counts
}
