package ingest

import (
	"errors"
	"fmt"

	"github.com/marketpipe/marketpipe/events"
	"github.com/marketpipe/marketpipe/ohlcv"
)

// ErrDuplicateBar marks a second, non-identical bar at an already
// occupied timestamp. Exact duplicates are deduplicated silently.
var ErrDuplicateBar = errors.New("duplicate bar timestamp")

// ErrVersionConflict marks an optimistic-concurrency mismatch on the
// aggregate. Callers reload the version and retry once.
var ErrVersionConflict = errors.New("aggregate version conflict")

// SymbolBars is the consistency boundary for one (symbol, trading-day)
// collection of minute bars. It is owned by exactly one worker for its
// lifetime and discarded once its completion event is flushed.
type SymbolBars struct {
	Symbol      ohlcv.Symbol
	TradingDate string

	bars      map[int64]*ohlcv.Bar
	version   int
	completed bool
	pending   []events.Event
}

// NewSymbolBars starts a collection for (symbol, tradingDate).
func NewSymbolBars(symbol ohlcv.Symbol, tradingDate string) *SymbolBars {
	return &SymbolBars{
		Symbol:      symbol,
		TradingDate: tradingDate,
		bars:        make(map[int64]*ohlcv.Bar),
		version:     1,
	}
}

// Version returns the aggregate's monotone version.
func (s *SymbolBars) Version() int { return s.version }

// Len returns the number of collected bars.
func (s *SymbolBars) Len() int { return len(s.bars) }

// AddBar collects one bar, rejecting wrong symbols, wrong trading
// dates and duplicate timestamps. An exact duplicate of an existing
// bar is dropped without error.
func (s *SymbolBars) AddBar(bar *ohlcv.Bar) error {
	if s.completed {
		return fmt.Errorf("adding bar to completed collection %s/%s: %w",
			s.Symbol, s.TradingDate, ErrTransition)
	}
	if bar.Symbol != s.Symbol {
		return fmt.Errorf("bar symbol %s does not belong to aggregate %s: %w",
			bar.Symbol, s.Symbol, ohlcv.ErrDomainViolation)
	}
	if got := bar.Timestamp.TradingDate(); got != s.TradingDate {
		return fmt.Errorf("bar date %s does not belong to aggregate %s/%s: %w",
			got, s.Symbol, s.TradingDate, ohlcv.ErrDomainViolation)
	}

	var key = bar.Timestamp.UnixNanos()
	if existing, ok := s.bars[key]; ok {
		if existing.Equivalent(bar) {
			return nil // Exact duplicate; dedup.
		}
		return fmt.Errorf("conflicting bar at %s for %s: %w",
			bar.Timestamp, s.Symbol, ErrDuplicateBar)
	}
	s.bars[key] = bar
	s.version++
	return nil
}

// CompleteCollection marks the aggregate complete and enqueues its
// BarCollectionCompleted event. expectedVersion implements optimistic
// concurrency: a mismatch returns ErrVersionConflict and the caller
// retries once against Version().
func (s *SymbolBars) CompleteCollection(expectedVersion int) error {
	if s.completed {
		return fmt.Errorf("completing already-completed collection %s/%s: %w",
			s.Symbol, s.TradingDate, ErrTransition)
	}
	if expectedVersion != s.version {
		return fmt.Errorf("expected aggregate version %d, have %d: %w",
			expectedVersion, s.version, ErrVersionConflict)
	}
	s.completed = true
	s.version++
	s.pending = append(s.pending, events.BarCollectionCompleted{
		Meta:        events.NewMeta(),
		Symbol:      s.Symbol,
		TradingDate: s.TradingDate,
		BarCount:    len(s.bars),
	})
	return nil
}

// TakeEvents drains the aggregate's pending events.
func (s *SymbolBars) TakeEvents() []events.Event {
	var drained = s.pending
	s.pending = nil
	return drained
}
