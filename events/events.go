// Package events is the in-process domain-event plane coupling the
// ingestion, validation and aggregation stages.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// Event is implemented by every domain event. Name is the subscription
// key; EventID and OccurredAt identify one occurrence.
type Event interface {
	Name() string
	EventID() uuid.UUID
	OccurredAt() time.Time
}

// Meta carries the identity common to all events, and is embedded by
// each variant.
type Meta struct {
	ID   uuid.UUID
	Time time.Time
}

// NewMeta stamps a fresh event identity.
func NewMeta() Meta {
	return Meta{ID: uuid.New(), Time: time.Now().UTC()}
}

func (m Meta) EventID() uuid.UUID    { return m.ID }
func (m Meta) OccurredAt() time.Time { return m.Time }

// IngestionJobStarted is published when a job leaves Pending.
type IngestionJobStarted struct {
	Meta
	JobID    string
	Provider string
	Symbols  []ohlcv.Symbol
}

func (IngestionJobStarted) Name() string { return "IngestionJobStarted" }

// IngestionBatchProcessed is published after a (symbol, day) unit's
// rows have been persisted and checkpointed.
type IngestionBatchProcessed struct {
	Meta
	JobID       string
	Symbol      ohlcv.Symbol
	TradingDate string
	BarCount    int
	Partition   string
}

func (IngestionBatchProcessed) Name() string { return "IngestionBatchProcessed" }

// BarCollectionCompleted is published when a symbol-day aggregate is
// marked complete.
type BarCollectionCompleted struct {
	Meta
	Symbol      ohlcv.Symbol
	TradingDate string
	BarCount    int
}

func (BarCollectionCompleted) Name() string { return "BarCollectionCompleted" }

// IngestionJobCompleted is the last event of a job. It drives the
// validation and aggregation engines. Symbols lists every symbol the
// job covered, including those whose units failed or wrote no rows.
type IngestionJobCompleted struct {
	Meta
	JobID     string
	Provider  string
	Feed      string
	Success   bool
	Symbols   []ohlcv.Symbol
	BarCounts map[ohlcv.Symbol]int
}

func (IngestionJobCompleted) Name() string { return "IngestionJobCompleted" }

// ValidationFailed is published once per symbol whose audit found errors.
type ValidationFailed struct {
	Meta
	JobID      string
	Symbol     ohlcv.Symbol
	ErrorCount int
	Report     string
}

func (ValidationFailed) Name() string { return "ValidationFailed" }

// AggregationCompleted is published after roll-up frames for a job
// have been written.
type AggregationCompleted struct {
	Meta
	JobID  string
	Frames []string
}

func (AggregationCompleted) Name() string { return "AggregationCompleted" }
