// Package checkpoints persists per-(symbol, trading-day) progress
// markers and job lifecycle records in sqlite. Checkpoints outlive
// jobs and are the sole source of truth for resume.
package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// Checkpoint marks how far a (symbol, trading-day) unit has been
// durably persisted.
type Checkpoint struct {
	LastTsNs  int64
	Cursor    string
	UpdatedAt time.Time
}

// Covers reports whether the checkpoint reaches endNs, meaning the
// unit ending there is already done and may be skipped.
func (c Checkpoint) Covers(endNs int64) bool { return c.LastTsNs >= endNs }

// JobRecord is the persisted lifecycle row for one ingestion job.
type JobRecord struct {
	JobID     string
	State     string
	Provider  string
	Feed      string
	Payload   string
	UpdatedAt time.Time
}

// Store is a sqlite-backed checkpoint and job store. Writes are
// upserts inside implicit transactions; a partially applied write can
// never corrupt an existing value.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	symbol      TEXT NOT NULL,
	trading_day TEXT NOT NULL,
	last_ts_ns  INTEGER NOT NULL,
	cursor      TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (symbol, trading_day)
);
CREATE TABLE IF NOT EXISTS jobs (
	job_id     TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	provider   TEXT NOT NULL,
	feed       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	var db, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts the checkpoint for (symbol, tradingDay).
func (s *Store) Save(ctx context.Context, symbol ohlcv.Symbol, tradingDay string, cp Checkpoint) error {
	var updatedAt = cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var _, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (symbol, trading_day, last_ts_ns, cursor, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, trading_day) DO UPDATE SET
			last_ts_ns = excluded.last_ts_ns,
			cursor     = excluded.cursor,
			updated_at = excluded.updated_at`,
		symbol.String(), tradingDay, cp.LastTsNs, cp.Cursor, updatedAt)
	if err != nil {
		return fmt.Errorf("saving checkpoint %s/%s: %w", symbol, tradingDay, err)
	}
	return nil
}

// Load returns the checkpoint for (symbol, tradingDay), or nil when
// none exists.
func (s *Store) Load(ctx context.Context, symbol ohlcv.Symbol, tradingDay string) (*Checkpoint, error) {
	var cp Checkpoint
	var err = s.db.QueryRowContext(ctx, `
		SELECT last_ts_ns, cursor, updated_at FROM checkpoints
		WHERE symbol = ? AND trading_day = ?`,
		symbol.String(), tradingDay,
	).Scan(&cp.LastTsNs, &cp.Cursor, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s/%s: %w", symbol, tradingDay, err)
	}
	return &cp, nil
}

// SaveJob upserts a job lifecycle record.
func (s *Store) SaveJob(ctx context.Context, rec JobRecord) error {
	var updatedAt = rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var _, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, state, provider, feed, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			state      = excluded.state,
			provider   = excluded.provider,
			feed       = excluded.feed,
			payload    = excluded.payload,
			updated_at = excluded.updated_at`,
		rec.JobID, rec.State, rec.Provider, rec.Feed, rec.Payload, updatedAt)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", rec.JobID, err)
	}
	return nil
}

// LoadJob returns the record for jobID, or nil when none exists.
func (s *Store) LoadJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var rec = JobRecord{JobID: jobID}
	var err = s.db.QueryRowContext(ctx, `
		SELECT state, provider, feed, payload, updated_at FROM jobs WHERE job_id = ?`,
		jobID,
	).Scan(&rec.State, &rec.Provider, &rec.Feed, &rec.Payload, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}
	return &rec, nil
}

// PruneOlderThan removes checkpoint and job rows whose updated_at is
// before cutoff. With dryRun it only counts the rows it would remove.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var total int64
		for _, table := range []string{"checkpoints", "jobs"} {
			var n int64
			var err = s.db.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM `+table+` WHERE updated_at < ?`, cutoff,
			).Scan(&n)
			if err != nil {
				return 0, fmt.Errorf("counting prunable %s rows: %w", table, err)
			}
			total += n
		}
		return total, nil
	}

	var total int64
	for _, table := range []string{"checkpoints", "jobs"} {
		var res, err = s.db.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE updated_at < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s rows: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
