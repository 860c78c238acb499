package checkpoints

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	var store, err = Open(filepath.Join(t.TempDir(), "marketpipe.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCheckpointRoundTrip(t *testing.T) {
	var store = newTestStore(t)
	var ctx = context.Background()
	var symbol = ohlcv.MustSymbol("AAPL")

	cp, err := store.Load(ctx, symbol, "2024-01-15")
	require.NoError(t, err)
	require.Nil(t, cp, "missing checkpoint loads as nil")

	require.NoError(t, store.Save(ctx, symbol, "2024-01-15", Checkpoint{LastTsNs: 100, Cursor: "p2"}))
	cp, err = store.Load(ctx, symbol, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, int64(100), cp.LastTsNs)
	require.Equal(t, "p2", cp.Cursor)
	require.False(t, cp.UpdatedAt.IsZero())

	// Upsert replaces in place.
	require.NoError(t, store.Save(ctx, symbol, "2024-01-15", Checkpoint{LastTsNs: 200}))
	cp, err = store.Load(ctx, symbol, "2024-01-15")
	require.NoError(t, err)
	require.Equal(t, int64(200), cp.LastTsNs)
	require.Empty(t, cp.Cursor)
}

func TestCheckpointKeyedBySymbolAndDay(t *testing.T) {
	var store = newTestStore(t)
	var ctx = context.Background()

	require.NoError(t, store.Save(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-15", Checkpoint{LastTsNs: 1}))
	require.NoError(t, store.Save(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-16", Checkpoint{LastTsNs: 2}))
	require.NoError(t, store.Save(ctx, ohlcv.MustSymbol("MSFT"), "2024-01-15", Checkpoint{LastTsNs: 3}))

	cp, err := store.Load(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-16")
	require.NoError(t, err)
	require.Equal(t, int64(2), cp.LastTsNs)
}

func TestCheckpointCovers(t *testing.T) {
	var cp = Checkpoint{LastTsNs: 1000}
	require.True(t, cp.Covers(1000))
	require.True(t, cp.Covers(999))
	require.False(t, cp.Covers(1001))
}

func TestJobRecordRoundTrip(t *testing.T) {
	var store = newTestStore(t)
	var ctx = context.Background()

	rec, err := store.LoadJob(ctx, "AAPL_2024-01-15")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, store.SaveJob(ctx, JobRecord{
		JobID:    "AAPL_2024-01-15",
		State:    "running",
		Provider: "fake",
		Feed:     "iex",
	}))
	require.NoError(t, store.SaveJob(ctx, JobRecord{
		JobID:    "AAPL_2024-01-15",
		State:    "completed",
		Provider: "fake",
		Feed:     "iex",
	}))

	rec, err = store.LoadJob(ctx, "AAPL_2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "completed", rec.State)
}

func TestPruneOlderThan(t *testing.T) {
	var store = newTestStore(t)
	var ctx = context.Background()
	var old = time.Now().UTC().Add(-48 * time.Hour)

	require.NoError(t, store.Save(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-15",
		Checkpoint{LastTsNs: 1, UpdatedAt: old}))
	require.NoError(t, store.Save(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-16",
		Checkpoint{LastTsNs: 2}))
	require.NoError(t, store.SaveJob(ctx, JobRecord{JobID: "stale", State: "completed", UpdatedAt: old}))

	var cutoff = time.Now().UTC().Add(-24 * time.Hour)

	n, err := store.PruneOlderThan(ctx, cutoff, true)
	require.NoError(t, err)
	require.Equal(t, int64(2), n, "dry run counts but keeps rows")

	cp, err := store.Load(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, cp)

	n, err = store.PruneOlderThan(ctx, cutoff, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	cp, err = store.Load(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-15")
	require.NoError(t, err)
	require.Nil(t, cp)
	cp, err = store.Load(ctx, ohlcv.MustSymbol("AAPL"), "2024-01-16")
	require.NoError(t, err)
	require.NotNil(t, cp)
}
