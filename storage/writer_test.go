package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
)

var testDay = time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)

func testRows(symbol string, n int) []Row {
	var rows = make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Row{
			Symbol: symbol,
			TsNs:   testDay.Add(time.Duration(i) * time.Minute).UnixNano(),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100.5,
			Volume: int64(1000 + i),
		})
	}
	return rows
}

func TestWriteReadRoundTrip(t *testing.T) {
	var root = t.TempDir()
	var writer, err = NewWriter(root, "snappy")
	require.NoError(t, err)

	var rows = testRows("AAPL", 5)
	// Shuffle the input order; files are always ts-sorted.
	rows[0], rows[4] = rows[4], rows[0]

	path, err := writer.Write(context.Background(), rows, "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "AAPL_2024-01-15", false)
	require.NoError(t, err)
	require.Equal(t, Partition{
		Frame:       "1m",
		Symbol:      ohlcv.MustSymbol("AAPL"),
		TradingDate: "2024-01-15",
		JobID:       "AAPL_2024-01-15",
	}.Path(root), path)

	reader, err := NewReader(root)
	require.NoError(t, err)
	got, err := reader.Read(path)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		require.Less(t, got[i-1].TsNs, got[i].TsNs)
	}
	require.Equal(t, "AAPL", got[0].Symbol)
	require.Equal(t, int64(1000), got[0].Volume)
}

func TestWriteRefusesOverwrite(t *testing.T) {
	var root = t.TempDir()
	var writer, err = NewWriter(root, "snappy")
	require.NoError(t, err)

	var rows = testRows("AAPL", 2)
	_, err = writer.Write(context.Background(), rows, "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", false)
	require.NoError(t, err)

	_, err = writer.Write(context.Background(), rows, "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", false)
	require.ErrorIs(t, err, ErrExists)

	// Overwrite replaces the file in place.
	_, err = writer.Write(context.Background(), testRows("AAPL", 3), "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", true)
	require.NoError(t, err)
}

func TestWriteDeterministicBytes(t *testing.T) {
	var root = t.TempDir()
	var writer, err = NewWriter(root, "snappy")
	require.NoError(t, err)

	var rows = testRows("AAPL", 100)
	path, err := writer.Write(context.Background(), rows, "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", false)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	path, err = writer.Write(context.Background(), rows, "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", true)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, first, second, "identical input must produce identical bytes")
}

func TestWritePreconditions(t *testing.T) {
	var root = t.TempDir()
	var writer, err = NewWriter(root, "snappy")
	require.NoError(t, err)
	var ctx = context.Background()
	var symbol = ohlcv.MustSymbol("AAPL")

	_, err = writer.Write(ctx, nil, "1m", symbol, "2024-01-15", "job-1", false)
	require.Error(t, err, "empty partitions are rejected")

	var wrongSymbol = testRows("MSFT", 1)
	_, err = writer.Write(ctx, wrongSymbol, "1m", symbol, "2024-01-15", "job-1", false)
	require.Error(t, err)

	var wrongDay = testRows("AAPL", 1)
	_, err = writer.Write(ctx, wrongDay, "1m", symbol, "2024-01-16", "job-1", false)
	require.Error(t, err)

	_, err = NewWriter(root, "brotli")
	require.Error(t, err, "unsupported codec is rejected up front")
}

func TestScanJob(t *testing.T) {
	var root = t.TempDir()
	var writer, err = NewWriter(root, "snappy")
	require.NoError(t, err)
	var ctx = context.Background()

	_, err = writer.Write(ctx, testRows("MSFT", 2), "1m",
		ohlcv.MustSymbol("MSFT"), "2024-01-15", "job-1", false)
	require.NoError(t, err)
	_, err = writer.Write(ctx, testRows("AAPL", 2), "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-1", false)
	require.NoError(t, err)
	_, err = writer.Write(ctx, testRows("AAPL", 2), "1m",
		ohlcv.MustSymbol("AAPL"), "2024-01-15", "job-2", false)
	require.NoError(t, err)

	reader, err := NewReader(root)
	require.NoError(t, err)
	parts, err := reader.ScanJob("1m", "job-1")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, ohlcv.MustSymbol("AAPL"), parts[0].Symbol)
	require.Equal(t, ohlcv.MustSymbol("MSFT"), parts[1].Symbol)

	parts, err = reader.ScanJob("5m", "job-1")
	require.NoError(t, err)
	require.Empty(t, parts, "unknown frame scans empty")
}

func TestParsePath(t *testing.T) {
	var root = t.TempDir()
	var part = Partition{
		Frame:       "5m",
		Symbol:      ohlcv.MustSymbol("AAPL"),
		TradingDate: "2024-01-15",
		JobID:       "AAPL_2024-01-15",
	}

	var got, err = ParsePath(root, part.Path(root))
	require.NoError(t, err)
	require.Equal(t, part, got)

	_, err = ParsePath(root, root+"/frame=1m/stray.parquet")
	require.Error(t, err)
}
