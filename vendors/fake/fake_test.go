package fake

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/vendors"
)

func TestSessionBars(t *testing.T) {
	// 2024-01-15 is a Monday.
	var bars = SessionBars("AAPL", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.Len(t, bars, 390)

	var open = time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)
	require.Equal(t, open.UnixNano(), bars[0].TimestampNs)
	require.Equal(t, open.Add(389*time.Minute).UnixNano(), bars[389].TimestampNs)

	for i, bar := range bars {
		require.GreaterOrEqual(t, bar.High, bar.Open, "bar %d", i)
		require.GreaterOrEqual(t, bar.High, bar.Close, "bar %d", i)
		require.LessOrEqual(t, bar.Low, bar.Open, "bar %d", i)
		require.LessOrEqual(t, bar.Low, bar.Close, "bar %d", i)
	}

	// Determinism: the same symbol-day yields the same bars.
	require.Equal(t, bars, SessionBars("AAPL", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestSessionBarsWeekend(t *testing.T) {
	require.Nil(t, SessionBars("AAPL", time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC)))
	require.Nil(t, SessionBars("AAPL", time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)))
}

func TestHandlerPagination(t *testing.T) {
	var handler = &Handler{PageSize: 150}
	var server = httptest.NewServer(handler)
	defer server.Close()

	var client, err = vendors.New("fake", vendors.Settings{BaseURL: server.URL})
	require.NoError(t, err)

	var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows, err := client.FetchBatch(context.Background(), vendors.Request{
		Symbol: ohlcv.MustSymbol("AAPL"),
		Start:  ohlcv.NewTimestamp(day),
		End:    ohlcv.NewTimestamp(day.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, rows, 390)
	// 390 bars at 150 per page is three pages.
	require.Equal(t, int64(3), handler.Requests())
}

func TestHandlerScriptedFaults(t *testing.T) {
	var handler = &Handler{FailStatus: 429, FailCount: 2}
	var server = httptest.NewServer(handler)
	defer server.Close()

	var client, err = vendors.New("fake", vendors.Settings{
		BaseURL:     server.URL,
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffCap:  time.Millisecond,
	})
	require.NoError(t, err)

	var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	rows, err := client.FetchBatch(context.Background(), vendors.Request{
		Symbol: ohlcv.MustSymbol("TSLA"),
		Start:  ohlcv.NewTimestamp(day),
		End:    ohlcv.NewTimestamp(day.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	require.Len(t, rows, 390)
	// Two scripted 429s, then the session across two default pages.
	require.Equal(t, int64(4), handler.Requests())
}

func TestRequiresBaseURL(t *testing.T) {
	var _, err = vendors.New("fake", vendors.Settings{})
	require.Error(t, err)
}
