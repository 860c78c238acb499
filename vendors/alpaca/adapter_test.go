package alpaca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
	"github.com/marketpipe/marketpipe/vendors"
)

func testRequest() vendors.Request {
	var start = ohlcv.NewTimestamp(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	return vendors.Request{
		Symbol: ohlcv.MustSymbol("AAPL"),
		Start:  start,
		End:    start.Add(24 * time.Hour),
	}
}

func TestRequiresCredentials(t *testing.T) {
	var _, err = vendors.New("alpaca", vendors.Settings{})
	require.ErrorIs(t, err, vendors.ErrAuth)

	_, err = vendors.New("alpaca", vendors.Settings{
		Credentials: vendors.Credentials{Key: "k", Secret: "s"},
	})
	require.NoError(t, err)
}

func TestRequestShape(t *testing.T) {
	var a = &adapter{
		creds:     vendors.Credentials{Key: "k", Secret: "s"},
		feed:      "iex",
		batchSize: 1000,
	}

	require.Equal(t, "/v2/stocks/AAPL/bars", a.EndpointPath(testRequest(), ""))

	var params = a.BuildParams(testRequest(), "tok123")
	require.Equal(t, "1Min", params.Get("timeframe"))
	require.Equal(t, "2024-01-15T00:00:00Z", params.Get("start"))
	require.Equal(t, "2024-01-16T00:00:00Z", params.Get("end"))
	require.Equal(t, "1000", params.Get("limit"))
	require.Equal(t, "iex", params.Get("feed"))
	require.Equal(t, "tok123", params.Get("page_token"))

	params = a.BuildParams(testRequest(), "")
	require.Empty(t, params.Get("page_token"))
}

func TestHeaderAuth(t *testing.T) {
	var a = &adapter{creds: vendors.Credentials{Key: "k", Secret: "s"}}
	var header = make(map[string][]string)
	a.ApplyAuth(header, nil)
	require.Equal(t, []string{"k"}, header["Apca-Api-Key-Id"])
	require.Equal(t, []string{"s"}, header["Apca-Api-Secret-Key"])
}

func TestParseResponse(t *testing.T) {
	var body = []byte(`{
		"bars": [
			{"t": "2024-01-15T13:30:00Z", "o": 185.5, "h": 186.0, "l": 185.25, "c": 185.75, "v": 1000, "n": 42, "vw": 185.6},
			{"t": "2024-01-15T13:31:00Z", "o": 185.75, "h": 185.9, "l": 185.6, "c": 185.8, "v": 900}
		],
		"symbol": "AAPL",
		"next_page_token": "abc"
	}`)

	var a = &adapter{}
	var rows, err = a.ParseResponse(testRequest(), body)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "AAPL", rows[0].Symbol)
	require.Equal(t, time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC).UnixNano(), rows[0].TimestampNs)
	require.Equal(t, 185.5, rows[0].Open)
	require.NotNil(t, rows[0].TradeCount)
	require.Equal(t, int32(42), *rows[0].TradeCount)
	require.NotNil(t, rows[0].VWAP)
	require.Nil(t, rows[1].TradeCount)

	cursor, ok := a.NextCursor(body)
	require.True(t, ok)
	require.Equal(t, "abc", cursor)

	cursor, ok = a.NextCursor([]byte(`{"bars": [], "next_page_token": null}`))
	require.False(t, ok)
	require.Empty(t, cursor)

	_, err = a.ParseResponse(testRequest(), []byte(`{"bars": [{"t": "yesterday"}]}`))
	require.Error(t, err)
}
