package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// testAdapter is a minimal vendor speaking a two-field JSON page shape,
// with header auth and the stock retry policy.
type testAdapter struct{ key string }

type testPage struct {
	Rows []testRow `json:"rows"`
	Next string    `json:"next"`
}

type testRow struct {
	TsNs  int64   `json:"t"`
	Price float64 `json:"p"`
}

func (a *testAdapter) Vendor() string                     { return "testvendor" }
func (a *testAdapter) EndpointPath(Request, string) string { return "/bars" }

func (a *testAdapter) BuildParams(req Request, cursor string) url.Values {
	var params = url.Values{}
	params.Set("symbol", req.Symbol.String())
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return params
}

func (a *testAdapter) ApplyAuth(header http.Header, _ url.Values) {
	header.Set("X-Test-Key", a.key)
}

func (a *testAdapter) ParseResponse(req Request, body []byte) ([]Row, error) {
	var page testPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	var rows = make([]Row, 0, len(page.Rows))
	for _, r := range page.Rows {
		rows = append(rows, Row{
			Symbol:      req.Symbol.String(),
			TimestampNs: r.TsNs,
			Open:        r.Price,
			High:        r.Price,
			Low:         r.Price,
			Close:       r.Price,
			Volume:      1,
		})
	}
	return rows, nil
}

func (a *testAdapter) NextCursor(body []byte) (string, bool) {
	var page testPage
	if err := json.Unmarshal(body, &page); err != nil || page.Next == "" {
		return "", false
	}
	return page.Next, true
}

func (a *testAdapter) ShouldRetry(status int, body []byte) bool {
	return DefaultShouldRetry(status, body)
}

// newTestClient builds a client against server with sleeping disabled.
func newTestClient(server *httptest.Server, settings Settings) *Client {
	settings.BaseURL = server.URL
	var client = NewClient(&testAdapter{key: settings.Credentials.Key}, settings)
	client.sleep = func(context.Context, time.Duration) error { return nil }
	client.jitter = func(time.Duration) time.Duration { return 0 }
	return client
}

func testRequest() Request {
	var start = ohlcv.NewTimestamp(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	return Request{
		Symbol: ohlcv.MustSymbol("AAPL"),
		Start:  start,
		End:    start.Add(24 * time.Hour),
	}
}

func TestClientPagination(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "sekrit", r.Header.Get("X-Test-Key"))

		var page testPage
		switch r.URL.Query().Get("cursor") {
		case "":
			page = testPage{Rows: []testRow{{TsNs: 60_000_000_000, Price: 10}}, Next: "p2"}
		case "p2":
			page = testPage{Rows: []testRow{{TsNs: 120_000_000_000, Price: 11}}}
		default:
			t.Fatalf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{Credentials: Credentials{Key: "sekrit"}})
	var rows, err = client.FetchBatch(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Canonical stamps are applied before rows leave the client.
	for _, row := range rows {
		require.Equal(t, SchemaVersion, row.SchemaVersion)
		require.Equal(t, "testvendor", row.Source)
		require.Equal(t, Frame1m, row.Frame)
	}
	require.Equal(t, int64(60_000_000_000), rows[0].TimestampNs)
	require.Equal(t, int64(120_000_000_000), rows[1].TimestampNs)
}

func TestClientRetriesTransientFaults(t *testing.T) {
	var calls int64
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) <= 2 {
			http.Error(w, `{"error":"slow down"}`, http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(testPage{Rows: []testRow{{TsNs: 60_000_000_000, Price: 10}}})
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{MaxRetries: 3})
	var rows, err = client.FetchBatch(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestClientRetryLimit(t *testing.T) {
	var calls int64
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, `{"error":"down"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{MaxRetries: 2})
	var _, err = client.FetchBatch(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrRetryLimit)
	// Initial attempt plus MaxRetries retries.
	require.Equal(t, int64(3), atomic.LoadInt64(&calls))

	// The final attempt's failure rides along with the limit error.
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Status)
}

// retryEverything marks every failure retryable, including unparseable
// 2xx bodies.
type retryEverything struct{ testAdapter }

func (a *retryEverything) ShouldRetry(int, []byte) bool { return true }

func TestClientRetryLimitCarriesParseFailure(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	var client = NewClient(&retryEverything{}, Settings{BaseURL: server.URL, MaxRetries: 1})
	client.sleep = func(context.Context, time.Duration) error { return nil }
	client.jitter = func(time.Duration) time.Duration { return 0 }

	var _, err = client.FetchBatch(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrRetryLimit)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Contains(t, parseErr.Prefix, "<html>")
	require.Contains(t, err.Error(), "cannot parse response")
}

func TestClientAuthErrorsAreTerminal(t *testing.T) {
	var calls int64
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{MaxRetries: 5})
	var _, err = client.FetchBatch(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrAuth)
	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestClientParseError(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{})
	var _, err = client.FetchBatch(context.Background(), testRequest())
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Contains(t, parseErr.Prefix, "<html>")
}

func TestClientMasksSecrets(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"key sekrit rejected by upstream"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{Credentials: Credentials{Key: "sekrit"}})
	var _, err = client.FetchBatch(context.Background(), testRequest())
	require.Error(t, err)
	require.NotContains(t, err.Error(), "sekrit")
	require.Contains(t, err.Error(), "***")
}

func TestClientCancellation(t *testing.T) {
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"down"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	var client = newTestClient(server, Settings{MaxRetries: 100})
	client.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()
	var _, err = client.FetchBatch(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
}
