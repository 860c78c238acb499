// Package alpaca adapts the Alpaca Market Data v2 bars endpoint to the
// canonical vendor client. Auth rides in headers; pagination uses the
// page_token cursor.
package alpaca

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/marketpipe/marketpipe/vendors"
)

const vendorName = "alpaca"

// DefaultBaseURL is Alpaca's market-data host.
const DefaultBaseURL = "https://data.alpaca.markets"

func init() {
	vendors.Register(vendorName, func(settings vendors.Settings) (*vendors.Client, error) {
		if settings.Credentials.Key == "" || settings.Credentials.Secret == "" {
			return nil, fmt.Errorf("alpaca requires key and secret credentials: %w", vendors.ErrAuth)
		}
		if settings.BaseURL == "" {
			settings.BaseURL = DefaultBaseURL
		}
		return vendors.NewClient(&adapter{
			creds:     settings.Credentials,
			feed:      settings.Feed,
			batchSize: settings.BatchSize,
		}, settings), nil
	})
}

type adapter struct {
	creds     vendors.Credentials
	feed      string
	batchSize int
}

func (a *adapter) Vendor() string { return vendorName }

func (a *adapter) EndpointPath(req vendors.Request, _ string) string {
	return "/v2/stocks/" + req.Symbol.String() + "/bars"
}

func (a *adapter) BuildParams(req vendors.Request, cursor string) url.Values {
	var params = url.Values{}
	params.Set("timeframe", "1Min")
	params.Set("start", req.Start.Time().Format(time.RFC3339))
	params.Set("end", req.End.Time().Format(time.RFC3339))
	if a.batchSize > 0 {
		params.Set("limit", strconv.Itoa(a.batchSize))
	}
	if a.feed != "" {
		params.Set("feed", a.feed)
	}
	if cursor != "" {
		params.Set("page_token", cursor)
	}
	return params
}

func (a *adapter) ApplyAuth(header http.Header, _ url.Values) {
	header.Set("APCA-API-KEY-ID", a.creds.Key)
	header.Set("APCA-API-SECRET-KEY", a.creds.Secret)
}

// barsResponse mirrors the Alpaca v2 bars page shape.
type barsResponse struct {
	Bars []struct {
		Timestamp  string  `json:"t"`
		Open       float64 `json:"o"`
		High       float64 `json:"h"`
		Low        float64 `json:"l"`
		Close      float64 `json:"c"`
		Volume     int64   `json:"v"`
		TradeCount *int32  `json:"n"`
		VWAP       *float64 `json:"vw"`
	} `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}

func (a *adapter) ParseResponse(req vendors.Request, body []byte) ([]vendors.Row, error) {
	var page barsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding alpaca bars page: %w", err)
	}

	var rows = make([]vendors.Row, 0, len(page.Bars))
	for i, bar := range page.Bars {
		ts, err := time.Parse(time.RFC3339, bar.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("alpaca bar %d has bad timestamp %q: %w", i, bar.Timestamp, err)
		}
		rows = append(rows, vendors.Row{
			Symbol:      req.Symbol.String(),
			TimestampNs: ts.UTC().UnixNano(),
			Open:        bar.Open,
			High:        bar.High,
			Low:         bar.Low,
			Close:       bar.Close,
			Volume:      bar.Volume,
			TradeCount:  bar.TradeCount,
			VWAP:        bar.VWAP,
		})
	}
	return rows, nil
}

func (a *adapter) NextCursor(body []byte) (string, bool) {
	var page barsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return "", false
	}
	if page.NextPageToken == nil || *page.NextPageToken == "" {
		return "", false
	}
	return *page.NextPageToken, true
}

func (a *adapter) ShouldRetry(status int, body []byte) bool {
	return vendors.DefaultShouldRetry(status, body)
}
