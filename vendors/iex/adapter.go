// Package iex adapts the IEX Cloud intraday chart endpoint to the
// canonical vendor client. Auth rides in the token query parameter.
// IEX serves minute bars a calendar day at a time, which matches the
// coordinator's day-granular work units; a request window therefore
// maps to a single page and NextCursor always ends pagination.
package iex

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/marketpipe/marketpipe/vendors"
)

const vendorName = "iex"

// DefaultBaseURL is the IEX Cloud API host.
const DefaultBaseURL = "https://cloud.iexapis.com"

func init() {
	vendors.Register(vendorName, func(settings vendors.Settings) (*vendors.Client, error) {
		if settings.Credentials.Token == "" {
			return nil, fmt.Errorf("iex requires a token credential: %w", vendors.ErrAuth)
		}
		if settings.BaseURL == "" {
			settings.BaseURL = DefaultBaseURL
		}
		return vendors.NewClient(&adapter{token: settings.Credentials.Token}, settings), nil
	})
}

type adapter struct {
	token string
}

func (a *adapter) Vendor() string { return vendorName }

func (a *adapter) EndpointPath(req vendors.Request, _ string) string {
	var date = req.Start.Time().Format("20060102")
	return "/stable/stock/" + req.Symbol.String() + "/chart/date/" + date
}

func (a *adapter) BuildParams(_ vendors.Request, _ string) url.Values {
	var params = url.Values{}
	params.Set("chartByDay", "false")
	return params
}

func (a *adapter) ApplyAuth(_ http.Header, params url.Values) {
	params.Set("token", a.token)
}

// chartEntry mirrors one element of an IEX intraday chart response.
// Minute is wall-clock "HH:MM" for the entry's date.
type chartEntry struct {
	Date    string   `json:"date"`
	Minute  string   `json:"minute"`
	Open    *float64 `json:"open"`
	High    *float64 `json:"high"`
	Low     *float64 `json:"low"`
	Close   *float64 `json:"close"`
	Volume  int64    `json:"volume"`
	Numbers *int32   `json:"numberOfTrades"`
}

func (a *adapter) ParseResponse(req vendors.Request, body []byte) ([]vendors.Row, error) {
	var entries []chartEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding iex chart page: %w", err)
	}

	var rows = make([]vendors.Row, 0, len(entries))
	for i, entry := range entries {
		// IEX reports minutes with no trading activity as all-null
		// prices; those are not bars.
		if entry.Open == nil || entry.High == nil || entry.Low == nil || entry.Close == nil {
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04", entry.Date+" "+entry.Minute)
		if err != nil {
			return nil, fmt.Errorf("iex entry %d has bad date/minute %q %q: %w",
				i, entry.Date, entry.Minute, err)
		}
		rows = append(rows, vendors.Row{
			Symbol:      req.Symbol.String(),
			TimestampNs: ts.UTC().UnixNano(),
			Open:        *entry.Open,
			High:        *entry.High,
			Low:         *entry.Low,
			Close:       *entry.Close,
			Volume:      entry.Volume,
			TradeCount:  entry.Numbers,
		})
	}
	return rows, nil
}

func (a *adapter) NextCursor(_ []byte) (string, bool) { return "", false }

func (a *adapter) ShouldRetry(status int, body []byte) bool {
	return vendors.DefaultShouldRetry(status, body)
}
