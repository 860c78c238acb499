// Package fake is a deterministic in-process market-data vendor. It
// synthesises a full 390-bar regular session for any weekday, splits
// it across pages, and can be scripted to fail with a status code for
// the first N requests. Tests and local runs register it as provider
// "fake" and point the client at its Handler.
package fake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/marketpipe/marketpipe/vendors"
)

const vendorName = "fake"

// DefaultPageSize splits a session into two pages, mirroring the shape
// of a real paginated vendor.
const DefaultPageSize = 200

func init() {
	vendors.Register(vendorName, func(settings vendors.Settings) (*vendors.Client, error) {
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("fake vendor requires an explicit base URL")
		}
		return vendors.NewClient(&adapter{batchSize: settings.BatchSize}, settings), nil
	})
}

// sessionOpen and sessionMinutes describe the regular US equity
// session in UTC: 13:30 through 20:00.
const (
	sessionOpenHour   = 13
	sessionOpenMinute = 30
	sessionMinutes    = 390
)

// Handler serves the fake vendor's single endpoint, GET /v1/bars.
type Handler struct {
	// PageSize bounds bars per page; zero means DefaultPageSize.
	PageSize int
	// FailStatus and FailCount script transient faults: the first
	// FailCount requests answer with FailStatus.
	FailStatus int
	FailCount  int64

	requests int64
	failures int64
}

// Requests returns the number of requests served, including scripted
// failures.
func (h *Handler) Requests() int64 { return atomic.LoadInt64(&h.requests) }

type barJSON struct {
	TimestampNs int64   `json:"t"`
	Open        float64 `json:"o"`
	High        float64 `json:"h"`
	Low         float64 `json:"l"`
	Close       float64 `json:"c"`
	Volume      int64   `json:"v"`
}

type pageJSON struct {
	Bars []barJSON `json:"bars"`
	Next *string   `json:"next"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requests, 1)

	if h.FailStatus != 0 && atomic.AddInt64(&h.failures, 1) <= h.FailCount {
		http.Error(w, `{"error":"scripted fault"}`, h.FailStatus)
		return
	}

	var q = r.URL.Query()
	var symbol = q.Get("symbol")
	startNs, err := strconv.ParseInt(q.Get("start_ns"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"bad start_ns"}`, http.StatusBadRequest)
		return
	}
	endNs, err := strconv.ParseInt(q.Get("end_ns"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"bad end_ns"}`, http.StatusBadRequest)
		return
	}
	var offset = 0
	if cursor := q.Get("cursor"); cursor != "" {
		if offset, err = strconv.Atoi(cursor); err != nil {
			http.Error(w, `{"error":"bad cursor"}`, http.StatusBadRequest)
			return
		}
	}

	var session = SessionBars(symbol, time.Unix(0, startNs).UTC())
	var bars = make([]barJSON, 0, len(session))
	for _, bar := range session {
		if bar.TimestampNs >= startNs && bar.TimestampNs < endNs {
			bars = append(bars, bar)
		}
	}

	var pageSize = h.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var page = pageJSON{}
	if offset < len(bars) {
		var end = offset + pageSize
		if end > len(bars) {
			end = len(bars)
		}
		page.Bars = bars[offset:end]
		if end < len(bars) {
			var next = strconv.Itoa(end)
			page.Next = &next
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

// SessionBars synthesises the deterministic minute bars for one symbol
// and UTC trading day. Weekends have no session.
func SessionBars(symbol string, day time.Time) []barJSON {
	var y, m, d = day.UTC().Date()
	var open = time.Date(y, m, d, sessionOpenHour, sessionOpenMinute, 0, 0, time.UTC)
	if wd := open.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}

	// Base price is a stable function of the symbol.
	var seed int64
	for _, r := range symbol {
		seed = seed*31 + int64(r)
	}
	var base = float64(50+seed%200) + 0.25

	var bars = make([]barJSON, 0, sessionMinutes)
	for i := 0; i < sessionMinutes; i++ {
		var drift = float64(i%13)*0.01 - 0.06
		var o = base + drift
		var c = o + 0.02
		bars = append(bars, barJSON{
			TimestampNs: open.Add(time.Duration(i) * time.Minute).UnixNano(),
			Open:        o,
			High:        c + 0.03,
			Low:         o - 0.03,
			Close:       c,
			Volume:      1000 + int64(i%7)*100,
		})
	}
	return bars
}

type adapter struct {
	batchSize int
}

func (a *adapter) Vendor() string { return vendorName }

func (a *adapter) EndpointPath(_ vendors.Request, _ string) string { return "/v1/bars" }

func (a *adapter) BuildParams(req vendors.Request, cursor string) url.Values {
	var params = url.Values{}
	params.Set("symbol", req.Symbol.String())
	params.Set("start_ns", strconv.FormatInt(req.Start.UnixNanos(), 10))
	params.Set("end_ns", strconv.FormatInt(req.End.UnixNanos(), 10))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return params
}

func (a *adapter) ApplyAuth(_ http.Header, _ url.Values) {}

func (a *adapter) ParseResponse(req vendors.Request, body []byte) ([]vendors.Row, error) {
	var page pageJSON
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding fake vendor page: %w", err)
	}
	var rows = make([]vendors.Row, 0, len(page.Bars))
	for _, bar := range page.Bars {
		rows = append(rows, vendors.Row{
			Symbol:      req.Symbol.String(),
			TimestampNs: bar.TimestampNs,
			Open:        bar.Open,
			High:        bar.High,
			Low:         bar.Low,
			Close:       bar.Close,
			Volume:      bar.Volume,
		})
	}
	return rows, nil
}

func (a *adapter) NextCursor(body []byte) (string, bool) {
	var page pageJSON
	if err := json.Unmarshal(body, &page); err != nil {
		return "", false
	}
	if page.Next == nil || *page.Next == "" {
		return "", false
	}
	return *page.Next, true
}

func (a *adapter) ShouldRetry(status int, body []byte) bool {
	return vendors.DefaultShouldRetry(status, body)
}
