package vendors

import (
	"net/http"
	"net/url"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// Request addresses one (symbol, window) fetch against a vendor.
type Request struct {
	Symbol ohlcv.Symbol
	Start  ohlcv.Timestamp
	End    ohlcv.Timestamp
}

// Credentials are delivered out-of-band via the process environment.
// Vendors use either the key/secret pair or the bearer token.
type Credentials struct {
	Key    string
	Secret string
	Token  string
}

// Secrets lists the credential material for error masking.
func (c Credentials) Secrets() []string {
	return []string{c.Key, c.Secret, c.Token}
}

// Adapter is the per-vendor extension surface. A vendor supplies its
// request shape, auth convention, response parsing, continuation
// tokens and retry eligibility; the Client supplies everything else.
type Adapter interface {
	// Vendor names the adapter for metrics and the canonical row Source.
	Vendor() string

	// EndpointPath returns the URL path (no query) for a page of req.
	// The cursor is empty for the first page.
	EndpointPath(req Request, cursor string) string

	// BuildParams returns the query parameters for a page of req.
	BuildParams(req Request, cursor string) url.Values

	// ApplyAuth injects credentials into headers or query parameters,
	// per vendor convention.
	ApplyAuth(header http.Header, params url.Values)

	// ParseResponse maps one page body to canonical rows.
	ParseResponse(req Request, body []byte) ([]Row, error)

	// NextCursor extracts the continuation token from a page body.
	// ok is false when pagination is finished.
	NextCursor(body []byte) (cursor string, ok bool)

	// ShouldRetry reports whether a response is eligible for retry.
	ShouldRetry(status int, body []byte) bool
}

// DefaultShouldRetry is the stock policy: retry 429 and all 5xx.
func DefaultShouldRetry(status int, _ []byte) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
