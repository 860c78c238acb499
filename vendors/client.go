package vendors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/ratelimit"
)

// Settings configure a Client independently of its Adapter.
type Settings struct {
	BaseURL     string
	Credentials Credentials
	Provider    string
	Feed        string
	BatchSize   int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Timeout     time.Duration
	Limiter     *ratelimit.Limiter
}

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
	defaultTimeout     = 30 * time.Second
)

// Client drives one vendor Adapter: it paginates, retries with
// exponential backoff and jitter, honours the shared rate limiter
// before every attempt, and emits request metrics.
type Client struct {
	adapter  Adapter
	settings Settings
	http     *http.Client
	secrets  []string

	// sleep and jitter are swappable for tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewClient builds a Client around adapter, applying Settings defaults.
func NewClient(adapter Adapter, settings Settings) *Client {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = defaultMaxRetries
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = defaultBackoffBase
	}
	if settings.BackoffCap <= 0 {
		settings.BackoffCap = defaultBackoffCap
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultTimeout
	}
	return &Client{
		adapter:  adapter,
		settings: settings,
		http:     &http.Client{},
		secrets:  settings.Credentials.Secrets(),
		sleep:    sleepCtx,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// Vendor names the underlying adapter.
func (c *Client) Vendor() string { return c.adapter.Vendor() }

// Pages is a finite, non-restartable iterator over the raw pages of
// one Request. Each Next advances one HTTP page (with retries).
type Pages struct {
	client *Client
	req    Request

	cursor string
	rows   []Row
	err    error
	done   bool
	first  bool
}

// Paginate begins lazy pagination of req.
func (c *Client) Paginate(req Request) *Pages {
	return &Pages{client: c, req: req, first: true}
}

// Next fetches the next page. It returns false when pagination is
// finished or an error occurred; check Err afterwards.
func (p *Pages) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}
	if !p.first && p.cursor == "" {
		p.done = true
		return false
	}

	var rows, cursor, err = p.client.fetchPage(ctx, p.req, p.cursor)
	if err != nil {
		p.err = err
		return false
	}
	p.first = false
	p.rows = rows
	p.cursor = cursor
	if cursor == "" {
		p.done = true
	}
	return true
}

// Rows returns the canonical rows of the current page.
func (p *Pages) Rows() []Row { return p.rows }

// Err returns the terminal pagination error, if any.
func (p *Pages) Err() error { return p.err }

// FetchBatch materialises every page of req into one row slice. This
// is the per-day unit entry point used by the coordinator.
func (c *Client) FetchBatch(ctx context.Context, req Request) ([]Row, error) {
	var rows []Row
	var pages = c.Paginate(req)
	for pages.Next(ctx) {
		rows = append(rows, pages.Rows()...)
	}
	if err := pages.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// fetchPage performs one paginated request with the full retry and
// rate-limit discipline. The attempt counter is per request, so each
// page starts back at zero.
func (c *Client) fetchPage(ctx context.Context, req Request, cursor string) ([]Row, string, error) {
	var vendor = c.adapter.Vendor()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt > c.settings.MaxRetries {
			return nil, "", fmt.Errorf("fetching %s %s after %d attempts: %w: %w",
				vendor, req.Symbol, attempt, ErrRetryLimit, lastErr)
		}
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, "", err
			}
		}

		var rows, next, retryable, err = c.attempt(ctx, req, cursor)
		if err == nil {
			return rows, next, nil
		}
		if !retryable {
			return nil, "", err
		}
		lastErr = err
		log.WithFields(log.Fields{
			"vendor":  vendor,
			"symbol":  req.Symbol,
			"attempt": attempt,
			"error":   c.mask(err.Error()),
		}).Warn("vendor request failed (will retry)")
	}
}

// attempt runs exactly one HTTP round trip, emitting metrics.
func (c *Client) attempt(ctx context.Context, req Request, cursor string) (rows []Row, next string, retryable bool, err error) {
	var vendor = c.adapter.Vendor()
	var labels = []string{vendor, c.settings.Provider, c.settings.Feed}

	if c.settings.Limiter != nil {
		if err := c.settings.Limiter.Acquire(ctx); err != nil {
			return nil, "", false, err
		}
	}

	var params = c.adapter.BuildParams(req, cursor)
	var header = make(http.Header)
	c.adapter.ApplyAuth(header, params)

	var target, urlErr = url.Parse(c.settings.BaseURL + c.adapter.EndpointPath(req, cursor))
	if urlErr != nil {
		return nil, "", false, fmt.Errorf("building vendor URL: %w", urlErr)
	}
	target.RawQuery = params.Encode()

	var callCtx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	httpReq, reqErr := http.NewRequestWithContext(callCtx, http.MethodGet, target.String(), nil)
	if reqErr != nil {
		return nil, "", false, fmt.Errorf("building vendor request: %w", reqErr)
	}
	httpReq.Header = header

	requestsTotal.WithLabelValues(labels...).Inc()
	var start = time.Now()
	resp, doErr := c.http.Do(httpReq)
	requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

	if doErr != nil {
		var status = "exception"
		if errors.Is(doErr, context.DeadlineExceeded) && ctx.Err() == nil {
			status = "timeout"
		}
		errorsTotal.WithLabelValues(append(labels, status)...).Inc()
		if ctx.Err() != nil {
			return nil, "", false, ctx.Err()
		}
		return nil, "", true, fmt.Errorf("vendor request: %s", c.mask(doErr.Error()))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		errorsTotal.WithLabelValues(append(labels, "exception")...).Inc()
		return nil, "", true, fmt.Errorf("reading vendor response: %w", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorsTotal.WithLabelValues(append(labels, fmt.Sprint(resp.StatusCode))...).Inc()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, "", false, fmt.Errorf("%s %d: %w", vendor, resp.StatusCode, ErrAuth)
		}
		if c.adapter.ShouldRetry(resp.StatusCode, body) {
			return nil, "", true, &StatusError{Status: resp.StatusCode, Body: c.mask(bodyPrefix(body))}
		}
		return nil, "", false, &StatusError{Status: resp.StatusCode, Body: c.mask(bodyPrefix(body))}
	}

	rows, parseErr := c.adapter.ParseResponse(req, body)
	if parseErr != nil {
		// An unparseable 2xx body is treated as retryable per the
		// adapter's policy against an empty body.
		var perr = &ParseError{Prefix: c.mask(bodyPrefix(body)), Cause: parseErr}
		return nil, "", c.adapter.ShouldRetry(resp.StatusCode, nil), perr
	}
	for i := range rows {
		rows[i].SchemaVersion = SchemaVersion
		rows[i].Source = vendor
		rows[i].Frame = Frame1m
		if err := rows[i].Validate(); err != nil {
			return nil, "", false, &ParseError{Prefix: c.mask(bodyPrefix(body)), Cause: err}
		}
	}

	next, _ = c.adapter.NextCursor(body)
	return rows, next, false, nil
}

// backoff sleeps min(cap, base * 2^attempt) plus jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	var d = c.settings.BackoffBase << uint(attempt)
	if d > c.settings.BackoffCap || d <= 0 {
		d = c.settings.BackoffCap
	}
	return c.sleep(ctx, d+c.jitter(c.settings.BackoffBase))
}

func (c *Client) mask(s string) string { return maskSecrets(s, c.secrets) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var timer = time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
