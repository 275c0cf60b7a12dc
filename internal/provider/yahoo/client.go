// Package yahoo adapts the Yahoo Finance chart endpoint (quote, history).
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

const (
	// Name is the provider name used in chains, limits and symbol overrides.
	Name    = "yahoo"
	baseURL = "https://query1.finance.yahoo.com"
	// The chart endpoint rejects requests without a browser-like agent.
	userAgent = "Mozilla/5.0 (compatible; marketdata/1.0)"
)

// Client is a Yahoo Finance adapter. It needs no credentials.
type Client struct {
	baseURL    string
	httpClient httpx.Doer
	header     http.Header
	timeout    time.Duration
	now        func() time.Time
}

// Option is a configuration option for the Yahoo client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(d httpx.Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithTimeout bounds each call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the clock used to stamp fetch times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Yahoo client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{"User-Agent": {userAgent}, "Accept": {"application/json"}},
		timeout:    httpx.DefaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapQuote, provider.CapHistory}
}

// chart fetches /v8/finance/chart/{symbol} and returns its single result.
func (c *Client) chart(ctx context.Context, op provider.Capability, symbol string, query url.Values) (*chartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", Name, err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.TransportFail(Name, op, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, provider.StatusFail(Name, op, res.StatusCode, httpx.Snippet(res.Body))
	}

	var body chartResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.TransportFail(Name, op, err)
		}
		return nil, provider.Fail(Name, op, provider.ErrInvalidResponse, fmt.Errorf("decoding response: %w", err))
	}
	if e := body.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, provider.Fail(Name, op, provider.ErrNotFound, errors.New(e.Description))
		}
		return nil, provider.Fail(Name, op, provider.ErrInvalidResponse, fmt.Errorf("%s: %s", e.Code, e.Description))
	}
	if len(body.Chart.Result) == 0 {
		return nil, provider.Fail(Name, op, provider.ErrNotFound, fmt.Errorf("no chart for %s", symbol))
	}
	return &body.Chart.Result[0], nil
}
