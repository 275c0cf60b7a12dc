// Package finnhub adapts the Finnhub REST API (search, quote).
package finnhub

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
	Name    = "finnhub"
	baseURL = "https://finnhub.io/api/v1"
)

// Client is a Finnhub adapter.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient httpx.Doer
	// header is sent with each request; it carries the API token.
	header http.Header
	// timeout bounds each call.
	timeout time.Duration
	now     func() time.Time
}

// Option is a configuration option for the Finnhub client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(d httpx.Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
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

// New creates a Finnhub client authenticated with key.
func New(key string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		timeout:    httpx.DefaultTimeout,
		now:        time.Now,
	}
	if key != "" {
		c.header.Set("X-Finnhub-Token", key)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapSearch, provider.CapQuote}
}

// get performs a GET against path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, op provider.Capability, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", Name, err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.TransportFail(Name, op, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return provider.StatusFail(Name, op, res.StatusCode, httpx.Snippet(res.Body))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.TransportFail(Name, op, err)
		}
		return provider.Fail(Name, op, provider.ErrInvalidResponse, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
