package httpx

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds every provider call unless configured otherwise.
const DefaultTimeout = 10 * time.Second

// Doer sends an HTTP request. *Client and *http.Client satisfy it.
//
//go:generate mockgen -destination=mock_httpx/doer.go -package=mock_httpx -source=httpx.go Doer
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Response headers are bounded only by the client timeout and the request context.
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "marketdata/1.0"}
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// Snippet reads at most 2KiB of body for error messages.
func Snippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 2<<10))
	if err != nil {
		return fmt.Sprintf("<unreadable body: %v>", err)
	}
	return string(b)
}
