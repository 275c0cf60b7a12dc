package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure kinds reported by adapters. Match with errors.Is.
var (
	ErrRateLimited     = errors.New("rate limited by provider")
	ErrNotFound        = errors.New("no data found")
	ErrNetwork         = errors.New("network error")
	ErrTimeout         = errors.New("timeout")
	ErrInvalidResponse = errors.New("invalid response")
)

// Error is a classified adapter failure.
type Error struct {
	Provider string
	Op       Capability
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Fail builds a classified error.
func Fail(name string, op Capability, kind, err error) error {
	return &Error{Provider: name, Op: op, Kind: kind, Err: err}
}

// TransportFail classifies an error returned by the HTTP round trip.
func TransportFail(name string, op Capability, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Fail(name, op, ErrTimeout, err)
	}
	return Fail(name, op, ErrNetwork, err)
}

// StatusFail classifies a non-2xx HTTP status.
func StatusFail(name string, op Capability, status int, body string) error {
	err := fmt.Errorf("unexpected status code: %d %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return Fail(name, op, ErrRateLimited, err)
	case status == http.StatusNotFound:
		return Fail(name, op, ErrNotFound, err)
	case status >= 500:
		return Fail(name, op, ErrNetwork, err)
	default:
		return Fail(name, op, ErrInvalidResponse, err)
	}
}

// KindOf returns the failure kind of err, or nil when err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrRateLimited, ErrNotFound, ErrTimeout, ErrNetwork, ErrInvalidResponse} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
