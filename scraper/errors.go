package scraper

import (
	"errors"
	"fmt"
)

type FetchErrorKind string

const (
	FetchTimeout     FetchErrorKind = "timeout"
	FetchRateLimited FetchErrorKind = "rate_limited"
	FetchClientError FetchErrorKind = "client_error"
	FetchServerError FetchErrorKind = "server_error"
	FetchNetwork     FetchErrorKind = "network"
)

// FetchError classifies a failed retrieval. client_error is the only kind
// that skips the retry schedule.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (HTTP %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Retryable reports whether the retry schedule applies. Rate limits are
// retryable but honor the server's Retry-After hint first.
func (e *FetchError) Retryable() bool {
	return e.Kind != FetchClientError
}

// AsFetchError unwraps err to a FetchError when possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
