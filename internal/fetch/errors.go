package fetch

import (
	"fmt"
	"time"
)

// NetworkError reports a transport failure that survived the retry budget.
// Single-URL fetches return it to the caller; batch fetches capture it as
// the per-item outcome.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response surfaced by a transport. RetryAfter is
// populated from the Retry-After header on 429 responses.
type HTTPError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("http %d for %s (retry after %s)", e.StatusCode, e.URL, e.RetryAfter)
	}
	return fmt.Sprintf("http %d for %s", e.StatusCode, e.URL)
}

// RateLimitError signals that a fetch kept hitting 429 responses until the
// retry budget ran out. Callers may use RetryAfter to install a stricter
// domain rule before trying again.
type RateLimitError struct {
	URL        string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited fetching %s: %v", e.URL, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// AuthError reports a failed credential flow. It short-circuits the fetch
// attempt that required it.
type AuthError struct {
	Flow   string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s authentication failed: %s: %v", e.Flow, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s authentication failed: %s", e.Flow, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// CacheError wraps a cache backend failure. The orchestrator logs it and
// carries on; the cache is an optimization, not a correctness dependency.
type CacheError struct {
	Backend string
	Op      string
	Err     error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("%s cache %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
