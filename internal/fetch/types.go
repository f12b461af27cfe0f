// Package fetch defines the core types, collaborator contracts, and the
// orchestrator for the resilient fetch subsystem.
package fetch

import (
	"net/http"
	"time"
)

// DefaultUserAgent is used when no user-agent pool is configured.
const DefaultUserAgent = "Mozilla/5.0 (compatible; hivefetch/1.0; +https://github.com/hivefetch/hivefetch)"

// Request describes one fetch call. Zero-valued budgets take the
// orchestrator's configured defaults.
type Request struct {
	URL     string
	Retries int           // additional attempts after the first
	Timeout time.Duration // per-attempt budget, enforced by the transport
	Render  bool          // use the page-rendering backend
	NoStore bool          // skip the write-through cache update
}

// Result is the payload handed to downstream consumers.
type Result struct {
	Body        []byte
	ContentType string
}

// Outcome pairs a batch URL with its result or error. Exactly one of
// Result and Err is meaningful, matching the partial-failure contract.
type Outcome struct {
	URL    string
	Result Result
	Err    error
}

// Attempt is a single wire attempt, produced by pre-flight. Headers carry
// the selected user-agent and any credential headers already merged in.
type Attempt struct {
	URL     string
	Headers http.Header
	Proxy   string
	Timeout time.Duration
}
