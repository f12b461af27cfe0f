package fetch

import (
	"context"
	"net/http"
	"time"
)

// Transport executes a single attempt against the network. The timeout in
// the attempt is enforced by the transport, not by the orchestrator.
type Transport interface {
	Fetch(ctx context.Context, attempt Attempt) (Result, error)
}

// RenderGroup shares one browser and browsing context across many pages.
// Close releases the shared browser regardless of per-page outcomes.
type RenderGroup interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (Result, error)
	Close() error
}

// Renderer is a Transport backed by a browser engine that can also open a
// shared browsing context for batch fetches.
type Renderer interface {
	Transport
	Group(ctx context.Context, headers http.Header, proxy string) (RenderGroup, error)
}

// Cache stores fetch results keyed by URL. Backends must be safe for
// concurrent use. A ttl of zero means no expiration.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, value Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Contains(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context) (int, error)
}

// Limiter paces outbound requests per domain and globally. Wait blocks
// until the request may proceed; it fails only on context cancellation.
type Limiter interface {
	Wait(ctx context.Context, url string) error
	// Tighten installs a temporary, stricter per-domain rule derived from a
	// server rate-limit hint. Installing a looser rule is a no-op.
	Tighten(domain string, retryAfter time.Duration)
}

// AuthProvider supplies request credentials. Authenticate is serialized per
// provider; concurrent callers observe the single in-flight flow's outcome.
type AuthProvider interface {
	Headers() http.Header
	IsAuthenticated() bool
	Authenticate(ctx context.Context) error
}

// Session owns the pooled HTTP resources shared by the requests of one
// fetch or batch-fetch call. Open and Close are idempotent.
type Session interface {
	Open() error
	Close() error
	Transport() *http.Transport
	CookieJar() http.CookieJar
	Headers() http.Header
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
