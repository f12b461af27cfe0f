package session

import (
	"net/http"
	"testing"
)

func TestOpenCloseIdempotent(t *testing.T) {
	t.Parallel()

	m := New(Config{})
	if err := m.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first := m.Transport()
	if first == nil {
		t.Fatal("expected a transport after Open")
	}

	// A second Open keeps the existing pool.
	if err := m.Open(); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if m.Transport() != first {
		t.Fatal("expected Open on an open manager to keep the pool")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	// Reopening builds a fresh pool.
	if err := m.Open(); err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if m.Transport() == first {
		t.Fatal("expected a fresh pool after reopen")
	}
}

func TestTransportOpensImplicitly(t *testing.T) {
	t.Parallel()

	m := New(Config{MaxConnections: 7})
	transport := m.Transport()
	if transport == nil {
		t.Fatal("expected Transport to open the manager")
	}
	if transport.MaxIdleConnsPerHost != 7 {
		t.Fatalf("expected per-host pool of 7, got %d", transport.MaxIdleConnsPerHost)
	}
	if m.CookieJar() == nil {
		t.Fatal("expected a cookie jar")
	}
}

func TestOpenRejectsBadProxy(t *testing.T) {
	t.Parallel()

	m := New(Config{Proxy: "http://bad proxy"})
	if err := m.Open(); err == nil {
		t.Fatal("expected an error for an unparsable proxy URL")
	}
}

func TestHeadersMergeConfigOverDefaults(t *testing.T) {
	t.Parallel()

	m := New(Config{Headers: http.Header{
		"Accept-Language": []string{"de-DE"},
		"X-Client":        []string{"hivefetch"},
	}})

	headers := m.Headers()
	if headers.Get("Accept") == "" {
		t.Fatal("expected a default Accept header")
	}
	if got := headers.Get("Accept-Language"); got != "de-DE" {
		t.Fatalf("expected config to override the default, got %q", got)
	}
	if got := headers.Get("X-Client"); got != "hivefetch" {
		t.Fatalf("expected extra header to pass through, got %q", got)
	}
	if got := headers.Get("Connection"); got != "keep-alive" {
		t.Fatalf("expected keep-alive default, got %q", got)
	}
}
