// Package session owns the pooled HTTP resources shared by the requests of
// a single fetch or batch-fetch call.
package session

import (
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"
)

// DefaultMaxConnections sizes the per-host connection pool when the config
// leaves it zero.
const DefaultMaxConnections = 10

// Config controls the pooled transport.
type Config struct {
	MaxConnections int
	Proxy          string      // optional fixed proxy for every request
	Headers        http.Header // merged over the built-in defaults
}

// Manager builds and owns a cookie jar and a pooled *http.Transport. Open
// and Close are idempotent; reopening after Close builds a fresh pool, and
// Open while already open is a no-op so a previous pool never leaks.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	open      bool
	transport *http.Transport
	jar       http.CookieJar
}

// New creates a Manager. The proxy URL, if set, is validated on Open.
func New(cfg Config) *Manager {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	return &Manager{cfg: cfg}
}

// Open builds the cookie jar and connection pool. Calling it on an open
// manager does nothing.
func (m *Manager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked()
}

func (m *Manager) openLocked() error {
	if m.open {
		return nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	transport, err := m.newTransport()
	if err != nil {
		return err
	}
	m.jar = jar
	m.transport = transport
	m.open = true
	return nil
}

// Close releases the connection pool. Calling it on a closed manager does
// nothing.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	m.transport.CloseIdleConnections()
	m.transport = nil
	m.jar = nil
	m.open = false
	return nil
}

// Transport returns the pooled transport, opening the manager if needed.
// The implicit open only fails on a bad proxy URL, which Open surfaces to
// callers that check.
func (m *Manager) Transport() *http.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.openLocked()
	return m.transport
}

// CookieJar returns the shared cookie jar, opening the manager if needed.
func (m *Manager) CookieJar() http.CookieJar {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.openLocked()
	return m.jar
}

// Headers returns a copy of the session default headers with any
// configured extras merged in.
func (m *Manager) Headers() http.Header {
	headers := http.Header{
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.5"},
		"Connection":      []string{"keep-alive"},
	}
	for k, vs := range m.cfg.Headers {
		for _, v := range vs {
			headers.Set(k, v)
		}
	}
	return headers
}

func (m *Manager) newTransport() (*http.Transport, error) {
	proxyFunc := http.ProxyFromEnvironment
	if m.cfg.Proxy != "" {
		proxyURL, err := url.Parse(m.cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxyFunc = http.ProxyURL(proxyURL)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   m.cfg.MaxConnections,
		IdleConnTimeout:       90 * time.Second,
	}, nil
}
