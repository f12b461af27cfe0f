// Package collytransport implements the plain HTTP transport on gocolly.
package collytransport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/hivefetch/hivefetch/internal/fetch"
)

const defaultTimeout = 15 * time.Second

// Transport executes single GET attempts through a Colly collector backed
// by the session's cookie jar and connection pool.
type Transport struct {
	session fetch.Session
	base    *colly.Collector
}

// New builds a Transport bound to a session.
func New(session fetch.Session) *Transport {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	return &Transport{
		session: session,
		base:    c,
	}
}

// Fetch executes one HTTP GET. Non-2xx responses surface as
// *fetch.HTTPError carrying the status code and, on 429, the parsed
// Retry-After hint.
func (t *Transport) Fetch(ctx context.Context, attempt fetch.Attempt) (fetch.Result, error) {
	collector := t.base.Clone()
	timeout := attempt.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	if jar := t.session.CookieJar(); jar != nil {
		collector.SetCookieJar(jar)
	}

	rt, err := t.roundTripper(attempt.Proxy)
	if err != nil {
		return fetch.Result{}, err
	}
	collector.WithTransport(rt)

	var (
		result   fetch.Result
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		for key, values := range attempt.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = fetch.Result{
			Body:        append([]byte(nil), r.Body...),
			ContentType: r.Headers.Get("Content-Type"),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &fetch.HTTPError{
				URL:        attempt.URL,
				StatusCode: r.StatusCode,
				RetryAfter: parseRetryAfter(r.Headers.Get("Retry-After")),
			}
			return
		}
		fetchErr = err
	})

	if err := t.run(ctx, collector, attempt.URL); err != nil {
		// Visit reports the same failure the OnError hook saw; the typed
		// error built there carries more detail.
		if fetchErr != nil {
			return fetch.Result{}, fetchErr
		}
		return fetch.Result{}, err
	}
	if fetchErr != nil {
		return fetch.Result{}, fetchErr
	}
	return result, nil
}

// roundTripper returns the shared session transport, or a clone of it with
// the attempt's proxy installed. Proxied attempts get their own pool since
// the proxy is part of the connection identity.
func (t *Transport) roundTripper(proxy string) (http.RoundTripper, error) {
	base := t.session.Transport()
	if proxy == "" {
		return base, nil
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	clone := base.Clone()
	clone.Proxy = http.ProxyURL(proxyURL)
	return clone, nil
}

func (t *Transport) run(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
